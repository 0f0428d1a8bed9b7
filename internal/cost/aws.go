package cost

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

// AWSSource fetches the daily ledger from AWS Cost Explorer, grouped by
// service and region so each result group maps onto one CostRecord.
type AWSSource struct {
	client  *costexplorer.Client
	profile string
	debug   bool
}

// AWSOptions configures how the Cost Explorer client authenticates.
// Static keys take precedence over the named profile; with neither set the
// default shared-config chain applies.
type AWSOptions struct {
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// NewAWSSource creates a Cost Explorer backed source.
func NewAWSSource(ctx context.Context, opts AWSOptions, debug bool) (*AWSSource, error) {
	var cfg aws.Config
	var err error

	switch {
	case opts.AccessKeyID != "" && opts.SecretAccessKey != "":
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(opts.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
			),
		)
	case opts.Profile != "":
		cfg, err = config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(opts.Profile))
	default:
		cfg, err = config.LoadDefaultConfig(ctx)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSource{
		client:  costexplorer.NewFromConfig(cfg),
		profile: opts.Profile,
		debug:   debug,
	}, nil
}

// Name returns the source identifier.
func (s *AWSSource) Name() string {
	return "aws"
}

// IsConfigured checks if the Cost Explorer client was initialized.
func (s *AWSSource) IsConfigured() bool {
	return s.client != nil
}

// FetchRecords returns per-service, per-day costs for the range.
func (s *AWSSource) FetchRecords(ctx context.Context, dates DateRange) ([]CostRecord, error) {
	if _, err := dates.Days(); err != nil {
		return nil, &DataSourceError{Source: s.Name(), Message: err.Error(), Err: err}
	}

	if s.debug {
		log.Printf("[aws-cost] fetching daily costs from %s to %s", dates.Start, dates.End)
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(dates.Start),
			End:   aws.String(dates.End),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{
				Type: types.GroupDefinitionTypeDimension,
				Key:  aws.String("SERVICE"),
			},
			{
				Type: types.GroupDefinitionTypeDimension,
				Key:  aws.String("REGION"),
			},
		},
	}

	result, err := s.client.GetCostAndUsage(ctx, input)
	if err != nil {
		return nil, &DataSourceError{
			Source:  s.Name(),
			Message: fmt.Sprintf("failed to get AWS costs (check credentials): %v", err),
			Err:     err,
		}
	}

	var records []CostRecord
	for _, period := range result.ResultsByTime {
		if period.TimePeriod == nil || period.TimePeriod.Start == nil {
			continue
		}
		date := *period.TimePeriod.Start

		for _, group := range period.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			service := group.Keys[0]
			region := ""
			if len(group.Keys) > 1 {
				region = group.Keys[1]
			}

			amount := 0.0
			if metric, ok := group.Metrics["UnblendedCost"]; ok && metric.Amount != nil {
				amount, _ = strconv.ParseFloat(*metric.Amount, 64)
			}

			records = append(records, CostRecord{
				Date:    date,
				Service: service,
				Cost:    amount,
				Region:  region,
			})
		}
	}

	if s.debug {
		log.Printf("[aws-cost] fetched %d records", len(records))
	}

	return records, nil
}
