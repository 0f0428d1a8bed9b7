package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/costlens/costlens/internal/ai"
	"github.com/costlens/costlens/internal/analysis"
	"github.com/costlens/costlens/internal/cost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	analyzeProvider    string
	analyzeStartDate   string
	analyzeEndDate     string
	analyzeGranularity string
	analyzeFormat      string
	analyzeExplain     bool
	analyzeNoCache     bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "mock", "Data provider: mock, aws, backend")
	analyzeCmd.Flags().StringVar(&analyzeStartDate, "start", "", "Start date YYYY-MM-DD (default: 89 days ago)")
	analyzeCmd.Flags().StringVar(&analyzeEndDate, "end", "", "End date YYYY-MM-DD (default: today)")
	analyzeCmd.Flags().StringVar(&analyzeGranularity, "granularity", "month", "Chart granularity: day, month, year")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table", "Output format: table, json")
	analyzeCmd.Flags().BoolVar(&analyzeExplain, "explain", false, "Ask the AI copilot to explain the top anomaly")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false, "Bypass the local ledger cache")
}

// analyzeCmd runs one analysis pass and prints series + anomalies
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate spend and detect cost anomalies",
	Long: `Fetch the cost ledger for a date range, bucket it at the requested
granularity and scan daily totals for anomalous spend.

Examples:
  costlens analyze                                  # 90-day demo analysis
  costlens analyze --provider aws --granularity day
  costlens analyze --start 2025-05-01 --end 2025-07-31 --format json
  costlens analyze --explain                        # include AI explanation`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		debug := viper.GetBool("debug")

		granularity, err := cost.ParseGranularity(analyzeGranularity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dates := resolveDateRange(analyzeStartDate, analyzeEndDate)

		pipeline := buildPipeline(ctx, debug, analyzeNoCache)
		formatter := analysis.NewFormatter(analyzeFormat, true)

		data, err := pipeline.Analyze(ctx, analyzeProvider, dates, granularity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running analysis: %v\n", err)
			os.Exit(1)
		}

		output, err := formatter.FormatAnalysis(analyzeProvider, dates, granularity, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(1)
		}
		formatter.Print(output)

		if analyzeExplain && len(data.Anomalies) > 0 {
			client := ai.NewClientFromConfig(ctx, debug)
			details, recommendations, err := client.ExplainAnomaly(ctx, data.Anomalies[0], data.DetailedCostData, analyzeProvider, dates, granularity)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error fetching explanation: %v\n", err)
				os.Exit(1)
			}

			output, err := formatter.FormatRecommendations(details, recommendations)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error formatting explanation: %v\n", err)
				os.Exit(1)
			}
			fmt.Println()
			formatter.Print(output)
		}
	},
}

// Helper functions

// buildPipeline registers every source the current config can support.
func buildPipeline(ctx context.Context, debug, noCache bool) *analysis.Pipeline {
	pipeline := analysis.NewPipeline(debug)

	var cache *cost.Cache
	if !noCache {
		cache = openCache(debug)
	}
	wrap := func(s cost.Source) cost.Source {
		if cache == nil {
			return s
		}
		return cost.NewCachedSource(s, cache, debug)
	}

	pipeline.RegisterSource(cost.NewMockSource(0, debug))

	if backendURL := viper.GetString("backend.url"); backendURL != "" {
		client := cost.NewClient(backendURL, debug)
		pipeline.RegisterSource(wrap(cost.NewBackendSource(client)))
	}

	awsProfile := viper.GetString("aws.profile")
	if awsProfile == "" {
		awsProfile = os.Getenv("AWS_PROFILE")
	}
	awsSource, err := cost.NewAWSSource(ctx, cost.AWSOptions{
		Profile:         awsProfile,
		AccessKeyID:     viper.GetString("aws.access_key_id"),
		SecretAccessKey: viper.GetString("aws.secret_access_key"),
		Region:          viper.GetString("aws.region"),
	}, debug)
	if err != nil {
		if debug {
			fmt.Fprintf(os.Stderr, "[cmd] AWS source not available: %v\n", err)
		}
	} else {
		pipeline.RegisterSource(wrap(awsSource))
	}

	return pipeline
}

func openCache(debug bool) *cost.Cache {
	path := viper.GetString("cache.path")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		dir := filepath.Join(home, ".costlens")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil
		}
		path = filepath.Join(dir, "cache.db")
	}

	ttl := time.Duration(viper.GetInt("cache.ttl_hours")) * time.Hour
	cache, err := cost.OpenCache(path, ttl, debug)
	if err != nil {
		if debug {
			fmt.Fprintf(os.Stderr, "[cmd] ledger cache unavailable: %v\n", err)
		}
		return nil
	}
	return cache
}

func resolveDateRange(start, end string) cost.DateRange {
	dates := cost.DefaultDateRange(time.Now())
	if start != "" {
		dates.Start = start
	}
	if end != "" {
		dates.End = end
	}
	if _, err := dates.Days(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid date range: %v\n", err)
		os.Exit(1)
	}
	return dates
}
