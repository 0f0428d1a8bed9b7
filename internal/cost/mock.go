package cost

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// mockService describes one synthetic service line in the demo ledger.
type mockService struct {
	name        string
	baseCost    float64
	fluctuation float64
}

var mockServices = []mockService{
	{name: "Amazon EC2", baseCost: 50, fluctuation: 20},
	{name: "Amazon S3", baseCost: 15, fluctuation: 5},
	{name: "Amazon RDS", baseCost: 25, fluctuation: 10},
	{name: "AWS Lambda", baseCost: 5, fluctuation: 3},
}

// Spike multipliers applied on the injected anomaly day.
const (
	mockEC2Spike = 3.5
	mockS3Spike  = 1.8
)

// MockSource generates a synthetic daily ledger for demos. Costs fluctuate
// randomly around a fixed base per service, and one day near the end of the
// range carries an amplified EC2/S3 spend so at least one anomaly always
// exists. It stands in for a real provider behind the same Source interface.
type MockSource struct {
	rng   *rand.Rand
	debug bool
}

// NewMockSource creates a demo source. A zero seed derives one from the
// clock; tests pass a fixed seed for reproducible ledgers.
func NewMockSource(seed int64, debug bool) *MockSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{
		rng:   rand.New(rand.NewSource(seed)),
		debug: debug,
	}
}

// Name returns the source identifier.
func (s *MockSource) Name() string {
	return "mock"
}

// IsConfigured always returns true; the demo source needs no credentials.
func (s *MockSource) IsConfigured() bool {
	return true
}

// FetchRecords generates the synthetic ledger covering the range.
func (s *MockSource) FetchRecords(ctx context.Context, dates DateRange) ([]CostRecord, error) {
	days, err := dates.Days()
	if err != nil {
		return nil, &DataSourceError{Source: s.Name(), Message: err.Error(), Err: err}
	}

	start, _ := time.Parse(DateFormat, dates.Start)

	// The spike lands roughly 7 days before the end of the range, or 2
	// days in when the range is shorter than that.
	spikeOffset := days - 7
	if spikeOffset < 2 {
		spikeOffset = 2
	}
	spikeDate := start.AddDate(0, 0, spikeOffset-1).Format(DateFormat)

	if s.debug {
		log.Printf("[mock] generating %d days of demo data, spike on %s", days, spikeDate)
	}

	records := make([]CostRecord, 0, days*len(mockServices))
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(DateFormat)
		for _, svc := range mockServices {
			amount := svc.baseCost + (s.rng.Float64()-0.5)*svc.fluctuation
			if date == spikeDate {
				switch svc.name {
				case "Amazon EC2":
					amount *= mockEC2Spike
				case "Amazon S3":
					amount *= mockS3Spike
				}
			}
			records = append(records, CostRecord{
				Date:    date,
				Service: svc.name,
				Cost:    Round2(amount),
				Region:  "us-east-1",
			})
		}
	}

	return records, nil
}
