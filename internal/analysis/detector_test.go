package analysis

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/costlens/costlens/internal/cost"
)

func TestDetectBelowThreshold(t *testing.T) {
	records := []cost.CostRecord{
		{Date: "2025-01-01", Service: "AWS Lambda", Cost: 0.40},
		{Date: "2025-01-01", Service: "Amazon S3", Cost: 0.60},
		{Date: "2025-01-02", Service: "AWS Lambda", Cost: 0.99},
	}

	anomalies := NewDetector().Detect(records)
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies at or below the threshold, got %d", len(anomalies))
	}
}

func TestDetectThresholdAndBaseline(t *testing.T) {
	records := []cost.CostRecord{
		{Date: "2025-01-01", Service: "Amazon EC2", Cost: 100},
		{Date: "2025-01-01", Service: "Amazon S3", Cost: 23.45},
		{Date: "2025-01-02", Service: "AWS Lambda", Cost: 0.50},
	}

	anomalies := NewDetector().Detect(records)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}

	a := anomalies[0]
	if a.Date != "2025-01-01" {
		t.Errorf("expected date 2025-01-01, got %s", a.Date)
	}
	if math.Abs(a.Cost-123.45) > 0.005 {
		t.Errorf("expected cost 123.45, got %.2f", a.Cost)
	}
	if math.Abs(a.ExpectedCost-74.07) > 0.005 {
		t.Errorf("expected baseline 74.07, got %.2f", a.ExpectedCost)
	}
	want := "Unusually high spend of $123.45 detected on Amazon EC2, Amazon S3. Forecast was $74.07."
	if a.Description != want {
		t.Errorf("description mismatch:\n  want %q\n  got  %q", want, a.Description)
	}
}

func TestDetectBaselineRatioHolds(t *testing.T) {
	var records []cost.CostRecord
	for i := 1; i <= 4; i++ {
		records = append(records, cost.CostRecord{
			Date:    fmt.Sprintf("2025-02-0%d", i),
			Service: "Amazon EC2",
			Cost:    float64(i) * 17.77,
		})
	}

	for _, a := range NewDetector().Detect(records) {
		if a.Cost <= 1.0 {
			t.Errorf("%s: anomaly below significance floor: %.2f", a.Date, a.Cost)
		}
		want := cost.Round2(0.6 * a.Cost)
		if math.Abs(a.ExpectedCost-want) > 0.01 {
			t.Errorf("%s: expected baseline %.2f, got %.2f", a.Date, want, a.ExpectedCost)
		}
		if a.ExpectedCost > a.Cost {
			t.Errorf("%s: baseline %.2f exceeds observed %.2f", a.Date, a.ExpectedCost, a.Cost)
		}
	}
}

func TestDetectCapIsPositional(t *testing.T) {
	// 8 qualifying days; the largest spend lands on the last day and is
	// dropped by position-based truncation.
	var records []cost.CostRecord
	for i := 1; i <= 8; i++ {
		costAmount := 10.0
		if i == 8 {
			costAmount = 10000.0
		}
		records = append(records, cost.CostRecord{
			Date:    fmt.Sprintf("2025-03-0%d", i),
			Service: "Amazon EC2",
			Cost:    costAmount,
		})
	}

	anomalies := NewDetector().Detect(records)
	if len(anomalies) != 5 {
		t.Fatalf("expected cap of 5 anomalies, got %d", len(anomalies))
	}
	for i, a := range anomalies {
		want := fmt.Sprintf("2025-03-0%d", i+1)
		if a.Date != want {
			t.Errorf("anomaly %d: expected %s, got %s", i, want, a.Date)
		}
	}
}

func TestDetectServiceSummary(t *testing.T) {
	records := []cost.CostRecord{
		{Date: "2025-04-01", Service: "Amazon EC2", Cost: 50},
		{Date: "2025-04-01", Service: "Amazon S3", Cost: 20},
		{Date: "2025-04-01", Service: "Amazon RDS", Cost: 30},
		{Date: "2025-04-01", Service: "Amazon EC2", Cost: 10}, // duplicate service
	}

	anomalies := NewDetector().Detect(records)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}

	desc := anomalies[0].Description
	if !strings.Contains(desc, "Amazon EC2, Amazon S3 and others") {
		t.Errorf("expected first two distinct services plus summary, got %q", desc)
	}
	if strings.Contains(desc, "Amazon RDS") {
		t.Errorf("third service should be summarized, got %q", desc)
	}
}

func TestDetectGroupsByDayRegardlessOfRegion(t *testing.T) {
	records := []cost.CostRecord{
		{Date: "2025-05-05", Service: "Amazon EC2", Cost: 0.70, Region: "us-east-1"},
		{Date: "2025-05-05", Service: "Amazon EC2", Cost: 0.70, Region: "eu-west-1"},
	}

	anomalies := NewDetector().Detect(records)
	if len(anomalies) != 1 {
		t.Fatalf("expected regions to collapse into one daily total, got %d anomalies", len(anomalies))
	}
	if math.Abs(anomalies[0].Cost-1.40) > 0.005 {
		t.Errorf("expected combined cost 1.40, got %.2f", anomalies[0].Cost)
	}
}
