package analysis

import (
	"fmt"
	"strings"

	"github.com/costlens/costlens/internal/cost"
)

// Detector scans the raw ledger for days whose total spend crosses a
// significance floor. Detection always runs on daily totals, independent
// of the chart granularity.
type Detector struct {
	// Threshold is the significance floor in currency units. Days with a
	// total at or below it are noise, not anomalies. This is a floor to
	// exclude near-zero days, not a statistical test.
	Threshold float64

	// MaxAnomalies caps the result. Qualifying days are kept in the order
	// they appear in the ledger and truncated at the cap, matching the
	// reference service; the largest anomaly can be dropped when more than
	// MaxAnomalies days qualify earlier in the ledger.
	MaxAnomalies int

	// BaselineRatio derives the expected cost from the observed total.
	// A placeholder, not a forecast: expected = ratio * observed, so the
	// observed cost always exceeds its own baseline. TODO: replace with a
	// trailing-average baseline once the hosted API exposes one.
	BaselineRatio float64
}

// NewDetector returns a Detector with the reference thresholds.
func NewDetector() *Detector {
	return &Detector{
		Threshold:     1.0,
		MaxAnomalies:  5,
		BaselineRatio: 0.6,
	}
}

type dayTotal struct {
	date     string
	cost     float64
	services []string
}

// Detect groups records by day and returns the qualifying days, capped at
// MaxAnomalies, each with a derived baseline and generated description.
func (d *Detector) Detect(records []cost.CostRecord) []cost.Anomaly {
	byDate := make(map[string]*dayTotal)
	var order []string

	for _, r := range records {
		day, ok := byDate[r.Date]
		if !ok {
			day = &dayTotal{date: r.Date}
			byDate[r.Date] = day
			order = append(order, r.Date)
		}
		day.cost += r.Cost
		if !contains(day.services, r.Service) {
			day.services = append(day.services, r.Service)
		}
	}

	anomalies := []cost.Anomaly{}
	for _, date := range order {
		day := byDate[date]
		if day.cost <= d.Threshold {
			continue
		}
		if len(anomalies) >= d.MaxAnomalies {
			break
		}

		expected := day.cost * d.BaselineRatio
		anomalies = append(anomalies, cost.Anomaly{
			Date:         day.date,
			Cost:         cost.Round2(day.cost),
			ExpectedCost: cost.Round2(expected),
			Description:  describe(day, expected),
		})
	}

	return anomalies
}

func describe(day *dayTotal, expected float64) string {
	names := day.services
	suffix := ""
	if len(names) > 2 {
		names = names[:2]
		suffix = " and others"
	}
	return fmt.Sprintf("Unusually high spend of $%.2f detected on %s%s. Forecast was $%.2f.",
		day.cost, strings.Join(names, ", "), suffix, expected)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
