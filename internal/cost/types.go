package cost

import (
	"fmt"
	"math"
	"time"
)

// DateFormat is the wire format for calendar days (ISO 8601, UTC).
const DateFormat = "2006-01-02"

// Granularity is the time-bucket size used for the charted series.
// Anomaly detection always runs on daily totals regardless of this value.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity validates a user-supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDay, GranularityMonth, GranularityYear:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("invalid granularity %q (want day, month or year)", s)
	}
}

// CostRecord is a single per-service, per-day ledger entry. Records are
// immutable once produced; many records share a date and service.
type CostRecord struct {
	Date    string  `json:"date"` // YYYY-MM-DD, UTC
	Service string  `json:"service"`
	Cost    float64 `json:"cost"`
	Region  string  `json:"region"`
}

// AggregatedPoint is one bucket of the charted series. The date is pinned
// to the first day of its bucket (month buckets to the 1st, year buckets
// to January 1).
type AggregatedPoint struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// Anomaly is a calendar day whose total spend crossed the significance
// floor, paired with a heuristic baseline and a generated description.
type Anomaly struct {
	Date         string  `json:"date"`
	Cost         float64 `json:"cost"`
	ExpectedCost float64 `json:"expectedCost"`
	Description  string  `json:"description"`
}

// Recommendation is a cost-saving suggestion produced by the explanation
// service. Opaque to the pipeline.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AnalysisData bundles everything one analysis run produces: the ungrouped
// ledger, the granularity-bucketed series and the detected anomalies.
type AnalysisData struct {
	DetailedCostData []CostRecord      `json:"detailedCostData"`
	CostData         []AggregatedPoint `json:"costData"`
	Anomalies        []Anomaly         `json:"anomalies"`
}

// DateRange is an inclusive [Start, End] window of calendar days.
type DateRange struct {
	Start string `json:"startDate"`
	End   string `json:"endDate"`
}

// Days returns the number of calendar days the range covers, or an error
// when either bound is malformed or the range is inverted.
func (r DateRange) Days() (int, error) {
	start, err := time.Parse(DateFormat, r.Start)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", r.Start, err)
	}
	end, err := time.Parse(DateFormat, r.End)
	if err != nil {
		return 0, fmt.Errorf("invalid end date %q: %w", r.End, err)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("end date %s precedes start date %s", r.End, r.Start)
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// DefaultDateRange returns the default analysis window: today and the 89
// days before it, in UTC.
func DefaultDateRange(now time.Time) DateRange {
	end := now.UTC()
	start := end.AddDate(0, 0, -89)
	return DateRange{
		Start: start.Format(DateFormat),
		End:   end.Format(DateFormat),
	}
}

// Round2 rounds a cost to 2 decimal places. Accumulation keeps full
// precision; rounding happens only at output boundaries.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
