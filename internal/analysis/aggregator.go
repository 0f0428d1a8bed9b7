package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/costlens/costlens/internal/cost"
)

// Aggregate buckets the ledger by the requested granularity and sums costs
// per bucket, collapsing the service and region dimensions. Bucket dates
// are derived in UTC: day keeps the record's date, month pins to the first
// of the month, year pins to January 1. Output is sorted ascending by the
// bucket's chronological value, with costs rounded to 2 decimals only at
// the edge; accumulation keeps full precision.
func Aggregate(records []cost.CostRecord, granularity cost.Granularity) ([]cost.AggregatedPoint, error) {
	if len(records) == 0 {
		return []cost.AggregatedPoint{}, nil
	}

	totals := make(map[time.Time]float64)
	for _, r := range records {
		day, err := time.ParseInLocation(cost.DateFormat, r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid record date %q: %w", r.Date, err)
		}
		totals[bucketOf(day, granularity)] += r.Cost
	}

	buckets := make([]time.Time, 0, len(totals))
	for b := range totals {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Before(buckets[j])
	})

	points := make([]cost.AggregatedPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, cost.AggregatedPoint{
			Date: b.Format(cost.DateFormat),
			Cost: cost.Round2(totals[b]),
		})
	}
	return points, nil
}

func bucketOf(day time.Time, granularity cost.Granularity) time.Time {
	switch granularity {
	case cost.GranularityYear:
		return time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case cost.GranularityMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}
