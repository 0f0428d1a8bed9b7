package cost

import "context"

// Source supplies the raw per-service daily ledger for a date range.
// Implementations must return records inside [start, end] only and must
// surface failures as *DataSourceError so callers can classify them.
type Source interface {
	// Name returns the source identifier (mock, aws, backend).
	Name() string

	// IsConfigured returns true if the source has what it needs to run.
	IsConfigured() bool

	// FetchRecords returns the detailed cost ledger for the range.
	FetchRecords(ctx context.Context, dates DateRange) ([]CostRecord, error)
}
