package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/costlens/costlens/internal/cost"
)

// Pipeline composes record sources with the aggregator and the anomaly
// detector. One Analyze call produces everything the presentation layer
// charts: the detailed ledger, the bucketed series and the anomalies.
type Pipeline struct {
	sources  map[string]cost.Source
	detector *Detector
	debug    bool
}

// NewPipeline creates an empty pipeline with the reference detector.
func NewPipeline(debug bool) *Pipeline {
	return &Pipeline{
		sources:  make(map[string]cost.Source),
		detector: NewDetector(),
		debug:    debug,
	}
}

// RegisterSource adds a record source under its own name. Registering a
// second source with the same name replaces the first.
func (p *Pipeline) RegisterSource(s cost.Source) {
	if s == nil {
		return
	}
	p.sources[s.Name()] = s
	if p.debug {
		log.Printf("[pipeline] registered source: %s (configured: %v)", s.Name(), s.IsConfigured())
	}
}

// Sources returns the names of registered, configured sources.
func (p *Pipeline) Sources() []string {
	var names []string
	for name, s := range p.sources {
		if s.IsConfigured() {
			names = append(names, name)
		}
	}
	return names
}

// Analyze fetches the ledger for a provider and runs aggregation at the
// requested granularity plus anomaly detection on daily totals. The
// pipeline is pure given a fixed ledger: identical inputs from a real
// source yield identical output.
func (p *Pipeline) Analyze(ctx context.Context, provider string, dates cost.DateRange, granularity cost.Granularity) (*cost.AnalysisData, error) {
	source, ok := p.sources[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if !source.IsConfigured() {
		return nil, &cost.DataSourceError{
			Source:  provider,
			Message: fmt.Sprintf("provider %s is not configured (missing credentials or backend URL)", provider),
		}
	}

	records, err := source.FetchRecords(ctx, dates)
	if err != nil {
		return nil, err
	}

	series, err := Aggregate(records, granularity)
	if err != nil {
		return nil, err
	}

	anomalies := p.detector.Detect(records)

	if p.debug {
		log.Printf("[pipeline] %s: %d records, %d buckets, %d anomalies",
			provider, len(records), len(series), len(anomalies))
	}

	return &cost.AnalysisData{
		DetailedCostData: records,
		CostData:         series,
		Anomalies:        anomalies,
	}, nil
}
