package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/costlens/costlens/internal/cost"
	"gopkg.in/yaml.v3"
)

// Exporter writes analysis results to files.
type Exporter struct{}

// NewExporter creates a new exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// ExportToFile writes an analysis run in the given format (csv, json, yaml).
func (e *Exporter) ExportToFile(data *cost.AnalysisData, format, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var content []byte
	var err error

	switch format {
	case "json":
		content, err = json.MarshalIndent(data, "", "  ")
	case "yaml":
		content, err = yaml.Marshal(data)
	case "csv":
		content, err = e.toCSV(data)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// toCSV flattens the detailed ledger, one record per row, with the
// aggregated series and anomalies appended as separate sections.
func (e *Exporter) toCSV(data *cost.AnalysisData) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{"Date", "Service", "Region", "Cost"})
	for _, r := range data.DetailedCostData {
		w.Write([]string{r.Date, r.Service, r.Region, fmt.Sprintf("%.2f", r.Cost)})
	}

	w.Write([]string{})
	w.Write([]string{"Bucket", "Total Cost"})
	for _, p := range data.CostData {
		w.Write([]string{p.Date, fmt.Sprintf("%.2f", p.Cost)})
	}

	if len(data.Anomalies) > 0 {
		w.Write([]string{})
		w.Write([]string{"Anomaly Date", "Cost", "Expected Cost", "Description"})
		for _, a := range data.Anomalies {
			w.Write([]string{a.Date, fmt.Sprintf("%.2f", a.Cost), fmt.Sprintf("%.2f", a.ExpectedCost), a.Description})
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return []byte(sb.String()), nil
}
