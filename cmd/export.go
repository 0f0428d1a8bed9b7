package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/costlens/costlens/internal/analysis"
	"github.com/costlens/costlens/internal/cost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	exportProvider    string
	exportStartDate   string
	exportEndDate     string
	exportGranularity string
	exportFormat      string
	exportOutput      string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportProvider, "provider", "mock", "Data provider: mock, aws, backend")
	exportCmd.Flags().StringVar(&exportStartDate, "start", "", "Start date YYYY-MM-DD (default: 89 days ago)")
	exportCmd.Flags().StringVar(&exportEndDate, "end", "", "End date YYYY-MM-DD (default: today)")
	exportCmd.Flags().StringVar(&exportGranularity, "granularity", "month", "Chart granularity: day, month, year")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Output format: csv, json, yaml (default: from file extension)")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file path (required)")
	exportCmd.MarkFlagRequired("output")
}

// exportCmd exports an analysis run to a file
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export analysis results to a file",
	Long: `Run an analysis and export the ledger, series and anomalies to a file
in CSV, JSON or YAML format.

Examples:
  costlens export --output costs.csv
  costlens export --output costs.json --provider aws
  costlens export --output costs.yaml --start 2025-05-01 --end 2025-07-31`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		debug := viper.GetBool("debug")

		granularity, err := cost.ParseGranularity(exportGranularity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dates := resolveDateRange(exportStartDate, exportEndDate)

		// Determine format from output filename if not specified
		format := exportFormat
		if format == "" {
			switch {
			case strings.HasSuffix(exportOutput, ".json"):
				format = "json"
			case strings.HasSuffix(exportOutput, ".yaml"), strings.HasSuffix(exportOutput, ".yml"):
				format = "yaml"
			default:
				format = "csv"
			}
		}

		pipeline := buildPipeline(ctx, debug, false)
		data, err := pipeline.Analyze(ctx, exportProvider, dates, granularity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running analysis: %v\n", err)
			os.Exit(1)
		}

		exporter := analysis.NewExporter()
		if err := exporter.ExportToFile(data, format, exportOutput); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting data: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Analysis exported to: %s\n", exportOutput)
	},
}
