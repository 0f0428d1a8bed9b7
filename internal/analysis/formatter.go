package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/costlens/costlens/internal/cost"
)

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Formatter renders analysis results for the terminal.
type Formatter struct {
	format string
	color  bool
}

// NewFormatter creates a new formatter. Format is "table" or "json".
func NewFormatter(format string, color bool) *Formatter {
	return &Formatter{
		format: format,
		color:  color,
	}
}

// FormatAnalysis formats a full analysis run.
func (f *Formatter) FormatAnalysis(provider string, dates cost.DateRange, granularity cost.Granularity, data *cost.AnalysisData) (string, error) {
	if f.format == "json" {
		return f.toJSON(data)
	}

	var sb strings.Builder

	sb.WriteString(f.header(fmt.Sprintf("Cost Analysis: %s", provider)))
	sb.WriteString(fmt.Sprintf("Period: %s to %s (%s buckets)\n\n", dates.Start, dates.End, granularity))

	var total float64
	for _, p := range data.CostData {
		total += p.Cost
	}
	sb.WriteString(f.bold(fmt.Sprintf("Total Cost: %s$%.2f%s\n\n", colorGreen, total, colorReset)))

	sb.WriteString(f.subheader("Spend Series"))
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCOST")
	fmt.Fprintln(w, "----\t----")
	for _, p := range data.CostData {
		fmt.Fprintf(w, "%s\t$%.2f\n", p.Date, p.Cost)
	}
	w.Flush()
	sb.WriteString("\n")

	sb.WriteString(f.subheader("Anomalies"))
	if len(data.Anomalies) == 0 {
		sb.WriteString("No anomalies detected.\n")
	} else {
		for i, a := range data.Anomalies {
			sb.WriteString(fmt.Sprintf("%d. %s%s%s  observed $%.2f, expected $%.2f\n",
				i+1, f.maybe(colorYellow), a.Date, f.maybe(colorReset), a.Cost, a.ExpectedCost))
			sb.WriteString(fmt.Sprintf("   %s\n", a.Description))
		}
	}

	return sb.String(), nil
}

// FormatRecommendations formats an explanation with its recommendations.
func (f *Formatter) FormatRecommendations(details string, recommendations []cost.Recommendation) (string, error) {
	if f.format == "json" {
		return f.toJSON(map[string]interface{}{
			"anomalyDetails":  details,
			"recommendations": recommendations,
		})
	}

	var sb strings.Builder
	sb.WriteString(f.subheader("Explanation"))
	sb.WriteString(details)
	sb.WriteString("\n")
	if len(recommendations) > 0 {
		sb.WriteString("\n")
		sb.WriteString(f.subheader("Recommendations"))
		for _, r := range recommendations {
			sb.WriteString(fmt.Sprintf("- %s%s%s: %s\n", f.maybe(colorBold), r.Title, f.maybe(colorReset), r.Description))
		}
	}
	return sb.String(), nil
}

// Print writes formatted output to stdout.
func (f *Formatter) Print(output string) {
	fmt.Fprint(os.Stdout, output)
}

func (f *Formatter) toJSON(data interface{}) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

func (f *Formatter) header(s string) string {
	if !f.color {
		return s + "\n" + strings.Repeat("=", len(s)) + "\n"
	}
	return colorBold + colorCyan + s + colorReset + "\n" + strings.Repeat("=", len(s)) + "\n"
}

func (f *Formatter) subheader(s string) string {
	if !f.color {
		return s + "\n"
	}
	return colorBold + s + colorReset + "\n"
}

func (f *Formatter) bold(s string) string {
	if !f.color {
		return stripColors(s)
	}
	return colorBold + s + colorReset
}

func (f *Formatter) maybe(code string) string {
	if !f.color {
		return ""
	}
	return code
}

func stripColors(s string) string {
	for _, code := range []string{colorReset, colorRed, colorGreen, colorYellow, colorCyan, colorBold} {
		s = strings.ReplaceAll(s, code, "")
	}
	return s
}
