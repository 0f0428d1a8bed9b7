package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/costlens/costlens/internal/cost"
)

// maxContextRecords caps how much of the ledger is inlined into a prompt.
// Long ranges produce thousands of records; the model only needs enough to
// reason about the window around the question.
const maxContextRecords = 800

// ledgerContext renders the detailed ledger as compact JSON for prompting.
func ledgerContext(records []cost.CostRecord) string {
	truncated := false
	if len(records) > maxContextRecords {
		records = records[len(records)-maxContextRecords:]
		truncated = true
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "[]"
	}
	if truncated {
		return fmt.Sprintf("%s\n(ledger truncated to the most recent %d records)", data, maxContextRecords)
	}
	return string(data)
}

func buildExplainPrompt(anomaly cost.Anomaly, records []cost.CostRecord, provider string, dates cost.DateRange, granularity cost.Granularity) string {
	var sb strings.Builder

	sb.WriteString("You are a FinOps analyst. A cost anomaly was detected in a ")
	sb.WriteString(provider)
	sb.WriteString(" cost ledger.\n\n")

	fmt.Fprintf(&sb, "Anomaly date: %s\nObserved total: $%.2f\nExpected baseline: $%.2f\nDetector summary: %s\n\n",
		anomaly.Date, anomaly.Cost, anomaly.ExpectedCost, anomaly.Description)

	fmt.Fprintf(&sb, "Analysis window: %s to %s (chart granularity: %s).\n\n", dates.Start, dates.End, granularity)

	sb.WriteString("Detailed per-service daily cost records:\n")
	sb.WriteString(ledgerContext(records))
	sb.WriteString("\n\n")

	sb.WriteString(`Explain the likely cause of the anomaly and suggest cost-saving actions.
Respond with JSON only, no markdown, in exactly this shape:
{"anomalyDetails": "<2-4 sentence explanation>", "recommendations": [{"title": "<short title>", "description": "<1-2 sentence suggestion>"}]}
Return at most 3 recommendations.`)

	return sb.String()
}

func buildChatSystemPrompt(records []cost.CostRecord, provider string) string {
	var sb strings.Builder

	sb.WriteString("You are a cloud cost copilot. Answer questions about the user's ")
	sb.WriteString(provider)
	sb.WriteString(" spend using the cost ledger below. Be concise and concrete; quote dollar amounts and dates from the data when relevant. If the data cannot answer the question, say so.\n\n")

	sb.WriteString("Detailed per-service daily cost records:\n")
	sb.WriteString(ledgerContext(records))

	return sb.String()
}
