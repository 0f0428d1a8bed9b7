package controller

import (
	"time"

	"github.com/costlens/costlens/internal/cost"
)

// Chat message senders as rendered in the transcript.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ChatMessage is one bubble of the visible chat transcript. The list is
// append-only from the controller's perspective.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ProcessingState holds one busy flag per asynchronous operation kind.
// The flags are independent: a chat call may proceed while a fetch is
// outstanding.
type ProcessingState struct {
	FetchingSeries        bool `json:"fetchingSeries"`
	FetchingAnomalyDetail bool `json:"fetchingAnomalyDetail"`
	SendingChat           bool `json:"sendingChat"`
}

// DefaultGranularity is the chart granularity a fresh session starts with.
const DefaultGranularity = cost.GranularityMonth

// State is the read-only snapshot handed to the presentation layer. An
// empty Provider means no provider is selected yet.
type State struct {
	Provider         string                `json:"provider"`
	Dates            cost.DateRange        `json:"dates"`
	Granularity      cost.Granularity      `json:"granularity"`
	CostData         []cost.AggregatedPoint `json:"costData"`
	DetailedCostData []cost.CostRecord     `json:"detailedCostData"`
	Anomalies        []cost.Anomaly        `json:"anomalies"`
	SelectedAnomaly  *cost.Anomaly         `json:"selectedAnomaly,omitempty"`
	AnomalyDetails   string                `json:"anomalyDetails"`
	Recommendations  []cost.Recommendation `json:"recommendations"`
	ChatHistory      []ChatMessage         `json:"chatHistory"`
	Processing       ProcessingState       `json:"processing"`
}

func initialState(now time.Time) State {
	return State{
		Dates:       cost.DefaultDateRange(now),
		Granularity: DefaultGranularity,
	}
}
