package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/costlens/costlens/internal/ai"
	"github.com/costlens/costlens/internal/cost"
)

// Analyzer produces the full analysis for a provider and window.
type Analyzer interface {
	Analyze(ctx context.Context, provider string, dates cost.DateRange, granularity cost.Granularity) (*cost.AnalysisData, error)
}

// Assistant is the external explanation and chat service.
type Assistant interface {
	ExplainAnomaly(ctx context.Context, anomaly cost.Anomaly, records []cost.CostRecord, provider string, dates cost.DateRange, granularity cost.Granularity) (string, []cost.Recommendation, error)
	Chat(ctx context.Context, message string, history []ai.Turn, records []cost.CostRecord, provider string) (string, error)
}

// ErrNoProvider is returned by intents that require a selected provider.
var ErrNoProvider = errors.New("no provider selected")

// ErrProviderSelected is returned when SelectProvider is called twice
// without an intervening Reset.
var ErrProviderSelected = errors.New("a provider is already selected")

// Controller is the orchestration state machine behind the dashboard. It
// owns the current snapshot, sequences fetches, anomaly-detail lookups and
// chat exchanges, and keeps one busy flag per operation kind.
//
// Every operation kind carries a monotonic sequence number. An in-flight
// call commits its result (and clears its busy flag) only if it still owns
// the latest sequence; superseded or reset calls are discarded. This
// replaces the last-writer-wins race of the reference implementation.
type Controller struct {
	mu        sync.Mutex
	pipeline  Analyzer
	assistant Assistant
	debug     bool

	state      State
	apiHistory []ai.Turn

	fetchSeq  uint64
	detailSeq uint64
	chatSeq   uint64
}

// New creates a controller in the initial state: no provider, the default
// 90-day window, the default granularity, no busy flags.
func New(pipeline Analyzer, assistant Assistant, debug bool) *Controller {
	return &Controller{
		pipeline:  pipeline,
		assistant: assistant,
		debug:     debug,
		state:     initialState(time.Now()),
	}
}

// Snapshot returns a copy of the visible state. Slices are copied so the
// presentation layer can never mutate controller-owned data.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state
	snap.CostData = append([]cost.AggregatedPoint(nil), c.state.CostData...)
	snap.DetailedCostData = append([]cost.CostRecord(nil), c.state.DetailedCostData...)
	snap.Anomalies = append([]cost.Anomaly(nil), c.state.Anomalies...)
	snap.Recommendations = append([]cost.Recommendation(nil), c.state.Recommendations...)
	snap.ChatHistory = append([]ChatMessage(nil), c.state.ChatHistory...)
	if c.state.SelectedAnomaly != nil {
		selected := *c.state.SelectedAnomaly
		snap.SelectedAnomaly = &selected
	}
	return snap
}

// SelectProvider picks the cost data provider and triggers the initial
// fetch. Valid only while no provider is selected.
func (c *Controller) SelectProvider(ctx context.Context, provider string) error {
	c.mu.Lock()
	if c.state.Provider != "" {
		c.mu.Unlock()
		return ErrProviderSelected
	}
	c.state.Provider = provider
	c.mu.Unlock()

	return c.fetch(ctx)
}

// SetDateRange updates the analysis window and re-fetches. Valid only once
// a provider is selected.
func (c *Controller) SetDateRange(ctx context.Context, start, end string) error {
	dates := cost.DateRange{Start: start, End: end}
	if _, err := dates.Days(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Provider == "" {
		c.mu.Unlock()
		return ErrNoProvider
	}
	c.state.Dates = dates
	c.mu.Unlock()

	return c.fetch(ctx)
}

// SetGranularity updates the chart granularity and re-fetches. Valid only
// once a provider is selected.
func (c *Controller) SetGranularity(ctx context.Context, g cost.Granularity) error {
	c.mu.Lock()
	if c.state.Provider == "" {
		c.mu.Unlock()
		return ErrNoProvider
	}
	c.state.Granularity = g
	c.mu.Unlock()

	return c.fetch(ctx)
}

// fetch runs one analysis round trip. It clears derived state up front,
// commits results only if it still owns the fetch sequence, and on success
// auto-selects the first anomaly using the freshly fetched ledger.
func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	provider := c.state.Provider
	dates := c.state.Dates
	granularity := c.state.Granularity

	c.state.Processing.FetchingSeries = true
	c.state.Anomalies = nil
	c.state.SelectedAnomaly = nil
	c.state.AnomalyDetails = ""
	c.state.Recommendations = nil
	c.mu.Unlock()

	data, err := c.pipeline.Analyze(ctx, provider, dates, granularity)

	c.mu.Lock()
	if seq != c.fetchSeq {
		// Superseded by a newer fetch or a reset; the result is stale and
		// the busy flag belongs to whoever owns the latest sequence.
		c.mu.Unlock()
		if c.debug {
			log.Printf("[controller] discarding stale fetch result for %s", provider)
		}
		return nil
	}
	c.state.Processing.FetchingSeries = false

	if err != nil {
		c.state.ChatHistory = append(c.state.ChatHistory, ChatMessage{
			Sender: SenderAssistant,
			Text:   fmt.Sprintf("Error fetching data: %v", err),
		})
		var dsErr *cost.DataSourceError
		if errors.As(err, &dsErr) && dsErr.Fatal() {
			// Stale provider state with a broken backend is worse than
			// re-prompting for a provider.
			c.resetLocked()
		}
		c.mu.Unlock()
		return err
	}

	c.state.DetailedCostData = data.DetailedCostData
	c.state.CostData = data.CostData
	c.state.Anomalies = data.Anomalies

	var first *cost.Anomaly
	if len(data.Anomalies) > 0 {
		anomaly := data.Anomalies[0]
		first = &anomaly
	}
	records := data.DetailedCostData
	c.mu.Unlock()

	if first != nil {
		// Auto-select with the ledger this fetch produced, not whatever is
		// current by the time the explanation resolves.
		c.explain(ctx, *first, records, provider, dates, granularity)
	}
	return nil
}

// SelectAnomaly selects an anomaly and fetches its explanation, or clears
// the selection when anomaly is nil (no network call).
func (c *Controller) SelectAnomaly(ctx context.Context, anomaly *cost.Anomaly) error {
	c.mu.Lock()
	if anomaly == nil {
		c.detailSeq++
		c.state.SelectedAnomaly = nil
		c.state.AnomalyDetails = ""
		c.state.Recommendations = nil
		c.state.Processing.FetchingAnomalyDetail = false
		c.mu.Unlock()
		return nil
	}
	if c.state.Provider == "" {
		c.mu.Unlock()
		return ErrNoProvider
	}
	provider := c.state.Provider
	dates := c.state.Dates
	granularity := c.state.Granularity
	records := c.state.DetailedCostData
	c.mu.Unlock()

	c.explain(ctx, *anomaly, records, provider, dates, granularity)
	return nil
}

// explain runs the anomaly-detail flow. Service failures are absorbed into
// the details text rather than propagated.
func (c *Controller) explain(ctx context.Context, anomaly cost.Anomaly, records []cost.CostRecord, provider string, dates cost.DateRange, granularity cost.Granularity) {
	c.mu.Lock()
	c.detailSeq++
	seq := c.detailSeq
	selected := anomaly
	c.state.SelectedAnomaly = &selected
	c.state.AnomalyDetails = ""
	c.state.Recommendations = nil
	c.state.Processing.FetchingAnomalyDetail = true
	c.mu.Unlock()

	details, recommendations, err := c.assistant.ExplainAnomaly(ctx, anomaly, records, provider, dates, granularity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.detailSeq {
		if c.debug {
			log.Printf("[controller] discarding stale explanation for %s", anomaly.Date)
		}
		return
	}
	c.state.Processing.FetchingAnomalyDetail = false

	if err != nil {
		c.state.AnomalyDetails = fmt.Sprintf("Error fetching details: %v", err)
		c.state.Recommendations = []cost.Recommendation{}
		return
	}
	c.state.AnomalyDetails = details
	c.state.Recommendations = recommendations
}

// SendMessage runs one chat exchange. The user message is appended before
// the service call and never retracted; on failure the error is rendered
// as an assistant bubble and the API transcript is left unextended. Empty
// input, an in-flight chat call or a missing provider make it a no-op.
func (c *Controller) SendMessage(ctx context.Context, message string) error {
	c.mu.Lock()
	if strings.TrimSpace(message) == "" || c.state.Processing.SendingChat || c.state.Provider == "" {
		c.mu.Unlock()
		return nil
	}

	c.state.ChatHistory = append(c.state.ChatHistory, ChatMessage{Sender: SenderUser, Text: message})
	c.state.Processing.SendingChat = true
	c.chatSeq++
	seq := c.chatSeq
	provider := c.state.Provider
	records := c.state.DetailedCostData
	history := append([]ai.Turn(nil), c.apiHistory...)
	c.mu.Unlock()

	reply, err := c.assistant.Chat(ctx, message, history, records, provider)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.chatSeq {
		if c.debug {
			log.Printf("[controller] discarding stale chat reply")
		}
		return nil
	}
	c.state.Processing.SendingChat = false

	if err != nil {
		c.state.ChatHistory = append(c.state.ChatHistory, ChatMessage{
			Sender: SenderAssistant,
			Text:   err.Error(),
		})
		return nil
	}

	c.state.ChatHistory = append(c.state.ChatHistory, ChatMessage{Sender: SenderAssistant, Text: reply})
	c.apiHistory = append(c.apiHistory,
		ai.Turn{Role: ai.RoleUser, Text: message},
		ai.Turn{Role: ai.RoleModel, Text: reply},
	)
	return nil
}

// Reset returns the controller to its initial state and invalidates every
// in-flight operation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.fetchSeq++
	c.detailSeq++
	c.chatSeq++
	c.state = initialState(time.Now())
	c.apiHistory = nil
}
