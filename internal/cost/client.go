package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for the hosted cost-analysis backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	debug      bool
}

// NewClient creates a new backend client.
func NewClient(baseURL string, debug bool) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		debug: debug,
	}
}

// GetAnalysis fetches the analysis payload for a date range. Non-2xx
// responses and malformed bodies surface as *DataSourceError.
func (c *Client) GetAnalysis(ctx context.Context, dates DateRange, granularity Granularity) (*AnalysisData, error) {
	params := url.Values{}
	params.Set("startDate", dates.Start)
	params.Set("endDate", dates.End)
	params.Set("granularity", string(granularity))

	reqURL := c.baseURL + "/analysis?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &DataSourceError{Source: "backend", Message: fmt.Sprintf("failed to create request: %v", err), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if c.debug {
		log.Printf("[cost] GET /analysis?%s", params.Encode())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DataSourceError{Source: "backend", Message: fmt.Sprintf("backend unreachable: %v", err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DataSourceError{Source: "backend", Message: fmt.Sprintf("failed to read response body: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DataSourceError{
			Source:     "backend",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("backend returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var data AnalysisData
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, &DataSourceError{Source: "backend", Message: fmt.Sprintf("failed to parse response: %v", err), Err: err}
	}

	return &data, nil
}

// BackendSource adapts Client to the Source interface. The backend's own
// aggregates are ignored; only the detailed ledger flows downstream so the
// local pipeline stays the single source of truth for series and anomalies.
type BackendSource struct {
	client *Client
}

// NewBackendSource creates a Source backed by the hosted analysis API.
func NewBackendSource(client *Client) *BackendSource {
	return &BackendSource{client: client}
}

// Name returns the source identifier.
func (s *BackendSource) Name() string {
	return "backend"
}

// IsConfigured reports whether a base URL was provided.
func (s *BackendSource) IsConfigured() bool {
	return s.client != nil && s.client.baseURL != ""
}

// FetchRecords returns the backend's detailed ledger for the range.
func (s *BackendSource) FetchRecords(ctx context.Context, dates DateRange) ([]CostRecord, error) {
	data, err := s.client.GetAnalysis(ctx, dates, GranularityDay)
	if err != nil {
		return nil, err
	}
	return data.DetailedCostData, nil
}
