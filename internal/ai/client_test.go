package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/costlens/costlens/internal/cost"
)

func testClient(provider, baseURL string) *Client {
	return &Client{
		provider:   provider,
		apiKey:     "test-key",
		model:      defaultModel(provider),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func testAnomaly() cost.Anomaly {
	return cost.Anomaly{
		Date:         "2025-01-15",
		Cost:         210.50,
		ExpectedCost: 126.30,
		Description:  "Unusually high spend of $210.50 detected on Amazon EC2. Forecast was $126.30.",
	}
}

func testDates() cost.DateRange {
	return cost.DateRange{Start: "2025-01-01", End: "2025-01-31"}
}

func openAIReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := openAIResponse{}
	resp.Choices = append(resp.Choices, struct {
		Message openAIMessage `json:"message"`
	}{Message: openAIMessage{Role: "assistant", Content: content}})
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("failed to encode reply: %v", err)
	}
}

func TestExplainAnomalyParsesFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("expected a single user message, got %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[0].Content, "2025-01-15") {
			t.Error("prompt missing the anomaly date")
		}

		openAIReply(t, w, "```json\n{\"anomalyDetails\": \"EC2 fleet doubled.\", \"recommendations\": [{\"title\": \"Scale in\", \"description\": \"Drop idle instances.\"}]}\n```")
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	details, recs, err := client.ExplainAnomaly(context.Background(), testAnomaly(), nil, "mock", testDates(), cost.GranularityDay)
	if err != nil {
		t.Fatalf("ExplainAnomaly failed: %v", err)
	}
	if details != "EC2 fleet doubled." {
		t.Errorf("unexpected details %q", details)
	}
	if len(recs) != 1 || recs[0].Title != "Scale in" {
		t.Errorf("unexpected recommendations %+v", recs)
	}
}

func TestExplainAnomalyMissingRecommendations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		openAIReply(t, w, `{"anomalyDetails": "Spend tracked usage."}`)
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	_, recs, err := client.ExplainAnomaly(context.Background(), testAnomaly(), nil, "mock", testDates(), cost.GranularityDay)
	if err != nil {
		t.Fatalf("ExplainAnomaly failed: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("expected empty (not nil) recommendations, got %+v", recs)
	}
}

func TestExplainAnomalyMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		openAIReply(t, w, "Sure! The spike was caused by EC2.")
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	_, _, err := client.ExplainAnomaly(context.Background(), testAnomaly(), nil, "mock", testDates(), cost.GranularityDay)

	var svcErr *ExplanationServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *ExplanationServiceError, got %v", err)
	}
	if svcErr.Provider != "openai" {
		t.Errorf("unexpected provider %q", svcErr.Provider)
	}
}

func TestExplainAnomalyUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	_, _, err := client.ExplainAnomaly(context.Background(), testAnomaly(), nil, "mock", testDates(), cost.GranularityDay)

	var svcErr *ExplanationServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *ExplanationServiceError, got %v", err)
	}
}

func TestChatMapsRolesForOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		wantRoles := []string{"system", "user", "assistant", "user"}
		if len(req.Messages) != len(wantRoles) {
			t.Fatalf("expected %d messages, got %+v", len(wantRoles), req.Messages)
		}
		for i, want := range wantRoles {
			if req.Messages[i].Role != want {
				t.Errorf("message %d: expected role %s, got %s", i, want, req.Messages[i].Role)
			}
		}
		if req.Messages[len(req.Messages)-1].Content != "what changed?" {
			t.Errorf("last message should carry the new input, got %q", req.Messages[len(req.Messages)-1].Content)
		}

		openAIReply(t, w, "EC2 usage doubled on the 15th.")
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	history := []Turn{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleModel, Text: "hello"},
	}
	reply, err := client.Chat(context.Background(), "what changed?", history, nil, "mock")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "EC2 usage doubled on the 15th." {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestChatErrorWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient("openai", server.URL)
	_, err := client.Chat(context.Background(), "hello", nil, nil, "mock")

	var svcErr *ChatServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *ChatServiceError, got %v", err)
	}
	if !strings.Contains(svcErr.Error(), "quota exceeded") {
		t.Errorf("error should surface the upstream cause, got %q", svcErr.Error())
	}
}

func TestAnthropicRequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected version header %q", got)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.System == "" {
			t.Error("system prompt missing from the dedicated field")
		}
		if req.MaxTokens != 4000 {
			t.Errorf("unexpected max_tokens %d", req.MaxTokens)
		}
		wantRoles := []string{"user", "assistant", "user"}
		if len(req.Messages) != len(wantRoles) {
			t.Fatalf("expected %d messages, got %+v", len(wantRoles), req.Messages)
		}
		for i, want := range wantRoles {
			if req.Messages[i].Role != want {
				t.Errorf("message %d: expected role %s, got %s", i, want, req.Messages[i].Role)
			}
		}

		resp := anthropicResponse{}
		resp.Content = append(resp.Content, struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "text", Text: "done"})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := testClient("anthropic", server.URL)
	history := []Turn{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleModel, Text: "hello"},
	}
	reply, err := client.Chat(context.Background(), "status?", history, nil, "mock")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "done" {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `{"a": 1}`, want: `{"a": 1}`},
		{name: "fenced", input: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "fenced with language", input: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounding whitespace", input: "  \n{\"a\": 1}\n  ", want: `{"a": 1}`},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.input); got != tt.want {
				t.Errorf("cleanJSONResponse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("COSTLENS_TEST_KEY", "resolved-secret")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "literal key", input: "sk-abc123", want: "sk-abc123"},
		{name: "env var name", input: "COSTLENS_TEST_KEY", want: "resolved-secret"},
		{name: "unset env var passes through", input: "COSTLENS_UNSET_VAR", want: "COSTLENS_UNSET_VAR"},
		{name: "short caps stay literal", input: "ABC", want: "ABC"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveAPIKey(tt.input); got != tt.want {
				t.Errorf("resolveAPIKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultModel(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{provider: "gemini", want: "gemini-2.5-flash"},
		{provider: "gemini-api", want: "gemini-2.5-flash"},
		{provider: "anthropic", want: "claude-sonnet-4-20250514"},
		{provider: "deepseek", want: "deepseek-chat"},
		{provider: "openai", want: "gpt-4o-mini"},
		{provider: "", want: "gpt-4o-mini"},
	}

	for _, tt := range tests {
		if got := defaultModel(tt.provider); got != tt.want {
			t.Errorf("defaultModel(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}
