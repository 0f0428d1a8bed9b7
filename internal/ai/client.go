package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/costlens/costlens/internal/cost"
	"github.com/spf13/viper"
	"google.golang.org/genai"
)

// Turn is one entry of the API-formatted chat transcript. Role is "user"
// or "model"; the controller owns the transcript and only appends turns
// for exchanges the service actually completed.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Client talks to the configured LLM provider for anomaly explanations and
// chat. Gemini goes through the genai SDK; openai, anthropic and deepseek
// go through their HTTP APIs directly.
type Client struct {
	provider     string
	apiKey       string
	model        string
	baseURL      string
	geminiClient *genai.Client
	httpClient   *http.Client
	debug        bool
}

func looksLikeEnvVarName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return false
	}
	// Must be all caps/underscores/digits and start with a letter.
	for i, r := range s {
		if i == 0 {
			if r < 'A' || r > 'Z' {
				return false
			}
			continue
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

// resolveAPIKey lets config values point at an environment variable instead
// of embedding the key itself.
func resolveAPIKey(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || !looksLikeEnvVarName(apiKey) {
		return apiKey
	}
	if v := strings.TrimSpace(os.Getenv(apiKey)); v != "" {
		return v
	}
	return apiKey
}

func defaultModel(provider string) string {
	switch provider {
	case "gemini", "gemini-api":
		return "gemini-2.5-flash"
	case "anthropic":
		return "claude-sonnet-4-20250514"
	case "deepseek":
		return "deepseek-chat"
	default:
		return "gpt-4o-mini"
	}
}

// NewClient creates an AI client for the given provider. An empty model
// picks a provider-appropriate default.
func NewClient(ctx context.Context, provider, apiKey, model string, debug bool) *Client {
	client := &Client{
		provider:   provider,
		apiKey:     resolveAPIKey(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		debug:      debug,
	}
	if client.model == "" {
		client.model = defaultModel(provider)
	}

	switch provider {
	case "gemini":
		// Application Default Credentials, same as the gemini CLI.
		geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{})
		if err == nil {
			client.geminiClient = geminiClient
		} else if debug {
			log.Printf("[ai] gemini client init failed: %v", err)
		}
	case "gemini-api":
		geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: client.apiKey})
		if err == nil {
			client.geminiClient = geminiClient
		} else if debug {
			log.Printf("[ai] gemini client init failed: %v", err)
		}
	case "anthropic":
		client.baseURL = "https://api.anthropic.com/v1"
	case "deepseek":
		client.baseURL = "https://api.deepseek.com/v1"
	default:
		client.provider = "openai"
		client.baseURL = "https://api.openai.com/v1"
	}

	return client
}

// NewClientFromConfig builds a client from viper configuration:
// ai.provider, ai.model and ai.providers.<provider>.api_key(_env).
func NewClientFromConfig(ctx context.Context, debug bool) *Client {
	provider := viper.GetString("ai.provider")
	if provider == "" {
		provider = "gemini-api"
	}

	apiKey := viper.GetString(fmt.Sprintf("ai.providers.%s.api_key", provider))
	if apiKey == "" {
		if envName := viper.GetString(fmt.Sprintf("ai.providers.%s.api_key_env", provider)); envName != "" {
			apiKey = os.Getenv(envName)
		}
	}

	return NewClient(ctx, provider, apiKey, viper.GetString("ai.model"), debug)
}

// Provider returns the active provider name.
func (c *Client) Provider() string {
	return c.provider
}

type explainResponse struct {
	AnomalyDetails  string                `json:"anomalyDetails"`
	Recommendations []cost.Recommendation `json:"recommendations"`
}

// ExplainAnomaly asks the model why a day's spend spiked, grounded in the
// detailed ledger. Returns the explanation text and recommendations, or an
// *ExplanationServiceError.
func (c *Client) ExplainAnomaly(ctx context.Context, anomaly cost.Anomaly, records []cost.CostRecord, provider string, dates cost.DateRange, granularity cost.Granularity) (string, []cost.Recommendation, error) {
	prompt := buildExplainPrompt(anomaly, records, provider, dates, granularity)

	raw, err := c.generate(ctx, "", []Turn{{Role: RoleUser, Text: prompt}})
	if err != nil {
		return "", nil, &ExplanationServiceError{Provider: c.provider, Err: err}
	}

	var parsed explainResponse
	if err := json.Unmarshal([]byte(cleanJSONResponse(raw)), &parsed); err != nil {
		return "", nil, &ExplanationServiceError{
			Provider: c.provider,
			Err:      fmt.Errorf("failed to parse explanation response: %w", err),
		}
	}
	if parsed.Recommendations == nil {
		parsed.Recommendations = []cost.Recommendation{}
	}

	return parsed.AnomalyDetails, parsed.Recommendations, nil
}

// Chat sends a user message with the prior API transcript and ledger
// context, returning the assistant reply or a *ChatServiceError.
func (c *Client) Chat(ctx context.Context, message string, history []Turn, records []cost.CostRecord, provider string) (string, error) {
	system := buildChatSystemPrompt(records, provider)

	turns := make([]Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: RoleUser, Text: message})

	reply, err := c.generate(ctx, system, turns)
	if err != nil {
		return "", &ChatServiceError{Provider: c.provider, Err: err}
	}
	return reply, nil
}

// generate dispatches a multi-turn exchange to the active provider.
func (c *Client) generate(ctx context.Context, system string, turns []Turn) (string, error) {
	if c.debug {
		log.Printf("[ai] %s/%s: %d turns", c.provider, c.model, len(turns))
	}

	switch c.provider {
	case "gemini", "gemini-api":
		return c.generateGemini(ctx, system, turns)
	case "anthropic":
		return c.generateAnthropic(ctx, system, turns)
	default:
		return c.generateOpenAI(ctx, system, turns)
	}
}

func (c *Client) generateGemini(ctx context.Context, system string, turns []Turn) (string, error) {
	if c.geminiClient == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	var contents []*genai.Content
	if system != "" {
		// Gemini has no separate system slot in this call shape; prepend
		// the context as the opening user turn.
		contents = append(contents, genai.NewContentFromText(system, genai.RoleUser))
	}
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	resp, err := c.geminiClient.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.WriteString(part.Text)
		}
	}
	return result.String(), nil
}

func (c *Client) generateOpenAI(ctx context.Context, system string, turns []Turn) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%s API key not configured", c.provider)
	}

	messages := make([]openAIMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	for _, t := range turns {
		role := "user"
		if t.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, openAIMessage{Role: role, Content: t.Text})
	}

	request := openAIRequest{Model: c.model, Messages: messages}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}
	return response.Choices[0].Message.Content, nil
}

func (c *Client) generateAnthropic(ctx context.Context, system string, turns []Turn) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("Anthropic API key not configured")
	}

	messages := make([]anthropicMessage, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: t.Text})
	}

	request := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4000,
		System:    system,
		Messages:  messages,
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", strings.TrimSpace(c.apiKey))
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no response content")
	}
	return response.Content[0].Text, nil
}

// cleanJSONResponse strips markdown code fences models like to wrap JSON in.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		if idx := strings.Index(response, "\n"); idx != -1 {
			response = response[idx+1:]
		}
		response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	}
	return strings.TrimSpace(response)
}
