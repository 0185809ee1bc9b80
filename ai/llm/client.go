// Package llm generates wizard actors and suggestions with the Anthropic
// Messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultTimeout   = 2 * time.Minute
	defaultMaxTokens = 8192
	apiVersion       = "2023-06-01"
)

// ClientConfig holds configuration for the Anthropic LLM client.
type ClientConfig struct {
	APIKey    string        // Defaults to ANTHROPIC_API_KEY env var
	Model     string        // Defaults to ANTHROPIC_MODEL, then claude-sonnet-4-20250514
	BaseURL   string        // Defaults to https://api.anthropic.com
	Timeout   time.Duration // Per request; defaults to 2m
	MaxTokens int
}

// Client implements ai.ActorGenerator and ai.SuggestionGenerator using the
// Anthropic Claude API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// NewClient creates a new Anthropic LLM client.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = defaultModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// -- Anthropic API types --

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// call sends one user message and returns the concatenated text blocks.
func (c *Client) call(ctx context.Context, system, userContent string) (string, error) {
	req := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: userContent}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.StopReason == "max_tokens" {
		return "", fmt.Errorf("response truncated at %d tokens", c.maxTokens)
	}

	var texts []string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// GenerateActors asks the model for one batch of personas.
func (c *Client) GenerateActors(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error) {
	text, err := c.call(ctx, ai.SystemPrompt(), ai.BatchPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	return parseActors(text, req.BatchSize)
}

// GenerateSuggestion asks the model for a complete workflow graph.
func (c *Client) GenerateSuggestion(ctx context.Context, query string, parsed ai.ParseResponse) (*graph.WizardSuggestion, error) {
	text, err := c.call(ctx, ai.SystemPrompt(), ai.SuggestionPrompt(query, parsed))
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	sug, err := parseSuggestion(text)
	if err != nil {
		return nil, err
	}
	if sug.ID == "" {
		sug.ID = parsed.Skeleton.ID
	}
	if sug.Category == "" {
		sug.Category = graph.Category(parsed.Intent.TaskType)
	}
	return sug, nil
}

// -- Response parsers --

// parseActors accepts either {"agents": [...]} or a bare array and keeps
// at most want actors.
func parseActors(text string, want int) ([]graph.GeneratedActor, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var actors []graph.GeneratedActor
	if strings.HasPrefix(jsonStr, "[") {
		if err := json.Unmarshal([]byte(jsonStr), &actors); err != nil {
			return nil, fmt.Errorf("failed to parse agents: %w", err)
		}
	} else {
		var resp ai.BatchResponse
		if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse agents: %w", err)
		}
		actors = resp.Agents
	}

	if len(actors) == 0 {
		return nil, fmt.Errorf("response contained no agents")
	}
	if want > 0 && len(actors) > want {
		actors = actors[:want]
	}
	for i := range actors {
		a := &actors[i]
		if a.Persona.DisplayName == "" {
			a.Persona.DisplayName = a.Persona.Name
		}
		if a.Label == "" {
			a.Label = a.Persona.DisplayName
		}
		if a.Type == "" {
			a.Type = graph.DefaultActorType
		}
	}
	return actors, nil
}

func parseSuggestion(text string) (*graph.WizardSuggestion, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var sug graph.WizardSuggestion
	if err := json.Unmarshal([]byte(jsonStr), &sug); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion: %w", err)
	}
	if len(sug.Nodes) == 0 {
		return nil, fmt.Errorf("suggestion has no nodes")
	}
	return &sug, nil
}

// ExtractJSON finds the first JSON object or array in text.
func ExtractJSON(text string) string {
	// Try to find JSON in markdown code blocks first
	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		start := idx + len("```")
		if end := strings.Index(text[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(text[start : start+end])
			if len(candidate) > 0 && (candidate[0] == '{' || candidate[0] == '[') {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		if end := matchBracket(text, i); end > 0 {
			return text[i : end+1]
		}
	}
	return ""
}

// matchBracket returns the index closing the bracket at start, skipping
// string literals, or -1.
func matchBracket(text string, start int) int {
	open := text[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	depth := 0
	inString := false
	escape := false
	for j := start; j < len(text); j++ {
		switch {
		case escape:
			escape = false
		case text[j] == '\\' && inString:
			escape = true
		case text[j] == '"':
			inString = !inString
		case inString:
		case text[j] == open:
			depth++
		case text[j] == closing:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

var (
	_ ai.ActorGenerator      = (*Client)(nil)
	_ ai.SuggestionGenerator = (*Client)(nil)
)
