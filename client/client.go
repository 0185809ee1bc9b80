// Package client is an HTTP client for the wizard service API.
//
// Example usage:
//
//	c := client.New("http://localhost:8080", client.WithAPIKey("my-api-key"))
//
//	parsed, err := c.Parse(ctx, "Have 57 chefs rate a recipe")
//
//	// Drive a full run against the server
//	o := orchestrator.New(c, c, orchestrator.WithLegacy(c))
//	suggestion, err := o.Run(ctx, "Have 57 chefs rate a recipe")
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error returns the error message.
func (e *APIError) Error() string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil && body.Error != "" {
		return fmt.Sprintf("wizard API %d: %s", e.StatusCode, body.Error)
	}
	return fmt.Sprintf("wizard API %d: %s", e.StatusCode, e.Message)
}

// Client communicates with the wizard REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the bearer API key.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse extracts the intent of query and builds its skeleton.
func (c *Client) Parse(ctx context.Context, query string) (*ai.ParseResponse, error) {
	var result ai.ParseResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/wizard/parse", ai.ParseRequest{Query: query}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateBatch generates the actors of one batch. Cancelling ctx aborts the
// request.
func (c *Client) GenerateBatch(ctx context.Context, req ai.BatchRequest) ([]graph.GeneratedActor, error) {
	var result ai.BatchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/wizard/generate-batch", req, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// Generate produces a whole suggestion in one request.
func (c *Client) Generate(ctx context.Context, query string) (*graph.WizardSuggestion, error) {
	var result ai.GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/wizard/generate", ai.GenerateRequest{Query: query}, &result); err != nil {
		return nil, err
	}
	return &result.Suggestion, nil
}

// Providers lists the generation backends registered on the server.
func (c *Client) Providers(ctx context.Context) ([]ai.Provider, error) {
	var result struct {
		Providers []ai.Provider `json:"providers"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/wizard/providers", nil, &result)
	return result.Providers, err
}

// ListRuns returns recorded runs matching filter, newest first.
func (c *Client) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.RunTimeline, error) {
	params := map[string]string{"status": filter.Status}
	if filter.Limit > 0 {
		params["limit"] = strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		params["offset"] = strconv.Itoa(filter.Offset)
	}
	if filter.Since != nil {
		params["since"] = filter.Since.Format(time.RFC3339)
	}
	if filter.Until != nil {
		params["until"] = filter.Until.Format(time.RFC3339)
	}

	var result struct {
		Runs []store.RunTimeline `json:"runs"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/wizard/runs"+buildQuery(params), nil, &result)
	return result.Runs, err
}

// GetRun returns the timeline of one run.
func (c *Client) GetRun(ctx context.Context, id string) (*store.RunTimeline, error) {
	var result store.RunTimeline
	if err := c.doJSON(ctx, http.MethodGet, "/api/wizard/runs/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Body: string(b)}
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func buildQuery(params map[string]string) string {
	v := url.Values{}
	for key, val := range params {
		if val != "" {
			v.Set(key, val)
		}
	}
	if encoded := v.Encode(); encoded != "" {
		return "?" + encoded
	}
	return ""
}
