package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/piconix/f1voice/internal/engine"
)

const (
	DefaultBaseURL = "https://api.llama.com/v1"
	DefaultModel   = "Llama-4-Maverick-17B-128E-Instruct-FP8"

	defaultTimeout           = 60 * time.Second
	defaultTemperature       = 0.6
	defaultTopP              = 0.9
	defaultMaxTokens         = 2048
	defaultRepetitionPenalty = 1.0

	// errorBodyLimit caps how much of a failed response is kept in the error.
	errorBodyLimit = 512
)

// Client talks to the Llama API chat completions endpoint. Requests are
// never retried.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a custom endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient creates a Llama API client with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest builds a request with the provider defaults applied.
func (c *Client) NewRequest(messages []Message) ChatRequest {
	return ChatRequest{
		Model:               c.model,
		Messages:            messages,
		Temperature:         defaultTemperature,
		TopP:                defaultTopP,
		MaxCompletionTokens: defaultMaxTokens,
		RepetitionPenalty:   defaultRepetitionPenalty,
	}
}

// Chat sends a chat completion request. Any non-2xx status is an
// engine.ErrProvider; a 2xx body without completion text is an
// engine.ErrMalformedProviderResponse.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", goerr.Wrap(err, "marshaling llama request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "creating llama request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", goerr.Wrap(engine.ErrProvider, "calling llama api", goerr.V("cause", err.Error()), goerr.V("provider", "llama"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", goerr.Wrap(engine.ErrProvider, "llama api returned non-2xx status",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(snippet)), goerr.V("provider", "llama"))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(engine.ErrMalformedProviderResponse, "decoding llama response", goerr.V("cause", err.Error()))
	}
	text, ok := out.Text()
	if !ok {
		return "", goerr.Wrap(engine.ErrMalformedProviderResponse, "llama response has no completion_message.content.text")
	}
	return text, nil
}

// Complete implements engine.Completer.
func (c *Client) Complete(ctx context.Context, messages []engine.Message, opts engine.Options) (string, error) {
	msgs := make([]Message, len(messages))
	for i, m := range messages {
		msgs[i] = Message{Role: m.Role, Content: m.Content}
	}

	req := c.NewRequest(msgs)
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		req.TopP = opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}
	if opts.RepetitionPenalty > 0 {
		req.RepetitionPenalty = opts.RepetitionPenalty
	}
	if opts.ResponseFormat != nil {
		req.ResponseFormat = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: JSONSchema{Name: opts.ResponseFormat.Name, Schema: opts.ResponseFormat.Schema},
		}
	}
	return c.Chat(ctx, req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
