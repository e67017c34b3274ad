// Package ollama is a minimal client for the Ollama chat wire protocol:
// liveness probe, model enumeration, and one-shot or streaming chat with
// tool definitions.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single non-streaming chat call. Local CPU
// inference can be very slow, so the bound is deliberately long.
const DefaultTimeout = 5 * time.Minute

const defaultBaseURL = "http://127.0.0.1:11434"

// APIError is a non-2xx reply from the endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama api status %d: %s", e.StatusCode, e.Message)
}

// Client speaks to one Ollama endpoint. The zero value is not usable; use
// NewClient.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests, custom
// transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds a whole chat call, streamed or not. The default is
// long on purpose: local CPU inference is slow, not broken.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient builds a Client for the given base URL ("http://host:11434").
// An empty URL falls back to the local default.
func NewClient(baseURL string, opts ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	c := &Client{
		baseURL: trimmed,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Probe reports whether the endpoint answers its version path. It never
// fails outward; network errors map to false.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Version returns the endpoint's reported version string, or "" when the
// endpoint is unreachable.
func (c *Client) Version(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var v versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return ""
	}
	return v.Version
}

// ListModels enumerates the models the endpoint serves. Like Probe it never
// fails outward; any network or API failure yields an empty slice.
func (c *Client) ListModels(ctx context.Context) []ModelInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil
	}
	return tags.Models
}

// Chat performs one blocking chat call (stream:false) and returns the full
// reply. No retries here; retry policy belongs to the caller.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	resp, err := c.doChat(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &out, nil
}

// StreamFunc receives one text fragment as it arrives. Returning an error
// stops consumption and closes the connection.
type StreamFunc func(fragment string) error

// ChatStream performs a streaming chat call (stream:true). Replies arrive
// as newline-delimited JSON objects; each content fragment is handed to fn
// in order. The accumulated reply, including any structured tool calls from
// the terminal object, is returned once the line with done:true (or EOF) is
// seen. Cancelling ctx closes the underlying connection.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, fn StreamFunc) (*ChatResponse, error) {
	req.Stream = true
	resp, err := c.doChat(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var full strings.Builder
	final := &ChatResponse{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("decode stream line: %w", err)
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if fn != nil {
				if err := fn(chunk.Message.Content); err != nil {
					return nil, err
				}
			}
		}
		if len(chunk.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = append(final.Message.ToolCalls, chunk.Message.ToolCalls...)
		}
		if chunk.Done {
			final.Model = chunk.Model
			final.Done = true
			final.DoneReason = chunk.DoneReason
			final.TotalDuration = chunk.TotalDuration
			final.PromptEvalCount = chunk.PromptEvalCount
			final.EvalCount = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	final.Message.Role = "assistant"
	final.Message.Content = full.String()
	return final, nil
}

func (c *Client) doChat(ctx context.Context, payload ChatRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", &buf)
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed on /api/chat: %w", err)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: wire.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
