// Package ollama provides an HTTP client for the Ollama API served by the
// managed container.
//
// The client covers the slice of the API the CLI needs:
//   - Reachability and version checks for status output
//   - Model listing for verifying imports and picking chat defaults
//   - Streaming chat completions over the OpenAI-compatible endpoint
//
// All methods take a context so interactive callers can cancel in-flight
// requests, which matters most for streamed chat responses.
//
// Example usage:
//
//	client := ollama.NewClient("http://localhost:11434")
//	if err := client.Ready(ctx); err != nil {
//	    log.Fatalf("Ollama is not reachable: %v", err)
//	}
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
)

// Client is the HTTP client for one Ollama server.
//
// All methods are safe for concurrent use.
type Client struct {
	// baseURL is the server address, e.g. "http://localhost:11434".
	baseURL string

	// httpClient is the underlying HTTP client. No global timeout is set
	// because chat responses stream for an unbounded time; callers bound
	// individual requests through their context.
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for streaming chat responses
		},
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ready checks that the server answers on its root endpoint.
//
// Ollama replies to GET / with a plain "Ollama is running" banner; any
// HTTP 200 counts as ready.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.connectError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama replied with status %d", resp.StatusCode)
	}
	return nil
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Tags lists the models the server currently serves.
func (c *Client) Tags(ctx context.Context) ([]Model, error) {
	var resp TagsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// HasModel reports whether the server serves a model under the given name.
// A bare name matches its ":latest" tag and vice versa.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	served, err := c.Tags(ctx)
	if err != nil {
		return false, err
	}
	for _, model := range served {
		if model.Name == name ||
			model.Name == name+":latest" ||
			strings.TrimSuffix(model.Name, ":latest") == name {
			return true, nil
		}
	}
	return false, nil
}

// ChatStream sends a chat completion request and streams the reply.
//
// The request is forced into streaming mode. Each content fragment is
// passed to onDelta as it arrives; the assembled reply is returned when the
// stream ends. If ctx is cancelled mid-stream, the content received so far
// is returned together with the context error, so callers can keep the
// partial reply.
//
// Parameters:
//   - ctx: Controls cancellation of the request and the stream
//   - chatReq: The conversation to complete; Stream is set unconditionally
//   - onDelta: Called for every content fragment (may be nil)
//
// Returns:
//   - The full assistant reply assembled from the stream
//   - An error if the request fails or the stream breaks
func (c *Client) ChatStream(ctx context.Context, chatReq ChatRequest, onDelta func(string)) (string, error) {
	chatReq.Stream = true

	data, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.connectError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.errorFromBody(resp)
	}

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			// Ignore comments and blank keep-alive lines.
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return reply.String(), fmt.Errorf("failed to parse stream event: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			reply.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return reply.String(), ctx.Err()
		}
		return reply.String(), fmt.Errorf("error reading stream: %w", err)
	}

	return reply.String(), nil
}

// doRequest performs a JSON request against the server.
//
// reqBody is serialized as JSON when non-nil; a successful response is
// decoded into respBody when non-nil. Error responses are translated into
// the server's error message where one is present.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.connectError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromBody(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// connectError wraps a transport-level failure with a hint on how to get
// the server running.
func (c *Client) connectError(err error) error {
	return fmt.Errorf("cannot connect to Ollama at %s: %w\n\nIs the container running? Start it with: ovhelper run", c.baseURL, err)
}

// errorFromBody turns an HTTP error response into a Go error, preferring
// the server's own error message over the bare status code.
func (c *Client) errorFromBody(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var errResp errorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("Ollama error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
