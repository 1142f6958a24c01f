package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client := NewClient("http://localhost:11434/")
	assert.Equal(t, "http://localhost:11434", client.BaseURL())
}

func TestReady_ServerUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		fmt.Fprint(w, "Ollama is running")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	assert.NoError(t, client.Ready(t.Context()))
}

func TestReady_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Ready(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

// TestReady_ConnectionRefused verifies the transport-level failure message
// points the user at the run command instead of dumping a bare dial error.
func TestReady_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // free the port so the dial fails

	client := NewClient(server.URL)
	err := client.Ready(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot connect to Ollama")
	assert.Contains(t, err.Error(), "ovhelper run")
}

func TestVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		fmt.Fprint(w, `{"version":"0.5.4"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	version, err := client.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "0.5.4", version)
}

func TestTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[
			{"name":"qwen2.5-7b-instruct:latest","size":4500000000,"modified_at":"2025-01-15T10:00:00Z"},
			{"name":"tinyllama:latest","size":700000000,"modified_at":"2025-01-10T08:00:00Z"}
		]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	served, err := client.Tags(t.Context())
	require.NoError(t, err)

	require.Len(t, served, 2)
	assert.Equal(t, "qwen2.5-7b-instruct:latest", served[0].Name)
	assert.Equal(t, int64(4500000000), served[0].Size)
	assert.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), served[0].ModifiedAt)
}

func TestHasModel_TagNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"qwen2.5-7b-instruct:latest"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	tests := []struct {
		query string
		want  bool
	}{
		{"qwen2.5-7b-instruct:latest", true},
		{"qwen2.5-7b-instruct", true},
		{"other-model", false},
	}

	for _, tt := range tests {
		got, err := client.HasModel(t.Context(), tt.query)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "query %q", tt.query)
	}
}

func TestChatStream_AssemblesReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream, "client must force streaming mode")
		assert.Equal(t, "qwen2.5-7b-instruct", req.Model)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		fmt.Fprint(w, `: keep-alive comment`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hello"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":", world"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	var deltas []string
	reply, err := client.ChatStream(t.Context(), ChatRequest{
		Model:    "qwen2.5-7b-instruct",
		Messages: []ChatMessage{{Role: RoleUser, Content: "Say hello"}},
	}, func(delta string) {
		deltas = append(deltas, delta)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", reply)
	assert.Equal(t, []string{"Hello", ", world"}, deltas, "every content fragment should reach the callback")
}

// TestChatStream_CancelKeepsPartialReply verifies that cancelling mid-stream
// returns the content received so far together with the context error.
func TestChatStream_CancelKeepsPartialReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	client := NewClient(server.URL)
	reply, err := client.ChatStream(ctx, ChatRequest{Model: "m"}, func(delta string) {
		cancel() // cancel as soon as the first fragment arrives
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "partial", reply)
}

func TestChatStream_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"model 'missing' not found"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ChatStream(t.Context(), ChatRequest{Model: "missing"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model 'missing' not found")
}

// TestErrorResponses covers the two error body shapes the server produces:
// the native API sends a plain string, the OpenAI-compatible API an object.
func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai object shape", `{"error":{"message":"object message"}}`, "Ollama error: object message"},
		{"native string shape", `{"error":"string message"}`, "Ollama error: string message"},
		{"unstructured body", `internal server error`, "request failed with status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL)
			_, err := client.Version(t.Context())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
