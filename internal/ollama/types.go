package ollama

import (
	"encoding/json"
	"time"
)

// VersionResponse is the reply of GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// TagsResponse is the reply of GET /api/tags.
type TagsResponse struct {
	Models []Model `json:"models"`
}

// Model describes one model known to the server.
type Model struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails carries format metadata for a served model.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles accepted by the chat endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the body of POST /v1/chat/completions.
//
// The endpoint is OpenAI-compatible, which is the surface the OpenVINO
// backend serves chat on.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatChunk is one streamed chat completion fragment.
type chatChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// errorResponse is the error body the server sends on failed requests. Both
// the native API ({"error": "..."}) and the OpenAI-compatible API
// ({"error": {"message": "..."}}) shapes are covered.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string
}

// UnmarshalJSON accepts the error field as either a plain string or an
// object with a message.
func (e *errorDetail) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Message = s
		return nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Message = obj.Message
	return nil
}
