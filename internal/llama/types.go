package llama

import "encoding/json"

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	Temperature         float64         `json:"temperature"`
	TopP                float64         `json:"top_p"`
	MaxCompletionTokens int             `json:"max_completion_tokens"`
	RepetitionPenalty   float64         `json:"repetition_penalty"`
	Stream              bool            `json:"stream"`
	ResponseFormat      *ResponseFormat `json:"response_format,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests schema-constrained output:
// {"type":"json_schema","json_schema":{"schema":{...}}}.
type ResponseFormat struct {
	Type       string     `json:"type"`
	JSONSchema JSONSchema `json:"json_schema"`
}

type JSONSchema struct {
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema"`
}

// ChatResponse is the subset of the completion payload the service reads.
type ChatResponse struct {
	ID                string             `json:"id,omitempty"`
	CompletionMessage *CompletionMessage `json:"completion_message"`
}

type CompletionMessage struct {
	Role       string          `json:"role,omitempty"`
	Content    *MessageContent `json:"content"`
	StopReason string          `json:"stop_reason,omitempty"`
}

type MessageContent struct {
	Type string  `json:"type,omitempty"`
	Text *string `json:"text"`
}

// Text returns the completion text and whether it was present.
func (r ChatResponse) Text() (string, bool) {
	if r.CompletionMessage == nil || r.CompletionMessage.Content == nil || r.CompletionMessage.Content.Text == nil {
		return "", false
	}
	return *r.CompletionMessage.Content.Text, true
}
