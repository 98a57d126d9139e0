package engine

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system-role message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Options tune a single completion. Zero values mean the provider default.
type Options struct {
	Temperature       float64
	TopP              float64
	MaxTokens         int
	RepetitionPenalty float64
	ResponseFormat    *ResponseFormat
}

// ResponseFormat requests structured output matching a JSON schema.
type ResponseFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// Function declares a callable function offered to a function-calling model.
// Parameters is a JSON-schema object.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FunctionCall is a model's request to invoke a declared function.
// Arguments is the raw JSON text produced by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
