package llm

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message in a conversation.
// Order within a conversation is significant and messages are never mutated
// once appended to a history.
type Message struct {
	Role        MessageRole  `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolName    string       `json:"tool_name,omitempty"` // Set on tool-role messages
}

// NewTextMessage creates a message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Content: text}
}

// NewUserMessage creates a user message carrying optional attachments.
func NewUserMessage(text string, attachments ...Attachment) Message {
	return Message{Role: RoleUser, Content: text, Attachments: attachments}
}

// NewToolMessage creates a tool-role message holding the result of a tool call.
func NewToolMessage(toolName, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolName: toolName}
}

// FoldSystemRoles rewrites every system message into a user message with
// identical content, preserving order. Used by providers without a system role.
func FoldSystemRoles(messages []Message) []Message {
	folded := make([]Message, len(messages))
	for i, msg := range messages {
		if msg.Role == RoleSystem {
			msg.Role = RoleUser
		}
		folded[i] = msg
	}
	return folded
}

// ToolSpec represents a tool definition that can be provided to an LLM.
// Schema is a JSON-Schema subset (object/array/string/number/boolean with
// required/properties/items).
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"parameters"`
}

// ToolCall is a model-emitted request to execute a tool.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResult records one executed tool call and its textual result.
type ToolCallResult struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// RawResponse is the decoded JSON body returned by a provider, kept verbatim.
type RawResponse []byte

// Get returns the value at a gjson path.
func (r RawResponse) Get(path string) gjson.Result {
	return gjson.GetBytes(r, path)
}

// Valid reports whether the response holds well-formed JSON.
func (r RawResponse) Valid() bool {
	return len(r) > 0 && gjson.ValidBytes(r)
}

// Map decodes the response into a generic map. Non-object bodies yield nil.
func (r RawResponse) Map() map[string]any {
	var out map[string]any
	if err := json.Unmarshal(r, &out); err != nil {
		return nil
	}
	return out
}

// String returns the JSON text of the response.
func (r RawResponse) String() string {
	return string(r)
}

// MarshalJSON embeds the raw body as-is.
func (r RawResponse) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of the raw body.
func (r *RawResponse) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// NormalizedChatResult is the canonical shape of a chat response.
type NormalizedChatResult struct {
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls"`
	Usage        *Usage      `json:"usage,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Raw          RawResponse `json:"raw,omitempty"`
}

// StreamEventType identifies the kind of structured stream event.
type StreamEventType string

const (
	StreamEventTypeDelta StreamEventType = "delta"
	StreamEventTypeEnd   StreamEventType = "end"
)

// StreamEvent is one item of a structured stream.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Data string          `json:"data,omitempty"`
}

// EmbeddingsResult holds one vector per input.
type EmbeddingsResult struct {
	Vectors [][]float64 `json:"vectors"`
	Usage   *Usage      `json:"usage,omitempty"`
	Raw     RawResponse `json:"raw,omitempty"`
}

// Image is a generated image, either hosted (URL) or inline (B64).
type Image struct {
	URL  string `json:"url,omitempty"`
	B64  string `json:"b64,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// ImageResult holds generated images.
type ImageResult struct {
	Images []Image     `json:"images"`
	Raw    RawResponse `json:"raw,omitempty"`
}

// SpeechResult holds synthesized audio.
type SpeechResult struct {
	Audio []byte `json:"audio"`
	MIME  string `json:"mime"`
}

// TranscriptionResult holds transcribed text.
type TranscriptionResult struct {
	Text string      `json:"text"`
	Raw  RawResponse `json:"raw,omitempty"`
}
