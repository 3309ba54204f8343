package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChat_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		text   string
		finish string
		usage  *Usage
	}{
		{
			name:   "chat completions",
			raw:    `{"choices":[{"message":{"role":"assistant","content":"X"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`,
			text:   "X",
			finish: "stop",
			usage:  &Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		},
		{
			name:   "generate message",
			raw:    `{"model":"llama3.2","message":{"role":"assistant","content":"X"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`,
			text:   "X",
			finish: "stop",
			usage:  &Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		},
		{
			name:   "content blocks",
			raw:    `{"content":[{"type":"text","text":"X"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`,
			text:   "X",
			finish: "end_turn",
			usage:  &Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
		},
		{
			name:   "candidates",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"X"}],"role":"model"},"finishReason":"STOP"}]}`,
			text:   "X",
			finish: "STOP",
		},
		{
			name: "responses output_text",
			raw:  `{"output_text":"X"}`,
			text: "X",
		},
		{
			name: "responses output array",
			raw:  `{"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"X"}]}]}`,
			text: "X", finish: "completed",
		},
		{
			name: "plain response",
			raw:  `{"response":"X","done":true}`,
			text: "X",
		},
		{
			name: "unknown shape",
			raw:  `{"something":"else"}`,
			text: "",
		},
		{
			name: "not json",
			raw:  `<html>`,
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeChat(RawResponse(tt.raw))
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.finish, got.FinishReason)
			assert.NotNil(t, got.ToolCalls)
			if tt.usage != nil {
				require.NotNil(t, got.Usage)
				assert.Equal(t, *tt.usage, *got.Usage)
			}
			assert.Equal(t, tt.raw, got.Raw.String())
		})
	}
}

func TestNormalizeChat_SameTextAcrossShapes(t *testing.T) {
	chat := NormalizeChat(RawResponse(`{"choices":[{"message":{"content":"same"}}]}`))
	gen := NormalizeChat(RawResponse(`{"message":{"content":"same"}}`))
	assert.Equal(t, chat.Text, gen.Text)
}

func TestNormalizeChat_NativeToolCalls(t *testing.T) {
	openAI := NormalizeChat(RawResponse(`{"choices":[{"message":{"content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"echo","arguments":"{\"msg\":\"hi\"}"}}]},"finish_reason":"tool_calls"}]}`))
	require.Len(t, openAI.ToolCalls, 1)
	assert.Equal(t, ToolCall{Name: "echo", Arguments: map[string]any{"msg": "hi"}}, openAI.ToolCalls[0])
	assert.Equal(t, "", openAI.Text)

	ollama := NormalizeChat(RawResponse(`{"message":{"content":"","tool_calls":[{"function":{"name":"echo","arguments":{"msg":"hi"}}}]}}`))
	require.Len(t, ollama.ToolCalls, 1)
	assert.Equal(t, "echo", ollama.ToolCalls[0].Name)
	assert.Equal(t, "hi", ollama.ToolCalls[0].Arguments["msg"])

	anthropic := NormalizeChat(RawResponse(`{"content":[{"type":"text","text":"let me check"},{"type":"tool_use","id":"t1","name":"echo","input":{"msg":"hi"}}]}`))
	require.Len(t, anthropic.ToolCalls, 1)
	assert.Equal(t, "let me check", anthropic.Text)
}

func TestExtractAssistantText(t *testing.T) {
	text, ok := ExtractAssistantText(RawResponse(`{"choices":[{"message":{"content":"hello"}}]}`))
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	text, ok = ExtractAssistantText(RawResponse(`{"message":{"content":"hola"}}`))
	assert.True(t, ok)
	assert.Equal(t, "hola", text)

	_, ok = ExtractAssistantText(RawResponse(`{"response":"bare completion"}`))
	assert.False(t, ok)

	_, ok = ExtractAssistantText(RawResponse(`{"error":"x"}`))
	assert.False(t, ok)

	_, ok = ExtractAssistantText(nil)
	assert.False(t, ok)
}

func TestNormalizeEmbeddings(t *testing.T) {
	openAI := NormalizeEmbeddings(RawResponse(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`))
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3}}, openAI.Vectors)
	require.NotNil(t, openAI.Usage)
	assert.EqualValues(t, 4, openAI.Usage.TotalTokens)

	ollama := NormalizeEmbeddings(RawResponse(`{"embeddings":[[1,2],[3,4]]}`))
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, ollama.Vectors)

	single := NormalizeEmbeddings(RawResponse(`{"embedding":[0.5,0.25]}`))
	assert.Equal(t, [][]float64{{0.5, 0.25}}, single.Vectors)

	gemini := NormalizeEmbeddings(RawResponse(`{"embedding":{"values":[1,0]}}`))
	assert.Equal(t, [][]float64{{1, 0}}, gemini.Vectors)

	empty := NormalizeEmbeddings(RawResponse(`{}`))
	assert.Empty(t, empty.Vectors)
}

func TestNormalizeImages(t *testing.T) {
	urls := NormalizeImages(RawResponse(`{"data":[{"url":"https://img/1.png"},{"b64_json":"AAA"}]}`))
	assert.Equal(t, []Image{{URL: "https://img/1.png"}, {B64: "AAA", MIME: "image/png"}}, urls.Images)

	ollama := NormalizeImages(RawResponse(`{"images":["BBB",{"b64":"CCC"}]}`))
	assert.Len(t, ollama.Images, 2)

	dataURL := NormalizeImages(RawResponse(`{"response":"data:image/jpeg;base64,DDD"}`))
	assert.Equal(t, []Image{{B64: "DDD", MIME: "image/jpeg"}}, dataURL.Images)
}

func TestNormalizeSpeechAndTranscription(t *testing.T) {
	raw := NormalizeSpeech([]byte{0xff, 0xf3}, "audio/mpeg")
	assert.Equal(t, []byte{0xff, 0xf3}, raw.Audio)
	assert.Equal(t, "audio/mpeg", raw.MIME)

	wrapped := NormalizeSpeech([]byte(`{"audio":"aGk=","mime":"audio/wav"}`), "application/json")
	assert.Equal(t, []byte("hi"), wrapped.Audio)
	assert.Equal(t, "audio/wav", wrapped.MIME)

	assert.Equal(t, "hello", NormalizeTranscription(RawResponse(`{"text":"hello"}`)).Text)
	assert.Equal(t, "bonjour", NormalizeTranscription(RawResponse(`{"transcript":"bonjour"}`)).Text)
	assert.Equal(t, "plain", NormalizeTranscription(RawResponse("plain\n")).Text)
}
