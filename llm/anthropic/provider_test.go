package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := transport.NewWithHTTPClient(server.Client(), transport.Config{}, zerolog.Nop())
	return New("test-key", server.URL, client, zerolog.Nop())
}

func body(t *testing.T, r *http.Request) gjson.Result {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return gjson.ParseBytes(data)
}

func TestChat_HeadersAndFolding(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		b := body(t, r)
		assert.Equal(t, DefaultModel, b.Get("model").String())
		assert.Equal(t, int64(DefaultMaxTokens), b.Get("max_tokens").Int())
		assert.False(t, b.Get("system").Exists())
		assert.False(t, b.Get("stream").Exists())
		assert.Equal(t, "user", b.Get("messages.0.role").String())
		assert.Equal(t, "be brief", b.Get("messages.0.content.0.text").String())
		assert.Equal(t, "assistant", b.Get("messages.2.role").String())
		assert.Equal(t, "user", b.Get("messages.3.role").String())
		assert.Equal(t, "[tool echo result]\nhi", b.Get("messages.3.content.0.text").String())
		assert.Equal(t, 0.0, b.Get("temperature").Float())
		assert.True(t, b.Get("temperature").Exists())

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	})

	raw, err := p.Chat(context.Background(), []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "be brief"),
		llm.NewTextMessage(llm.RoleUser, "hi"),
		llm.NewTextMessage(llm.RoleAssistant, "calling echo"),
		llm.NewToolMessage("echo", "hi"),
	}, llm.CallOptions{llm.OptTemperature: 0})
	require.NoError(t, err)

	result := llm.NormalizeChat(raw)
	assert.Equal(t, "Hello", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, int64(5), result.Usage.TotalTokens)
}

func TestChat_AttachmentsAndTools(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		b := body(t, r)
		assert.Equal(t, int64(256), b.Get("max_tokens").Int())
		assert.Equal(t, "claude-sonnet-4-5", b.Get("model").String())

		blocks := b.Get("messages.0.content").Array()
		require.Len(t, blocks, 3)
		assert.Equal(t, "image", blocks[0].Get("type").String())
		assert.Equal(t, "base64", blocks[0].Get("source.type").String())
		assert.Equal(t, "image/png", blocks[0].Get("source.media_type").String())
		assert.Equal(t, "document", blocks[1].Get("type").String())
		assert.Equal(t, "text", blocks[2].Get("type").String())

		assert.Equal(t, "lookup", b.Get("tools.0.name").String())
		assert.Equal(t, "object", b.Get("tools.0.input_schema.type").String())
		assert.Equal(t, "q", b.Get("tools.0.input_schema.required.0").String())
		assert.Equal(t, "END", b.Get("stop_sequences.0").String())

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	})

	msg := llm.NewUserMessage("what is this?",
		llm.AttachmentFromBase64("iVBORw0KGgo=", "image/png", "pixel.png"),
		llm.AttachmentFromBytes([]byte("%PDF-1.4"), "application/pdf", "doc.pdf"),
	)
	opts := llm.CallOptions{
		llm.OptModel:     "claude-sonnet-4-5",
		llm.OptMaxTokens: 256,
		llm.OptStop:      []string{"END"},
		llm.OptTools: []llm.ToolSpec{{
			Name:        "lookup",
			Description: "Look something up",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []any{"q"},
			},
		}},
	}
	_, err := p.Chat(context.Background(), []llm.Message{msg}, opts)
	require.NoError(t, err)
}

func TestStream_SSE(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, body(t, r).Get("stream").Bool())
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{}}\n\n")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		_, _ = io.WriteString(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		_, _ = io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		_, _ = io.WriteString(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"late\"}}\n\n")
	})

	stream, err := p.Stream(context.Background(), []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.NoError(t, err)
	text, err := llm.CollectText(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"claude-haiku-4-5"}]}`))
		case "/v1/models/claude-haiku-4-5":
			_, _ = w.Write([]byte(`{"id":"claude-haiku-4-5","display_name":"Claude Haiku 4.5"}`))
		default:
			http.NotFound(w, r)
		}
	})

	list, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", list.Get("data.0.id").String())

	model, err := p.GetModel(context.Background(), "claude-haiku-4-5")
	require.NoError(t, err)
	assert.Equal(t, "Claude Haiku 4.5", model.Get("display_name").String())
}

func TestChat_UpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := p.Chat(context.Background(), []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.Error(t, err)
	assert.True(t, llm.IsTransportFailure(err))
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestCapabilities(t *testing.T) {
	var provider llm.Provider = &Provider{}
	_, ok := provider.(llm.EmbeddingsProvider)
	assert.False(t, ok)
	_, ok = provider.(llm.ImageProvider)
	assert.False(t, ok)
	_, ok = provider.(llm.AudioProvider)
	assert.False(t, ok)
}

func TestNew_TrimsMessagesPath(t *testing.T) {
	p := New("k", "https://proxy.example.com/v1/messages/", nil, zerolog.Nop())
	assert.Equal(t, "https://proxy.example.com", p.base)
	assert.Equal(t, DefaultBaseURL, New("k", "", nil, zerolog.Nop()).base)
}
