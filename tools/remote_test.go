package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRemoteTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/lookup", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "go", gjson.GetBytes(body, "args.q").String())
		_, _ = w.Write([]byte(`{"answer":"gopher"}`))
	}))
	defer server.Close()

	client := transport.NewWithHTTPClient(server.Client(), transport.Config{}, zerolog.Nop())
	tool := NewRemoteTool(client, server.URL+"/", "secret", "lookup", "Looks things up.", nil)

	out, err := tool.Execute(context.Background(), map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"gopher"}`, out)
	assert.Equal(t, "object", tool.Schema()["type"])
}

func TestRemoteTool_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := transport.NewWithHTTPClient(server.Client(), transport.Config{}, zerolog.Nop())
	tool := NewRemoteTool(client, server.URL, "", "lookup", "", nil)

	_, err := tool.Execute(context.Background(), nil)
	assert.ErrorContains(t, err, "remote tool lookup")
}
