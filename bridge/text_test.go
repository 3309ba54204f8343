package bridge

import (
	"context"
	"testing"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextBuilder_RequiresUsing(t *testing.T) {
	m, err := New(Settings{})
	require.NoError(t, err)

	_, err = m.Text().WithPrompt("hi").AsText(context.Background())
	assert.ErrorIs(t, err, ErrMissingProvider)

	_, err = m.Text().Using("fake", "", nil).AsRaw(context.Background())
	assert.ErrorIs(t, err, ErrMissingProvider)
}

func TestTextBuilder_AsText(t *testing.T) {
	fp := &fakeProvider{replies: []string{"hello back"}}
	m, err := New(Settings{}, WithProvider("fake", fp))
	require.NoError(t, err)

	res, err := m.Text().
		Using("fake", "tiny", nil).
		WithSystemPrompt("be brief").
		WithPrompt("hello", llm.AttachmentFromText("notes", "notes.txt")).
		WithMaxTokens(64).
		UsingTemperature(0).
		UsingTopP(0.5).
		AsText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello back", res.Text)

	require.Len(t, fp.lastMessages, 2)
	assert.Equal(t, llm.RoleSystem, fp.lastMessages[0].Role)
	assert.Equal(t, "be brief", fp.lastMessages[0].Content)
	assert.Equal(t, llm.RoleUser, fp.lastMessages[1].Role)
	assert.Len(t, fp.lastMessages[1].Attachments, 1)

	assert.Equal(t, "tiny", fp.lastOpts.String(llm.OptModel))
	maxTokens, _ := fp.lastOpts.Int(llm.OptMaxTokens)
	assert.Equal(t, 64, maxTokens)
	temp, ok := fp.lastOpts.Float(llm.OptTemperature)
	assert.True(t, ok, "explicit zero temperature is kept")
	assert.Equal(t, 0.0, temp)
	topP, _ := fp.lastOpts.Float(llm.OptTopP)
	assert.Equal(t, 0.5, topP)
}

func TestTextBuilder_OverridesBuildOneOffProvider(t *testing.T) {
	var builds int32
	m, err := New(Settings{}, WithBuilder("fake", keyedBuilder(&builds)))
	require.NoError(t, err)

	raw, err := m.Text().
		Using("fake", "tiny", nil).
		WithAPIKey("sk-call").
		WithAuthHeader("api-key", "").
		WithPrompt("hi").
		AsRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", llm.NormalizeChat(raw).Text)
	assert.Empty(t, m.Providers())
}

func TestTextBuilder_AsStream(t *testing.T) {
	m, err := New(Settings{}, WithProvider("fake", &fakeProvider{streaming: true}))
	require.NoError(t, err)

	stream, err := m.Text().Using("fake", "tiny", nil).WithPrompt("hi").AsStream(context.Background())
	require.NoError(t, err)
	text, err := llm.CollectText(stream)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}
