package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestValidateWorkspacePath(t *testing.T) {
	tmpDir := t.TempDir()
	workspacePath, err := filepath.Abs(tmpDir)
	if err != nil {
		t.Fatalf("Failed to get absolute path: %v", err)
	}

	tests := []struct {
		name        string
		workspace   string
		target      string
		wantErr     bool
		description string
	}{
		{
			name:        "valid relative path",
			workspace:   workspacePath,
			target:      "test.txt",
			wantErr:     false,
			description: "Should allow relative paths within workspace",
		},
		{
			name:        "valid absolute path within workspace",
			workspace:   workspacePath,
			target:      filepath.Join(workspacePath, "test.txt"),
			wantErr:     false,
			description: "Should allow absolute paths within workspace",
		},
		{
			name:        "path traversal attempt",
			workspace:   workspacePath,
			target:      "../../../etc/passwd",
			wantErr:     true,
			description: "Should block directory traversal attacks",
		},
		{
			name:        "path outside workspace",
			workspace:   workspacePath,
			target:      "/etc/passwd",
			wantErr:     true,
			description: "Should block paths outside workspace",
		},
		{
			name:        "valid nested path",
			workspace:   workspacePath,
			target:      "dir/subdir/file.txt",
			wantErr:     false,
			description: "Should allow nested paths within workspace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateWorkspacePath(tt.workspace, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateWorkspacePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == "" {
				t.Errorf("validateWorkspacePath() returned empty path for valid input")
			}
		})
	}
}

func newWorkspace(t *testing.T, files map[string]string) (string, *Registry) {
	t.Helper()
	workspacePath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(workspacePath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterFilesystemTools(workspacePath)
	return workspacePath, reg
}

func TestReadFile(t *testing.T) {
	testContent := "Hello, World!\nThis is a test file."
	_, reg := newWorkspace(t, map[string]string{"test.txt": testContent})

	result, err := reg.Execute(context.Background(), "read_file", map[string]any{"path": "test.txt"})
	require.NoError(t, err)
	assert.Equal(t, testContent, gjson.Get(result, "content").String())
	assert.False(t, gjson.Get(result, "truncated").Bool())

	result, err = reg.Execute(context.Background(), "read_file", map[string]any{"path": "test.txt", "max_bytes": 5})
	require.NoError(t, err)
	assert.Equal(t, "Hello", gjson.Get(result, "content").String())
	assert.True(t, gjson.Get(result, "truncated").Bool())
}

func TestReadFile_Errors(t *testing.T) {
	_, reg := newWorkspace(t, map[string]string{"dir/a.txt": "a"})
	ctx := context.Background()

	_, err := reg.Execute(ctx, "read_file", map[string]any{"path": "../outside.txt"})
	assert.ErrorContains(t, err, "outside workspace")

	_, err = reg.Execute(ctx, "read_file", map[string]any{"path": "dir"})
	assert.ErrorContains(t, err, "is a directory")

	_, err = reg.Execute(ctx, "read_file", map[string]any{"path": "missing.txt"})
	assert.Error(t, err)
}

func TestListDirectory(t *testing.T) {
	_, reg := newWorkspace(t, map[string]string{
		"a.txt":         "a",
		"sub/b.txt":     "b",
		".hidden":       "h",
		"sub/deep/c.go": "c",
	})
	ctx := context.Background()

	result, err := reg.Execute(ctx, "list_directory", nil)
	require.NoError(t, err)
	paths := gjson.Get(result, "entries.#.path").Array()
	assert.ElementsMatch(t, []string{"a.txt", "sub"}, toStrings(paths))

	result, err = reg.Execute(ctx, "list_directory", map[string]any{"recursive": true, "include_hidden": true})
	require.NoError(t, err)
	assert.Equal(t, int64(6), gjson.Get(result, "count").Int())

	_, err = reg.Execute(ctx, "list_directory", map[string]any{"path": "a.txt"})
	assert.ErrorContains(t, err, "not a directory")
}

func TestFileInfo(t *testing.T) {
	_, reg := newWorkspace(t, map[string]string{"notes.md": "12345"})
	ctx := context.Background()

	result, err := reg.Execute(ctx, "file_info", map[string]any{"path": "notes.md"})
	require.NoError(t, err)
	assert.True(t, gjson.Get(result, "exists").Bool())
	assert.Equal(t, int64(5), gjson.Get(result, "entry.size").Int())

	result, err = reg.Execute(ctx, "file_info", map[string]any{"path": "nope.md"})
	require.NoError(t, err)
	assert.False(t, gjson.Get(result, "exists").Bool())
}

func TestFileSearch(t *testing.T) {
	_, reg := newWorkspace(t, map[string]string{
		"main.go":          "",
		"pkg/util.go":      "",
		"pkg/util_test.go": "",
		"README.md":        "",
	})
	ctx := context.Background()

	result, err := reg.Execute(ctx, "file_search", map[string]any{"pattern": "*.go"})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"main.go", filepath.Join("pkg", "util.go"), filepath.Join("pkg", "util_test.go")},
		toStrings(gjson.Get(result, "matches").Array()))

	result, err = reg.Execute(ctx, "file_search", map[string]any{"pattern": "*.go", "limit": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.Get(result, "count").Int())

	_, err = reg.Execute(ctx, "file_search", map[string]any{"pattern": "[", "root": "."})
	assert.ErrorContains(t, err, "invalid pattern")
}

func toStrings(results []gjson.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.String())
	}
	return out
}
