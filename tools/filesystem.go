package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultSearchLimit = 100
	maxReadBytes       = 1024 * 1024
)

// validateWorkspacePath ensures the given path is within the workspace directory
// and prevents directory traversal attacks
func validateWorkspacePath(workspacePath, targetPath string) (string, error) {
	absWorkspace, err := filepath.Abs(filepath.Clean(workspacePath))
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	var absTarget string
	if filepath.IsAbs(targetPath) {
		absTarget = filepath.Clean(targetPath)
	} else {
		absTarget, err = filepath.Abs(filepath.Join(absWorkspace, targetPath))
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}

	if !strings.HasPrefix(absTarget+string(filepath.Separator), absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace: %s", targetPath)
	}
	return absTarget, nil
}

type fileEntry struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	ModTime int64  `json:"mod_time"`
}

func entryFor(rel string, info os.FileInfo) fileEntry {
	return fileEntry{
		Path:    rel,
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime().Unix(),
	}
}

type readFileArgs struct {
	Path     string `json:"path" jsonschema_description:"File path relative to the workspace"`
	MaxBytes int64  `json:"max_bytes,omitempty" jsonschema_description:"Read at most this many bytes (default 1 MiB)"`
}

// ReadFileTool reads a text file inside workspacePath.
func ReadFileTool(workspacePath string) Tool {
	return NewTypedTool("read_file", "Read the contents of a file in the workspace.",
		func(_ context.Context, args readFileArgs) (any, error) {
			validPath, err := validateWorkspacePath(workspacePath, args.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(validPath)
			if err != nil {
				return nil, fmt.Errorf("failed to stat file: %w", err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("path is a directory, not a file: %s", args.Path)
			}

			limit := args.MaxBytes
			if limit <= 0 || limit > maxReadBytes {
				limit = maxReadBytes
			}
			file, err := os.Open(validPath) //#nosec G304 -- validated above
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close() //nolint:errcheck // File close error can be ignored

			content, err := io.ReadAll(io.LimitReader(file, limit))
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			return map[string]any{
				"path":      args.Path,
				"content":   string(content),
				"size":      len(content),
				"truncated": info.Size() > int64(len(content)),
			}, nil
		})
}

type listDirectoryArgs struct {
	Path          string `json:"path,omitempty" jsonschema_description:"Directory relative to the workspace (default .)"`
	Recursive     bool   `json:"recursive,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
}

// ListDirectoryTool lists a directory inside workspacePath.
func ListDirectoryTool(workspacePath string) Tool {
	return NewTypedTool("list_directory", "List the entries of a workspace directory, optionally recursively.",
		func(_ context.Context, args listDirectoryArgs) (any, error) {
			if args.Path == "" {
				args.Path = "."
			}
			validPath, err := validateWorkspacePath(workspacePath, args.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(validPath)
			if err != nil {
				return nil, fmt.Errorf("failed to stat path: %w", err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("path is not a directory: %s", args.Path)
			}

			root, _ := validateWorkspacePath(workspacePath, ".")
			entries := []fileEntry{}
			err = filepath.Walk(validPath, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if path == validPath {
					return nil
				}
				if !args.IncludeHidden && strings.HasPrefix(info.Name(), ".") {
					if info.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				entries = append(entries, entryFor(rel, info))
				if info.IsDir() && !args.Recursive {
					return filepath.SkipDir
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk directory: %w", err)
			}
			return map[string]any{
				"path":    args.Path,
				"entries": entries,
				"count":   len(entries),
			}, nil
		})
}

type fileInfoArgs struct {
	Path string `json:"path" jsonschema_description:"Path relative to the workspace"`
}

// FileInfoTool stats a path inside workspacePath.
func FileInfoTool(workspacePath string) Tool {
	return NewTypedTool("file_info", "Return size, mode and modification time of a workspace path.",
		func(_ context.Context, args fileInfoArgs) (any, error) {
			validPath, err := validateWorkspacePath(workspacePath, args.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(validPath)
			if os.IsNotExist(err) {
				return map[string]any{"path": args.Path, "exists": false}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to stat file: %w", err)
			}
			return map[string]any{
				"path":   args.Path,
				"exists": true,
				"entry":  entryFor(args.Path, info),
			}, nil
		})
}

type fileSearchArgs struct {
	Pattern string `json:"pattern" jsonschema_description:"Glob matched against file names (e.g. *.go)"`
	Root    string `json:"root,omitempty" jsonschema_description:"Directory to search from (default .)"`
	Limit   int    `json:"limit,omitempty" jsonschema_description:"Maximum number of matches (default 100)"`
}

// FileSearchTool finds files by name glob inside workspacePath.
func FileSearchTool(workspacePath string) Tool {
	return NewTypedTool("file_search", "Find workspace files whose name matches a glob pattern.",
		func(_ context.Context, args fileSearchArgs) (any, error) {
			if args.Root == "" {
				args.Root = "."
			}
			if args.Limit <= 0 {
				args.Limit = defaultSearchLimit
			}
			if _, err := filepath.Match(args.Pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}
			validRoot, err := validateWorkspacePath(workspacePath, args.Root)
			if err != nil {
				return nil, err
			}
			root, _ := validateWorkspacePath(workspacePath, ".")

			matches := []string{}
			_ = filepath.Walk(validRoot, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil // Skip unreadable entries
				}
				if len(matches) >= args.Limit {
					return filepath.SkipAll
				}
				if ok, _ := filepath.Match(args.Pattern, info.Name()); ok {
					if rel, err := filepath.Rel(root, path); err == nil {
						matches = append(matches, rel)
					}
				}
				return nil
			})
			return map[string]any{
				"pattern": args.Pattern,
				"root":    args.Root,
				"matches": matches,
				"count":   len(matches),
			}, nil
		})
}

// RegisterFilesystemTools registers the read-only workspace tools.
func (r *Registry) RegisterFilesystemTools(workspacePath string) {
	r.logger.Info().Str("workspace", workspacePath).Msg("Registering filesystem tools in registry")
	r.Register(ReadFileTool(workspacePath))
	r.Register(ListDirectoryTool(workspacePath))
	r.Register(FileInfoTool(workspacePath))
	r.Register(FileSearchTool(workspacePath))
}
