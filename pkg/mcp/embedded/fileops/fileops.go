// Package fileops is the one built-in embedded.Server this runtime ships: a
// small file read/write/list tool provider, confined to a base directory,
// that exercises the Supervisor's inprocess short-circuit end to end
// (spec.md §6, supplementing the collaborator-only "separate built-in
// file-operations server" mention in spec.md §1).
package fileops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deechat/mcp-core/pkg/mcp/embedded"
)

// Tool is an alias for embedded.Tool so this package's exported signatures
// read naturally without every caller importing pkg/mcp/embedded directly.
type Tool = embedded.Tool

// Config configures a fileops Server, matching the teacher's
// Config-struct-plus-New(ctx, *Config) constructor idiom.
type Config struct {
	// BaseDir is the directory every relative path is resolved against and
	// confined to; empty defaults to the current working directory.
	BaseDir string
}

// Server is the embedded file-operations provider.
type Server struct {
	config  *Config
	baseDir string
}

// New validates config and returns a ready-to-use Server.
func New(_ context.Context, config *Config) (*Server, error) {
	if config == nil {
		config = &Config{}
	}
	baseDir := config.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("fileops: resolve default base dir: %w", err)
		}
		baseDir = wd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("fileops: resolve base dir %q: %w", baseDir, err)
	}
	return &Server{config: config, baseDir: abs}, nil
}

const (
	toolRead  = "fileops.read"
	toolWrite = "fileops.write"
	toolList  = "fileops.list"
)

// ListTools describes the three tools this server exposes.
func (s *Server) ListTools(context.Context) ([]Tool, error) {
	return []Tool{
		{
			Name:        toolRead,
			Description: "Read a file's contents as text",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        toolWrite,
			Description: "Write text content to a file, creating parent directories as needed",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        toolList,
			Description: "List entries of a directory",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
			},
		},
	}, nil
}

// CallTool dispatches name to the matching file operation, confining every
// path argument to the server's base directory.
func (s *Server) CallTool(_ context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case toolRead:
		path, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("fileops: read %q: %w", path, err)
		}
		return string(data), nil

	case toolWrite:
		path, err := stringArg(args, "path")
		if err != nil {
			return nil, err
		}
		content, err := stringArg(args, "content")
		if err != nil {
			return nil, err
		}
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, fmt.Errorf("fileops: mkdir for %q: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("fileops: write %q: %w", path, err)
		}
		return map[string]any{"bytesWritten": len(content)}, nil

	case toolList:
		path, _ := args["path"].(string)
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(full)
		if err != nil {
			return nil, fmt.Errorf("fileops: list %q: %w", path, err)
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		return names, nil

	default:
		return nil, fmt.Errorf("fileops: unknown tool %q", name)
	}
}

// resolve joins path onto the base directory and rejects anything that
// escapes it via ".." segments. An absolute path is not rejected; it is
// joined under baseDir like a relative one.
func (s *Server) resolve(path string) (string, error) {
	full := filepath.Join(s.baseDir, path)
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fileops: path %q escapes base directory", path)
	}
	return full, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("fileops: missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("fileops: argument %q must be a string", key)
	}
	return s, nil
}
