// Package tools provides the builtin local tools: file access, shell
// execution, notes, skills and web fetch. Every tool reports failures as a
// failed ToolResult so the model can see and react to them.
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// resolvePath anchors a possibly-relative path under the workspace root and
// rejects paths that escape it.
func resolvePath(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace %q", path, root)
	}
	return abs, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter required", key)
	}
	return v, nil
}

// ReadFile reads a workspace file, optionally a line window of it.
type ReadFile struct {
	Root string
}

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Description() string {
	return "Read a file from the workspace, optionally starting at a line offset with a line limit"
}

func (t *ReadFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path, relative to the workspace"},
			"offset": map[string]any{"type": "integer", "description": "Line to start from (0-based)"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFile) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	abs, err := resolvePath(t.Root, path)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	lines := strings.Split(string(content), "\n")
	if o, ok := args["offset"].(float64); ok && int(o) > 0 {
		if int(o) >= len(lines) {
			return schema.Ok(""), nil
		}
		lines = lines[int(o):]
	}
	if l, ok := args["limit"].(float64); ok && int(l) > 0 && int(l) < len(lines) {
		lines = lines[:int(l)]
	}
	return schema.Ok(strings.Join(lines, "\n")), nil
}

// WriteFile writes a workspace file, creating parent directories as needed.
type WriteFile struct {
	Root string
}

func (t *WriteFile) Name() string { return "write_file" }

func (t *WriteFile) Description() string {
	return "Write content to a workspace file, creating it and any parent directories"
}

func (t *WriteFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace"},
			"content": map[string]any{"type": "string", "description": "Full file content"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFile) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return schema.Fail("content parameter required"), nil
	}

	abs, err := resolvePath(t.Root, path)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return schema.Fail(err.Error()), nil
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return schema.Fail(err.Error()), nil
	}
	return schema.Ok(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
}

// EditFile replaces one exact occurrence of a string in a workspace file.
type EditFile struct {
	Root string
}

func (t *EditFile) Name() string { return "edit_file" }

func (t *EditFile) Description() string {
	return "Replace an exact string in a workspace file; the string must occur exactly once"
}

func (t *EditFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string", "description": "File path, relative to the workspace"},
			"old_string": map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string": map[string]any{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFile) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	oldStr, ok := args["old_string"].(string)
	if !ok || oldStr == "" {
		return schema.Fail("old_string parameter required"), nil
	}
	newStr, ok := args["new_string"].(string)
	if !ok {
		return schema.Fail("new_string parameter required"), nil
	}

	abs, err := resolvePath(t.Root, path)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	switch n := strings.Count(string(content), oldStr); {
	case n == 0:
		return schema.Fail(fmt.Sprintf("old_string not found in %s", path)), nil
	case n > 1:
		return schema.Fail(fmt.Sprintf("old_string occurs %d times in %s, must be unique", n, path)), nil
	}

	updated := strings.Replace(string(content), oldStr, newStr, 1)
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return schema.Fail(err.Error()), nil
	}
	return schema.Ok(fmt.Sprintf("edited %s", path)), nil
}
