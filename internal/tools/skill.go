package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Skill loads markdown playbooks from a skills directory. Calling it without
// a name lists the available skills.
type Skill struct {
	Dir string
}

func (t *Skill) Name() string { return "skill" }

func (t *Skill) Description() string {
	return "Load a named skill document, or list available skills when no name is given"
}

func (t *Skill) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "description": "Skill name without the .md extension"},
		},
	}
}

func (t *Skill) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return t.list()
	}

	// Skill names are bare identifiers, never paths.
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return schema.Fail(fmt.Sprintf("invalid skill name %q", name)), nil
	}

	content, err := os.ReadFile(filepath.Join(t.Dir, name+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return schema.Fail(fmt.Sprintf("skill %q not found", name)), nil
		}
		return schema.Fail(err.Error()), nil
	}
	return schema.Ok(string(content)), nil
}

func (t *Skill) list() (*schema.ToolResult, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.Ok("no skills directory configured"), nil
		}
		return schema.Fail(err.Error()), nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)

	if len(names) == 0 {
		return schema.Ok("no skills available"), nil
	}
	return schema.Ok("available skills:\n" + strings.Join(names, "\n")), nil
}
