package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

type noteEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category,omitempty"`
	Text      string    `json:"text"`
}

// Note appends a note to the JSON-lines notebook file.
type Note struct {
	Path string
}

func (t *Note) Name() string { return "note" }

func (t *Note) Description() string {
	return "Save a note for later recall, optionally tagged with a category"
}

func (t *Note) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":     map[string]any{"type": "string", "description": "Note text"},
			"category": map[string]any{"type": "string", "description": "Optional category tag"},
		},
		"required": []string{"text"},
	}
}

func (t *Note) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	category, _ := args["category"].(string)

	entry := noteEntry{Timestamp: time.Now().UTC(), Category: category, Text: text}
	line, err := json.Marshal(entry)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return schema.Fail(err.Error()), nil
	}
	f, err := os.OpenFile(t.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return schema.Fail(err.Error()), nil
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return schema.Fail(err.Error()), nil
	}
	return schema.Ok("note saved"), nil
}

// Recall reads back saved notes, newest last, optionally filtered by category.
type Recall struct {
	Path string
}

func (t *Recall) Name() string { return "recall" }

func (t *Recall) Description() string {
	return "Recall previously saved notes, optionally filtered by category"
}

func (t *Recall) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{"type": "string", "description": "Only notes with this category"},
		},
	}
}

func (t *Recall) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	category, _ := args["category"].(string)

	f, err := os.Open(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.Ok("no notes saved yet"), nil
		}
		return schema.Fail(err.Error()), nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry noteEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		tag := ""
		if entry.Category != "" {
			tag = fmt.Sprintf(" [%s]", entry.Category)
		}
		out = append(out, fmt.Sprintf("%s%s: %s", entry.Timestamp.Format("2006-01-02 15:04"), tag, entry.Text))
	}
	if err := scanner.Err(); err != nil {
		return schema.Fail(err.Error()), nil
	}

	if len(out) == 0 {
		return schema.Ok("no matching notes"), nil
	}
	return schema.Ok(strings.Join(out, "\n")), nil
}
