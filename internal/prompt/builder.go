// Package prompt builds the agent's system prompt.
package prompt

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Builder assembles a system prompt from the environment and the available
// tool set. Extra carries user-configured instructions and is appended last
// so it can override anything above it.
type Builder struct {
	Workspace string
	Extra     string
}

// Build returns the full system prompt.
func (b *Builder) Build(tools []schema.Tool) string {
	sections := []string{
		"You are Kestrel, a coding agent. Be concise and act through your tools.",
		"Tools:\n" + toolSection(tools),
		"Workspace:\n" + b.workspaceLine(),
		"Runtime:\n" + runtimeLine(),
		"Current date: " + time.Now().Format("Monday, 2 January 2006"),
	}
	if b.Extra != "" {
		sections = append(sections, b.Extra)
	}
	return strings.Join(sections, "\n\n")
}

func toolSection(tools []schema.Tool) string {
	if len(tools) == 0 {
		return "None."
	}
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func (b *Builder) workspaceLine() string {
	if b.Workspace != "" && b.Workspace != "." {
		return b.Workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return wd
}

func runtimeLine() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%s on %s", runtime.GOOS, runtime.GOARCH, host)
}
