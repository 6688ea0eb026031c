package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

const defaultBashTimeout = 60 * time.Second

// Bash runs a shell command in the workspace and returns combined output.
type Bash struct {
	Root string
}

func (t *Bash) Name() string { return "bash" }

func (t *Bash) Description() string {
	return "Run a shell command in the workspace and return its output"
}

func (t *Bash) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to run"},
			"timeout": map[string]any{"type": "number", "description": "Timeout in seconds"},
		},
		"required": []string{"command"},
	}
}

func (t *Bash) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return schema.Fail(err.Error()), nil
	}

	timeout := defaultBashTimeout
	if s, ok := args["timeout"].(float64); ok && s > 0 {
		timeout = time.Duration(s * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.Root

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := strings.TrimRight(out.String(), "\n")

	if ctx.Err() == context.DeadlineExceeded {
		return schema.Fail(fmt.Sprintf("command timed out after %s", timeout)), nil
	}
	if runErr != nil {
		if output == "" {
			return schema.Fail(runErr.Error()), nil
		}
		return schema.Fail(fmt.Sprintf("%s\n%s", runErr, output)), nil
	}
	return schema.Ok(output), nil
}
