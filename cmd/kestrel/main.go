// Command kestrel runs an agent turn: it sends a prompt to the configured
// model, lets the model call local and MCP-provided tools, and prints the
// final answer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kestrel-ai/kestrel/internal/agent"
	"github.com/kestrel-ai/kestrel/internal/config"
	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/mcp"
	"github.com/kestrel-ai/kestrel/internal/prompt"
	"github.com/kestrel-ai/kestrel/internal/retry"
	"github.com/kestrel-ai/kestrel/internal/schema"
	"github.com/kestrel-ai/kestrel/internal/session"
	"github.com/kestrel-ai/kestrel/internal/tools"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", defaultConfigPath(), "path to the config file")
		task         = flag.String("prompt", "", "prompt to send to the agent")
		sessionID    = flag.String("session", "", "resume an existing session by id")
		listSessions = flag.Bool("sessions", false, "list stored sessions and exit")
		maxSteps     = flag.Int("max-steps", 0, "override the agent step limit")
		verbose      = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if *listSessions {
		return printSessions(store)
	}
	if *task == "" {
		return fmt.Errorf("a -prompt is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	mcp.SetTimeouts(mcp.TimeoutConfig{
		Connect: secondsToDuration(cfg.MCP.ConnectTimeout),
		Execute: secondsToDuration(cfg.MCP.ExecuteTimeout),
		SSERead: secondsToDuration(cfg.MCP.SSEReadTimeout),
	})

	toolset := tools.Builtin(cfg.Paths.Workspace, cfg.Paths.DataDir, cfg.Paths.SkillsDir)

	registry := mcp.NewRegistry()
	defer registry.Cleanup()
	if _, err := os.Stat(cfg.MCP.ConfigPath); err == nil {
		remote, err := registry.Load(ctx, cfg.MCP.ConfigPath)
		if err != nil {
			return err
		}
		toolset = append(toolset, remote...)
	}

	steps := cfg.Agent.MaxSteps
	if *maxSteps > 0 {
		steps = *maxSteps
	}
	builder := &prompt.Builder{Workspace: cfg.Paths.Workspace, Extra: cfg.Agent.SystemPrompt}
	a := agent.New(&agent.Config{
		Client:       client,
		Tools:        toolset,
		SystemPrompt: builder.Build(toolset),
		MaxSteps:     steps,
	})

	sess, err := resumeOrCreate(ctx, store, a, *sessionID, *task)
	if err != nil {
		return err
	}

	a.AddUserMessage(*task)
	if err := store.AppendMessage(ctx, sess.ID, schema.Message{Role: schema.RoleUser, Content: *task}); err != nil {
		return err
	}

	// Interrupt requests a stop at the next step boundary; a second signal
	// kills the process via the context.
	go func() {
		<-ctx.Done()
		a.Cancel()
	}()

	result, err := a.Run(ctx)
	if err != nil {
		return err
	}

	persistNewMessages(store, sess.ID, a.History())

	usage := a.Usage()
	fmt.Println(headerStyle.Render("kestrel"))
	fmt.Println(result.Content)
	fmt.Println(dimStyle.Render(fmt.Sprintf(
		"status=%s steps=%d tokens=%d tools=%d elapsed=%s session=%s",
		result.Status, result.Steps, usage.TotalTokens, usage.ToolCalls,
		usage.Elapsed.Round(time.Millisecond), sess.ID)))
	return nil
}

func buildClient(cfg *config.Config) (llm.Client, error) {
	policy := retry.DefaultPolicy()
	policy.Enabled = cfg.Retry.Enabled
	policy.MaxRetries = cfg.Retry.MaxRetries
	policy.InitialDelay = secondsToDuration(cfg.Retry.InitialDelay)
	policy.MaxDelay = secondsToDuration(cfg.Retry.MaxDelay)
	if cfg.Retry.ExponentialBase > 0 {
		policy.ExponentialBase = cfg.Retry.ExponentialBase
	}
	policy.OnRetry = func(err error, attempt int) {
		slog.Warn("retrying model call", "attempt", attempt, "error", err)
	}

	return llm.New(llm.Provider(cfg.LLM.Provider), llm.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     secondsToDuration(cfg.LLM.TimeoutSecs),
		Retry:       policy,
	})
}

func openSessionStore(cfg *config.Config) (*session.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.SessionsDB), 0o755); err != nil {
		return nil, err
	}
	return session.Open(cfg.Paths.SessionsDB)
}

// resumeOrCreate loads an existing session's history into the agent, or
// starts a fresh session titled from the task.
func resumeOrCreate(ctx context.Context, store *session.Store, a *agent.Agent, id, task string) (*session.Session, error) {
	if id == "" {
		title := task
		if len(title) > 64 {
			title = title[:64]
		}
		return store.Create(ctx, title)
	}

	sess, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	a.LoadHistory(history)
	return sess, nil
}

// persistNewMessages stores everything the run added after the last user
// turn. Failures are logged, never fatal: the answer was already produced.
func persistNewMessages(store *session.Store, sessionID string, history []schema.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last := len(history) - 1
	for last >= 0 && history[last].Role != schema.RoleUser {
		last--
	}
	for _, msg := range history[last+1:] {
		if err := store.AppendMessage(ctx, sessionID, msg); err != nil {
			slog.Warn("persisting message failed", "session", sessionID, "error", err)
			return
		}
	}
}

func printSessions(store *session.Store) error {
	sessions, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println(dimStyle.Render("no sessions"))
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %s\n",
			s.ID,
			dimStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
			s.Title)
	}
	return nil
}

func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "kestrel.toml"
	}
	return filepath.Join(homeDir, ".kestrel", "kestrel.toml")
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
