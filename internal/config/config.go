// Package config handles Kestrel configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full application configuration, read from a TOML file.
type Config struct {
	LLM   LLMConfig   `toml:"llm"`
	Agent AgentConfig `toml:"agent"`
	Retry RetryConfig `toml:"retry"`
	MCP   MCPConfig   `toml:"mcp"`
	Paths PathsConfig `toml:"paths"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider    string  `toml:"provider"` // "anthropic" or "openai"
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	TimeoutSecs float64 `toml:"timeout"`
}

// AgentConfig bounds the step loop.
type AgentConfig struct {
	MaxSteps     int    `toml:"max_steps"`
	SystemPrompt string `toml:"system_prompt"`
}

// RetryConfig tunes the model-call retry policy.
type RetryConfig struct {
	Enabled         bool    `toml:"enabled"`
	MaxRetries      int     `toml:"max_retries"`
	InitialDelay    float64 `toml:"initial_delay"`
	MaxDelay        float64 `toml:"max_delay"`
	ExponentialBase float64 `toml:"exponential_base"`
}

// MCPConfig points at the external tool-provider config file and the
// process-wide timeout defaults, all in seconds.
type MCPConfig struct {
	ConfigPath     string  `toml:"config_path"`
	ConnectTimeout float64 `toml:"connect_timeout"`
	ExecuteTimeout float64 `toml:"execute_timeout"`
	SSEReadTimeout float64 `toml:"sse_read_timeout"`
}

// PathsConfig locates the workspace and data directories.
type PathsConfig struct {
	Workspace  string `toml:"workspace"`
	DataDir    string `toml:"data_dir"`
	SkillsDir  string `toml:"skills_dir"`
	SessionsDB string `toml:"sessions_db"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".kestrel")

	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0,
			TimeoutSecs: 120,
		},
		Agent: AgentConfig{
			MaxSteps: 20,
		},
		Retry: RetryConfig{
			Enabled:         true,
			MaxRetries:      3,
			InitialDelay:    1,
			MaxDelay:        60,
			ExponentialBase: 2,
		},
		MCP: MCPConfig{
			ConfigPath: filepath.Join(dataDir, "mcp.json"),
		},
		Paths: PathsConfig{
			Workspace:  ".",
			DataDir:    dataDir,
			SkillsDir:  filepath.Join(dataDir, "skills"),
			SessionsDB: filepath.Join(dataDir, "sessions.db"),
		},
	}
}

// Load loads the configuration from the given path. A missing file returns
// defaults; API keys fall back to the conventional environment variables.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	cfg.expandPaths()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey != "" {
		return
	}
	switch c.LLM.Provider {
	case "anthropic":
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent max_steps must not be negative")
	}
	return nil
}

// expandPaths expands a leading ~ in path fields.
func (c *Config) expandPaths() {
	c.Paths.Workspace = expandHome(c.Paths.Workspace)
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.SkillsDir = expandHome(c.Paths.SkillsDir)
	c.Paths.SessionsDB = expandHome(c.Paths.SessionsDB)
	c.MCP.ConfigPath = expandHome(c.MCP.ConfigPath)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
