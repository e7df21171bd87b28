package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults applied by Normalize.
const (
	// DefaultBackendURL is the backend base URL used when none is set.
	DefaultBackendURL = "http://localhost:11434"
	// DefaultModel is the backend model used when none is set.
	DefaultModel = "llama3.1:8b"
	// DefaultTemperature is the generation temperature used when none is set.
	DefaultTemperature = 0.7
	// DefaultTimeout is the generation timeout used when none is set.
	DefaultTimeout = 60 * time.Second
)

// Config represents a relay.yaml configuration file.
// All values act as defaults for relay run flags; CLI flags always
// override config values.
type Config struct {
	// Endpoint is the remote message endpoint address (required, no default).
	Endpoint string `yaml:"endpoint"`
	// Mode selects autonomous or operator-driven replies: "auto" or "manual".
	Mode string `yaml:"mode"`
	// Fragments enables fragment reconstruction. Defaults to true.
	Fragments *bool `yaml:"fragments"`
	// LogLevel selects the log verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Backend    BackendConfig    `yaml:"backend"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Notify     NotifyConfig     `yaml:"notify"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// BackendConfig holds text-generation backend settings.
type BackendConfig struct {
	URL         string   `yaml:"url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
}

// PromptConfig holds the system prompt source. Exactly one of Text or
// File must resolve to non-empty content; inline text wins when both are
// set.
type PromptConfig struct {
	Text string `yaml:"text"`
	File string `yaml:"file"`
}

// NotifyConfig holds downstream notification settings.
type NotifyConfig struct {
	// Type selects the notifier: "webhook", "redis", or "none"/"".
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// TranscriptConfig holds session transcript settings.
type TranscriptConfig struct {
	// Path is the transcript file path. Empty disables the transcript.
	Path string `yaml:"path"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Normalize fills unset optional values with their defaults.
func (c *Config) Normalize() {
	if c.Mode == "" {
		c.Mode = "auto"
	}
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Backend.Model == "" {
		c.Backend.Model = DefaultModel
	}
	if c.Backend.Temperature == nil {
		t := DefaultTemperature
		c.Backend.Temperature = &t
	}
	if c.Backend.Timeout.Duration <= 0 {
		c.Backend.Timeout.Duration = DefaultTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration before startup. Startup must fail
// fast on any error returned here.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Mode != "auto" && c.Mode != "manual" {
		return fmt.Errorf("mode must be auto or manual, got %q", c.Mode)
	}
	if c.Prompt.Text == "" && c.Prompt.File == "" {
		return fmt.Errorf("either prompt.text or prompt.file must be set")
	}
	switch c.Notify.Type {
	case "", "none", "webhook", "redis":
	default:
		return fmt.Errorf("notify.type must be webhook, redis, or none, got %q", c.Notify.Type)
	}
	if (c.Notify.Type == "webhook" || c.Notify.Type == "redis") && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required for notify.type %q", c.Notify.Type)
	}
	return nil
}

// FragmentsEnabled reports whether fragment reconstruction is on.
// Unset defaults to enabled.
func (c *Config) FragmentsEnabled() bool {
	return c.Fragments == nil || *c.Fragments
}

// ResolvePrompt returns the system prompt content: inline text when set,
// otherwise the trimmed contents of the prompt file. An empty resolved
// prompt is a configuration error.
func (c *Config) ResolvePrompt() (string, error) {
	if c.Prompt.Text != "" {
		return c.Prompt.Text, nil
	}
	data, err := os.ReadFile(c.Prompt.File)
	if err != nil {
		return "", fmt.Errorf("cannot read prompt file %q: %w", c.Prompt.File, err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %q is empty", c.Prompt.File)
	}
	return prompt, nil
}
