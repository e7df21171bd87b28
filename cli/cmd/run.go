package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/relay/backend"
	"github.com/pithecene-io/relay/cli/config"
	"github.com/pithecene-io/relay/log"
	"github.com/pithecene-io/relay/metrics"
	"github.com/pithecene-io/relay/notify"
	notifyredis "github.com/pithecene-io/relay/notify/redis"
	notifywebhook "github.com/pithecene-io/relay/notify/webhook"
	"github.com/pithecene-io/relay/session"
	"github.com/pithecene-io/relay/transcript"
	"github.com/pithecene-io/relay/transport"
	"github.com/pithecene-io/relay/types"
)

// RunCommand returns the run command: connect to the endpoint and
// process messages until the connection ends.
func RunCommand() *cli.Command {
	flags := append(BackendFlags(),
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Remote message endpoint address (ws:// or wss://)",
		},
		&cli.Float64Flag{
			Name:  "temperature",
			Usage: "Generation temperature",
			Value: -1, // sentinel: unset
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Generation timeout",
		},
		&cli.StringFlag{
			Name:  "prompt",
			Usage: "System prompt text",
		},
		&cli.StringFlag{
			Name:  "prompt-file",
			Usage: "Path to a file holding the system prompt",
		},
		&cli.BoolFlag{
			Name:  "manual",
			Usage: "Read replies from the operator instead of the backend",
		},
		&cli.BoolFlag{
			Name:  "no-fragments",
			Usage: "Disable fragment reconstruction",
		},
		&cli.StringFlag{
			Name:  "notify-type",
			Usage: "Downstream notifier: webhook, redis, or none",
		},
		&cli.StringFlag{
			Name:  "notify-url",
			Usage: "Downstream notifier URL",
		},
		&cli.StringFlag{
			Name:  "notify-channel",
			Usage: "Redis notify channel",
		},
		&cli.StringFlag{
			Name:  "transcript",
			Usage: "Session transcript file path",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	)

	return &cli.Command{
		Name:   "run",
		Usage:  "Connect to the endpoint and process messages",
		Flags:  flags,
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}
	applyRunFlags(c, cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}
	prompt, err := cfg.ResolvePrompt()
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}

	meta := &types.SessionMeta{
		SessionID: uuid.NewString(),
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Backend.Model,
	}
	logger := log.NewLogger(meta, log.ParseLevel(cfg.LogLevel))
	sugar := logger.Sugar()

	sugar.Infof("relay %s starting", types.Version)
	sugar.Infof("endpoint:    %s", cfg.Endpoint)
	sugar.Infof("backend:     %s (model %s, temperature %.2f, timeout %s)",
		cfg.Backend.URL, cfg.Backend.Model, *cfg.Backend.Temperature, cfg.Backend.Timeout.Duration)
	sugar.Infof("mode:        %s", cfg.Mode)
	sugar.Infof("fragments:   %t", cfg.FragmentsEnabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := backend.NewClient(backend.Config{
		URL:          cfg.Backend.URL,
		Model:        cfg.Backend.Model,
		SystemPrompt: prompt,
		Temperature:  *cfg.Backend.Temperature,
		Timeout:      cfg.Backend.Timeout.Duration,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}

	// The session may not start until the configured model is served.
	if err := client.CheckModel(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("backend check failed: %v", err), exitBackendUnavailable)
	}
	sugar.Infof("backend ready, model %q available", cfg.Backend.Model)

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	var tw *transcript.Writer
	if cfg.Transcript.Path != "" {
		tw, err = transcript.NewWriter(cfg.Transcript.Path, logger)
		if err != nil {
			return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
		}
		defer func() { _ = tw.Close() }()
	}

	conn, err := transport.Dial(ctx, cfg.Endpoint)
	if err != nil {
		return cli.Exit(fmt.Sprintf("connect failed: %v", err), exitTransportFailed)
	}
	defer func() { _ = conn.Close() }()
	sugar.Infof("connected to %s", cfg.Endpoint)

	collector := metrics.NewCollector(meta.SessionID, cfg.Endpoint, cfg.Backend.Model, cfg.Mode)
	loop, err := session.NewLoop(&session.Config{
		Transport:        conn,
		Responder:        backend.NewResponder(client, logger),
		Meta:             meta,
		Logger:           logger,
		Collector:        collector,
		Notifier:         notifier,
		Transcript:       tw,
		FragmentsEnabled: cfg.FragmentsEnabled(),
		Manual:           cfg.Mode == "manual",
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}

	start := time.Now()
	runErr := loop.Run(ctx)
	logSummary(logger, collector, time.Since(start))

	switch {
	case runErr == nil:
		return nil
	case session.IsCanceledError(runErr):
		sugar.Infof("session stopped")
		return nil
	default:
		return cli.Exit(fmt.Sprintf("session failed: %v", runErr), exitTransportFailed)
	}
}

// loadConfig reads the config file. An explicitly passed path must
// exist; the default path is optional.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return &config.Config{}, nil
		}
	}
	return config.Load(path)
}

// applyRunFlags overlays run command flags onto the config.
// Flags always win over file values.
func applyRunFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := c.String("backend-url"); v != "" {
		cfg.Backend.URL = v
	}
	if v := c.String("model"); v != "" {
		cfg.Backend.Model = v
	}
	if v := c.Float64("temperature"); v >= 0 {
		cfg.Backend.Temperature = &v
	}
	if v := c.Duration("timeout"); v > 0 {
		cfg.Backend.Timeout.Duration = v
	}
	if v := c.String("prompt"); v != "" {
		cfg.Prompt.Text = v
	}
	if v := c.String("prompt-file"); v != "" {
		cfg.Prompt.File = v
	}
	if c.Bool("manual") {
		cfg.Mode = "manual"
	}
	if c.Bool("no-fragments") {
		disabled := false
		cfg.Fragments = &disabled
	}
	if v := c.String("notify-type"); v != "" {
		cfg.Notify.Type = v
	}
	if v := c.String("notify-url"); v != "" {
		cfg.Notify.URL = v
	}
	if v := c.String("notify-channel"); v != "" {
		cfg.Notify.Channel = v
	}
	if v := c.String("transcript"); v != "" {
		cfg.Transcript.Path = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
}

// buildNotifier constructs the configured downstream notifier, or nil
// when notification is disabled.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	retries := -1
	if cfg.Notify.Retries != nil {
		retries = *cfg.Notify.Retries
	}

	switch cfg.Notify.Type {
	case "", "none":
		return nil, nil
	case "webhook":
		wcfg := notifywebhook.Config{
			URL:     cfg.Notify.URL,
			Headers: cfg.Notify.Headers,
			Timeout: cfg.Notify.Timeout.Duration,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		} else {
			wcfg.Retries = notifywebhook.DefaultRetries
		}
		return notifywebhook.New(wcfg)
	case "redis":
		rcfg := notifyredis.Config{
			URL:     cfg.Notify.URL,
			Channel: cfg.Notify.Channel,
			Timeout: cfg.Notify.Timeout.Duration,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		} else {
			rcfg.Retries = notifyredis.DefaultRetries
		}
		return notifyredis.New(rcfg)
	default:
		return nil, fmt.Errorf("unknown notify type %q", cfg.Notify.Type)
	}
}

// logSummary logs the session metrics snapshot at teardown.
func logSummary(logger *log.Logger, collector *metrics.Collector, elapsed time.Duration) {
	s := collector.Snapshot()
	logger.Info("session summary", map[string]any{
		"duration_ms":           elapsed.Milliseconds(),
		"frames_received":       s.FramesReceived,
		"plain_text_frames":     s.PlainTextFrames,
		"structured_frames":     s.StructuredFrames,
		"fragment_frames":       s.FragmentFrames,
		"groups_completed":      s.GroupsCompleted,
		"empty_reconstructions": s.EmptyReconstructions,
		"ambiguous_totals":      s.AmbiguousTotals,
		"replies_sent":          s.RepliesSent,
		"manual_replies":        s.ManualReplies,
		"messages_dropped":      s.MessagesDropped,
		"backend_timeouts":      s.BackendTimeouts,
		"backend_unavailable":   s.BackendUnavailable,
		"malformed_replies":     s.MalformedReplies,
		"notify_failures":       s.NotifyFailures,
		"transcript_failures":   s.TranscriptFailures,
	})
}
