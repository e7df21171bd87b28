package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/relay/backend"
	"github.com/pithecene-io/relay/cli/config"
)

// CheckResponse is the response for the check command.
type CheckResponse struct {
	BackendURL string   `json:"backend_url"`
	Model      string   `json:"model"`
	Available  bool     `json:"available"`
	Models     []string `json:"models"`
}

// CheckCommand returns the check command: a read-only backend
// readiness probe. It lists the served models and reports whether the
// configured model is among them. It never contacts the endpoint.
func CheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Probe the backend and verify the configured model is served",
		Flags:  BackendFlags(),
		Action: checkAction,
	}
}

func checkAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}
	applyBackendFlags(c, cfg)
	cfg.Normalize()

	// The check only needs a reachable backend, so prompt and endpoint
	// validation do not apply here.
	client, err := backend.NewClient(backend.Config{
		URL:     cfg.Backend.URL,
		Model:   cfg.Backend.Model,
		Timeout: cfg.Backend.Timeout.Duration,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), exitConfigInvalid)
	}

	models, err := client.ListModels(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("backend unreachable: %v", err), exitBackendUnavailable)
	}

	resp := CheckResponse{
		BackendURL: cfg.Backend.URL,
		Model:      cfg.Backend.Model,
		Available:  client.CheckModel(c.Context) == nil,
		Models:     models,
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal check response: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	if !resp.Available {
		return cli.Exit(fmt.Sprintf("model %q is not served by %s", cfg.Backend.Model, cfg.Backend.URL), exitBackendUnavailable)
	}
	return nil
}

// applyBackendFlags overlays the shared backend flags onto the config.
func applyBackendFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("backend-url"); v != "" {
		cfg.Backend.URL = v
	}
	if v := c.String("model"); v != "" {
		cfg.Backend.Model = v
	}
}
