// Package cmd provides CLI commands for the relay binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes for relay commands.
const (
	exitSuccess            = 0
	exitConfigInvalid      = 1
	exitTransportFailed    = 2
	exitBackendUnavailable = 3
)

// Shared flags for commands that talk to the backend.
var (
	// ConfigFlag selects the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to relay.yaml config file",
		Value:   "relay.yaml",
	}

	// BackendURLFlag overrides the backend base URL.
	BackendURLFlag = &cli.StringFlag{
		Name:  "backend-url",
		Usage: "Text-generation backend base URL",
	}

	// ModelFlag overrides the backend model identifier.
	ModelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Model identifier the backend must serve",
	}
)

// BackendFlags returns the shared flags for backend-facing commands.
func BackendFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		BackendURLFlag,
		ModelFlag,
	}
}
