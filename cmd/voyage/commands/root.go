// Package commands wires the voyage CLI: configuration loading,
// observability setup, and the command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/voyagehq/voyage-cli/internal/app"
	"github.com/voyagehq/voyage-cli/internal/auth"
	"github.com/voyagehq/voyage-cli/internal/observability"
	"github.com/voyagehq/voyage-cli/internal/platform"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "voyage",
		Usage: "Voyage platform CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:    "environment",
				Aliases: []string{"e"},
				Usage:   "target environment",
				Value:   app.DefaultConfigEnvironment,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otlp)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			appsCommand(),
			versionsCommand(),
			runsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads configuration and installs the logging handler. Every
// command action starts here.
func setup(cmd *cli.Command) (*app.Config, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, nil
}

// newManager builds the auth manager over the configured credential store.
func newManager(cfg *app.Config) (*auth.Manager, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	manager, err := auth.NewManager(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth manager: %w", err)
	}

	return manager, nil
}

// newPlatformClient builds the API client for the active environment,
// authenticated through the manager's token provider.
func newPlatformClient(cfg *app.Config, manager *auth.Manager) (*platform.Client, error) {
	env, err := cfg.ActiveEnvironment()
	if err != nil {
		return nil, err
	}

	return platform.NewClient(env.APIBaseURL, manager.TokenProvider(cfg.Environment, env.LoginConfig()))
}
