package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/voyagehq/voyage-cli/internal/app"
)

func noEnv() []string { return nil }

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voyage.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() unexpected error: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil, noEnv)
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}

	if cfg.Environment != app.DefaultConfigEnvironment {
		t.Errorf("Environment = %q, want %q", cfg.Environment, app.DefaultConfigEnvironment)
	}
	if cfg.LogFormat != app.DefaultConfigLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, app.DefaultConfigLogFormat)
	}
	if cfg.Auth.Storage != app.DefaultConfigAuthStorage {
		t.Errorf("Auth.Storage = %q, want %q", cfg.Auth.Storage, app.DefaultConfigAuthStorage)
	}
	if cfg.Callback.Port != app.DefaultConfigCallbackPort {
		t.Errorf("Callback.Port = %d, want %d", cfg.Callback.Port, app.DefaultConfigCallbackPort)
	}

	env, err := cfg.ActiveEnvironment()
	if err != nil {
		t.Fatalf("ActiveEnvironment() unexpected error: %v", err)
	}
	if len(env.Scopes) == 0 {
		t.Error("default environment has no scopes")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
environment = "staging"
log_format = "json"

[callback]
port = 9000

[environments.staging]
issuer_url = "https://auth.staging.example.com"
client_id = "voyage-staging"
api_base_url = "https://api.staging.example.com/v1"
`)

	cfg, err := loadConfig(path, nil, noEnv)
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q, want staging", cfg.Environment)
	}
	if cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Callback.Port != 9000 {
		t.Errorf("Callback.Port = %d, want 9000", cfg.Callback.Port)
	}

	env, err := cfg.ActiveEnvironment()
	if err != nil {
		t.Fatalf("ActiveEnvironment() unexpected error: %v", err)
	}
	if env.ClientID != "voyage-staging" {
		t.Errorf("ClientID = %q, want voyage-staging", env.ClientID)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
log_format = "json"

[callback]
port = 9000
`)

	environ := func() []string {
		return []string{
			"VOYAGE_LOG_FORMAT=text",
			"VOYAGE_CALLBACK__PORT=7777",
			"VOYAGE_CALLBACK__TIMEOUT=30s",
		}
	}

	cfg, err := loadConfig(path, nil, environ)
	if err != nil {
		t.Fatalf("loadConfig() unexpected error: %v", err)
	}

	if cfg.LogFormat != app.LogFormatText {
		t.Errorf("LogFormat = %q, want env override text", cfg.LogFormat)
	}
	if cfg.Callback.Port != 7777 {
		t.Errorf("Callback.Port = %d, want env override 7777", cfg.Callback.Port)
	}
	if cfg.Callback.Timeout != 30*time.Second {
		t.Errorf("Callback.Timeout = %v, want 30s", cfg.Callback.Timeout)
	}
}

func TestLoadConfigUnknownEnvironment(t *testing.T) {
	environ := func() []string {
		return []string{"VOYAGE_ENVIRONMENT=missing"}
	}

	if _, err := loadConfig("", nil, environ); err == nil {
		t.Error("loadConfig() expected error for unknown environment")
	}
}

func TestExtractAndTransformFlags(t *testing.T) {
	var got map[string]any

	cmd := &cli.Command{
		Name: "voyage",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.StringFlag{Name: "environment", Value: "production"},
		},
		Commands: []*cli.Command{
			{
				Name: "login",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "callback--port", Value: 8989},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					got = extractAndTransformFlags(cmd)
					return nil
				},
			},
		},
	}

	err := cmd.Run(context.Background(), []string{"voyage", "--log-level", "debug", "login", "--callback--port", "7777"})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if got["log_level"] != "debug" {
		t.Errorf("log_level = %v, want debug", got["log_level"])
	}
	if got["callback.port"] != int64(7777) && got["callback.port"] != 7777 {
		t.Errorf("callback.port = %v, want 7777", got["callback.port"])
	}
	if _, ok := got["environment"]; ok {
		t.Error("unset environment flag must not appear in flag values")
	}
}
