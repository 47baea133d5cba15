package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/zotcon/internal/app"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zotcon.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigSources(t *testing.T) {
	credentials := filepath.Join(t.TempDir(), "credentials.json")
	path := writeConfigFile(t, `
log_format = "json"

[api]
base_url = "https://file.example/"

[oauth]
client_key = "from-file"

[transport]
timeout = "10s"

[auth]
file = "`+credentials+`"

[preconfigured]
enabled = true
api_key = "KEY"
user_id = "123"
`)

	cfg, err := loadConfig(path, nil, environ(
		"ZOTCON_API__BASE_URL=https://env.example/",
		"ZOTCON_LOG_LEVEL=debug",
		"ZOTCON_AUTH_TOKEN_SECRET=not-a-config-key",
		"OTHER_API__BASE_URL=https://ignored.example/",
	))
	require.NoError(t, err)

	assert.Equal(t, app.LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "https://env.example/", cfg.API.BaseURL, "environment overrides file")
	assert.Equal(t, "from-file", cfg.OAuth.ClientKey)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, credentials, cfg.Auth.File)
	assert.True(t, cfg.Preconfigured.Enabled)
	assert.Equal(t, "KEY", cfg.Preconfigured.APIKey)
	assert.Equal(t, "123", cfg.Preconfigured.UserID)

	// Defaults fill the rest.
	assert.Equal(t, app.DefaultConfigOAuthAccessURL, cfg.OAuth.AccessURL)
	assert.Equal(t, uint16(app.DefaultConfigCallbackPort), cfg.Callback.Port)
}

func TestLoadConfigFlagsOverrideEnvironment(t *testing.T) {
	credentials := filepath.Join(t.TempDir(), "credentials.json")

	var cfg *app.Config
	cmd := &cli.Command{
		Name: "zotcon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api--base-url"},
			&cli.StringFlag{Name: "log-format"},
			&cli.IntFlag{Name: "callback--port"},
			&cli.StringFlag{Name: "file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig("", cmd, environ(
				"ZOTCON_API__BASE_URL=https://env.example/",
				"ZOTCON_AUTH__FILE="+credentials,
			))
			return err
		},
	}

	err := cmd.Run(context.Background(), []string{
		"zotcon",
		"--api--base-url", "https://flag.example/",
		"--callback--port", "24000",
		"--file", "payload.json",
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://flag.example/", cfg.API.BaseURL)
	assert.Equal(t, uint16(24000), cfg.Callback.Port)
	assert.Equal(t, app.LogFormatText, cfg.LogFormat, "unset flags keep defaults")
	assert.Equal(t, credentials, cfg.Auth.File)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig("", nil, environ(
		"ZOTCON_LOG_FORMAT=xml",
		"ZOTCON_AUTH__FILE=/tmp/zotcon/credentials.json",
	))
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, environ())
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ZOTCON_API__BASE_URL", "api.base_url"},
		{"ZOTCON_LOG_LEVEL", "log_level"},
		{"ZOTCON_PRECONFIGURED__API_KEY", "preconfigured.api_key"},
		{"ZOTCON_AUTH_TOKEN_SECRET", ""},
		{"ZOTCON_AUTH_USERID", ""},
	}
	for _, tt := range tests {
		key, _ := envKey(tt.in, "v")
		assert.Equal(t, tt.want, key, tt.in)
	}
}
