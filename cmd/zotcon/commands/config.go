package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/zotcon/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., ZOTCON_API__BASE_URL → api.base_url)
const envPrefix = "ZOTCON_"

// topLevelKeys are the config keys without a section, settable from flags and environment.
var topLevelKeys = map[string]bool{
	"log_level":    true,
	"log_format":   true,
	"log_exporter": true,
	"log_endpoint": true,
}

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(configFlags(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// envKey maps ZOTCON_AUTH__STORAGE to auth.storage. Variables that are not
// config keys, such as the ZOTCON_AUTH_TOKEN_SECRET credentials read by env
// storage, map to the empty key and are skipped.
func envKey(key, value string) (string, any) {
	stripped := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if !strings.Contains(stripped, "__") && !topLevelKeys[stripped] {
		return "", nil
	}
	return strings.ReplaceAll(stripped, "__", "."), value
}

// configFlags collects the set config flags, including parent flags.
// Examples: --api--base-url → api.base_url, --log-level → log_level.
// Command options such as --file are not config keys and are left out.
func configFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}

		key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
		if !strings.Contains(key, ".") && !topLevelKeys[key] {
			continue
		}

		if value := cmd.Value(name); value != nil {
			values[key] = value
		}
	}

	return values
}
