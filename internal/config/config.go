// Package config discovers and loads the ambient playbook configuration —
// the SQLite database path, the default plugin config and the default
// node timeout — from a "playbook-config" file (JSON/YAML/TOML, viper's
// usual search rules) plus PLAYBOOK_ environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the process-wide settings that aren't part of any one
// runbook document.
type Config struct {
	// DatabasePath is where the run/execution SQLite store lives.
	DatabasePath string
	// DefaultTimeoutSeconds is used for Command nodes that omit timeout,
	// overriding the domain package's built-in default when set.
	DefaultTimeoutSeconds int
	// AutoApprove answers every prompt_before/prompt_after affirmatively
	// without reading stdin — for unattended runs.
	AutoApprove bool
	// PluginConfig is the default configuration merged into a plugin's
	// first Initialize call, before any node-level plugin_config.
	PluginConfig map[string]map[string]any
}

// Load searches the working directory and $HOME for a "playbook-config"
// file, applies PLAYBOOK_ prefixed environment overrides, and returns the
// resulting Config. A missing config file is not an error: defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("playbook-config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix("PLAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", "playbook.db")
	v.SetDefault("default_timeout_seconds", 300)
	v.SetDefault("auto_approve", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		DatabasePath:          v.GetString("database_path"),
		DefaultTimeoutSeconds: v.GetInt("default_timeout_seconds"),
		AutoApprove:           v.GetBool("auto_approve"),
	}
	if m := v.GetStringMap("plugins"); len(m) > 0 {
		cfg.PluginConfig = make(map[string]map[string]any, len(m))
		for name, raw := range m {
			if sub, ok := raw.(map[string]any); ok {
				cfg.PluginConfig[name] = sub
			}
		}
	}
	return cfg, nil
}

// DefaultTimeout returns the configured default as a Duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}
