package main

import (
	"os"

	"github.com/ormasoftchile/playbook/internal/adapters"
	"github.com/ormasoftchile/playbook/internal/config"
	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/engine"
	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/parser"
	"github.com/ormasoftchile/playbook/internal/persistence"
	"github.com/ormasoftchile/playbook/internal/plugin"
	"github.com/ormasoftchile/playbook/internal/variables"
)

// loadConfig loads the ambient configuration, wrapping a load failure as a
// ConfigurationError so main's exit-code mapping reports it as exit 2.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, err, "load configuration")
	}
	return cfg, nil
}

// loadRunbook parses path into a Runbook and the merged variable
// environment used to render it, layering CLI overrides over a var file
// over the process environment (§4.2 priority order). A node that omits
// `timeout` falls back to cfg's default_timeout_seconds.
func loadRunbook(cfg *config.Config, path string, varFile string, cliVarArgs []string) (*domain.Runbook, map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindParse, err, "read runbook %q", path)
	}

	var fileVars map[string]any
	if varFile != "" {
		fileVars, err = variables.LoadFile(varFile)
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindParse, err, "load variable file %q", varFile)
		}
	}
	cliVars, err := variables.ParseCLIVariables(cliVarArgs)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindParse, err, "parse --var arguments")
	}
	envVars := variables.LoadEnv(variables.DefaultEnvPrefix)

	rb, vars, err := parser.Parse(src, parser.Options{
		EnvVars:               envVars,
		FileVars:              fileVars,
		CLIVars:               cliVars,
		Prompt:                nil,
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
	})
	if err != nil {
		return nil, nil, err
	}
	return rb, vars, nil
}

// buildEngine wires a fresh Engine against store, using the ambient
// configuration to choose a timeout-enforcing process runner, either an
// interactive or auto-approving IOHandler, and a plugin registry seeded
// with each plugin's deployment-level configuration.
func buildEngine(cfg *config.Config, store *persistence.Store) *engine.Engine {
	registry := plugin.NewRegistry(cfg.PluginConfig)
	var io = adapters.NewTerminalIO(os.Stdin, os.Stdout)
	if cfg.AutoApprove {
		return engine.New(store, store, adapters.NewShellRunner(), adapters.NewAutoApproveIO(os.Stdout), registry)
	}
	return engine.New(store, store, adapters.NewShellRunner(), io, registry)
}

// openStore opens the configured SQLite database, wrapping failures as
// PersistenceErrors so main's exit-code mapping reports exit 3.
func openStore(cfg *config.Config) (*persistence.Store, error) {
	store, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, err, "open database %q", cfg.DatabasePath)
	}
	return store, nil
}
