package variables

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
)

// DefaultEnvPrefix is the default prefix §6 strips from environment-sourced
// variable names.
const DefaultEnvPrefix = "PLAYBOOK_VAR_"

// PromptFunc asks an operator for a missing required variable's value; it
// is supplied by the caller so this package has no direct IO-handler
// dependency. cmd/playbook passes no PromptFunc, so there a missing required
// variable is always a validation error and the operator is never prompted.
type PromptFunc func(def *domain.VariableDefinition) (string, error)

// Manager merges variable sources, coerces, and validates against
// VariableDefinitions, per §4.2.
type Manager struct {
	Defs      map[string]*domain.VariableDefinition
	EnvPrefix string
}

// NewManager builds a Manager over the runbook's declared variable
// definitions.
func NewManager(defs map[string]*domain.VariableDefinition) *Manager {
	return &Manager{Defs: defs, EnvPrefix: DefaultEnvPrefix}
}

// Merge combines sources in increasing priority order — defaults < env <
// file < cli — coerces every value to its declared type, validates
// constraints, and resolves missing required variables via prompt (when
// provided) or a VariableValidationError enumerating every offender.
func (m *Manager) Merge(envVars, fileVars, cliVars map[string]any, prompt PromptFunc) (map[string]any, error) {
	raw := make(map[string]any, len(m.Defs))
	for name, def := range m.Defs {
		if def.Default != nil {
			raw[name] = def.Default
		}
	}
	for _, layer := range []map[string]any{envVars, fileVars, cliVars} {
		for k, v := range layer {
			raw[k] = v
		}
	}

	result := make(map[string]any, len(raw))
	var errors []string

	names := make([]string, 0, len(m.Defs))
	for name := range m.Defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := m.Defs[name]
		val, present := raw[name]
		if !present {
			if !def.Required {
				continue
			}
			if prompt != nil {
				s, err := prompt(def)
				if err != nil {
					errors = append(errors, fmt.Sprintf("%s: prompt failed: %v", name, err))
					continue
				}
				val = s
			} else {
				errors = append(errors, fmt.Sprintf("%s: required variable missing", name))
				continue
			}
		}
		coerced, err := Coerce(name, def, val)
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}
		if err := ValidateConstraints(name, def, coerced); err != nil {
			errors = append(errors, err.Error())
			continue
		}
		result[name] = coerced
	}

	// Pass through ad-hoc variables not declared in the runbook's
	// [variables] table — the source TOML may reference caller-supplied
	// values with no formal definition; only declared ones get typed
	// coercion/validation.
	for k, v := range raw {
		if _, declared := m.Defs[k]; !declared {
			result[k] = v
		}
	}

	if len(errors) > 0 {
		return nil, errs.New(errs.KindVariableValidation, "variable validation failed:\n  %s", strings.Join(errors, "\n  "))
	}
	return result, nil
}

// MissingRequired reports required variables absent from the merged raw
// sources: the ones Merge would prompt for or reject. Merge does not call it.
func (m *Manager) MissingRequired(envVars, fileVars, cliVars map[string]any) []string {
	raw := make(map[string]any, len(m.Defs))
	for name, def := range m.Defs {
		if def.Default != nil {
			raw[name] = def.Default
		}
	}
	for _, layer := range []map[string]any{envVars, fileVars, cliVars} {
		for k, v := range layer {
			raw[k] = v
		}
	}
	var missing []string
	for name, def := range m.Defs {
		if def.Required {
			if _, ok := raw[name]; !ok {
				missing = append(missing, name)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// SubstituteString renders a single template string against the merged
// variable environment using the shared Renderer, protecting `when` lines
// is the parser's responsibility (§4.3) — this function always renders.
func SubstituteString(r *Renderer, tmpl string, vars map[string]any) (string, error) {
	out, err := r.Render(tmpl, vars)
	if err != nil {
		return "", errs.Wrap(errs.KindTemplateRender, err, "render template %q", tmpl)
	}
	return out, nil
}

// SubstituteValue descends into maps/lists, rendering string leaves and
// passing other leaves through unchanged (§4.2 structural substitution).
func SubstituteValue(r *Renderer, v any, vars map[string]any) (any, error) {
	switch x := v.(type) {
	case string:
		return SubstituteString(r, x, vars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			sv, err := SubstituteValue(r, val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			sv, err := SubstituteValue(r, val, vars)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}
