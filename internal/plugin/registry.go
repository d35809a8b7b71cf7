// Package plugin implements §4.7: the plugin registry — name-to-factory
// lookup, lazy per-node-config initialization, cached instances, and
// metadata-driven parameter coercion/validation before dispatch.
//
// The source keeps this registry as a process-wide singleton; per spec §9
// ("Global state") this implementation instead passes an explicit Registry
// through construction so tests can build independent instances.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/ports"
)

// Factory constructs a fresh, uninitialized plugin instance.
type Factory func() ports.Plugin

// Registry maps plugin names to factories, caching exactly one initialized
// instance per name after first successful Initialize (§4.7).
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]ports.Plugin
	defaults  map[string]map[string]any
}

// NewRegistry builds an empty registry. Call Register for each plugin the
// host process wants to make available to Function nodes. defaults
// supplies each plugin's deployment-level configuration (the ambient
// config file's `[plugins.<name>]` table), whose keys a Function node's
// own `plugin_config` overrides (§3); a nil defaults map means no
// deployment-level config is supplied.
func NewRegistry(defaults map[string]map[string]any) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]ports.Plugin),
		defaults:  defaults,
	}
}

// Register adds a plugin factory under name, overwriting any existing
// registration. Call before the first Dispatch for that name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns every registered plugin name, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// get returns the cached instance for name, constructing and initializing
// it on first use with the given config. Subsequent calls ignore config —
// only the first initialization's configuration takes effect, matching the
// "cached instances" contract of §4.7.
func (r *Registry) get(name string, config map[string]any) (ports.Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[name]; ok {
		return inst, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, errs.New(errs.KindPluginNotFound, "plugin %q is not registered", name)
	}
	inst := factory()
	if err := inst.Initialize(config); err != nil {
		return nil, errs.Wrap(errs.KindPluginInit, err, "initialize plugin %q", name)
	}
	r.instances[name] = inst
	return inst, nil
}

// Dispatch validates and coerces params against the plugin's declared
// function signature, then invokes Execute (§4.7 steps 1–3). pluginConfig
// overrides/extends any globally-supplied config on first initialization
// of this plugin instance, per node-level plugin_config (§3).
func (r *Registry) Dispatch(pluginName, function string, params map[string]any, pluginConfig map[string]any) (any, error) {
	config := pluginConfig
	if defaults := r.defaults[pluginName]; len(defaults) > 0 {
		config = make(map[string]any, len(defaults)+len(pluginConfig))
		for k, v := range defaults {
			config[k] = v
		}
		for k, v := range pluginConfig {
			config[k] = v
		}
	}
	inst, err := r.get(pluginName, config)
	if err != nil {
		return nil, err
	}
	meta := inst.Metadata()
	sig, ok := meta.Functions[function]
	if !ok {
		return nil, errs.New(errs.KindFunctionNotFound, "plugin %q has no function %q", pluginName, function)
	}

	coerced, err := validateAndCoerce(pluginName, function, sig, params)
	if err != nil {
		return nil, err
	}

	result, err := inst.Execute(function, coerced)
	if err != nil {
		return nil, errs.Wrap(errs.KindPluginExecution, err, "plugin %q function %q", pluginName, function)
	}
	return result, nil
}

// Close calls Cleanup on every cached plugin instance (§ SUPPLEMENTED
// FEATURES: the original's plugin base class exposes a cleanup() hook that
// has no caller in the read subset of infrastructure/plugin_registry.py —
// this registry invokes it once, at teardown, for every plugin it started).
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, inst := range r.instances {
		if err := inst.Cleanup(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup plugin %q: %w", name, err)
		}
	}
	return firstErr
}

func validateAndCoerce(pluginName, function string, sig ports.FunctionSignature, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(sig.Parameters))
	var problems []string

	for name, def := range sig.Parameters {
		val, present := params[name]
		if !present {
			if def.Required {
				problems = append(problems, fmt.Sprintf("%s: required parameter missing", name))
				continue
			}
			if def.Default == nil {
				continue
			}
			val = def.Default
		}
		coerced, err := coerceParam(name, def, val)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if err := validateParamConstraints(name, def, coerced); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		out[name] = coerced
	}
	for name := range params {
		if _, declared := sig.Parameters[name]; !declared {
			problems = append(problems, fmt.Sprintf("%s: unknown parameter", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, errs.New(errs.KindVariableValidation, "plugin %q function %q: invalid parameters: %v", pluginName, function, problems)
	}
	return out, nil
}
