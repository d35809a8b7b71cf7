package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/playbook/internal/ports"
)

type fakePlugin struct {
	initCount  int
	lastConfig map[string]any
	cleaned    bool
}

func (p *fakePlugin) Metadata() ports.PluginMetadata {
	return ports.PluginMetadata{
		Name: "fake",
		Functions: map[string]ports.FunctionSignature{
			"greet": {
				Parameters: map[string]ports.ParameterDef{
					"name":  {Type: ports.ParamString, Required: true},
					"times": {Type: ports.ParamInt, Default: 1},
				},
			},
		},
	}
}

func (p *fakePlugin) Initialize(config map[string]any) error {
	p.initCount++
	p.lastConfig = config
	return nil
}

func (p *fakePlugin) Execute(function string, params map[string]any) (any, error) {
	return "hello " + params["name"].(string), nil
}

func (p *fakePlugin) Cleanup() error {
	p.cleaned = true
	return nil
}

func TestRegistry_DispatchCoercesAndExecutes(t *testing.T) {
	inst := &fakePlugin{}
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin { return inst })

	result, err := r.Dispatch("fake", "greet", map[string]any{"name": "ops"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello ops", result)
	assert.Equal(t, 1, inst.initCount)
}

func TestRegistry_LazyInitCachesInstance(t *testing.T) {
	inst := &fakePlugin{}
	calls := 0
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin {
		calls++
		return inst
	})

	_, err := r.Dispatch("fake", "greet", map[string]any{"name": "a"}, nil)
	require.NoError(t, err)
	_, err = r.Dispatch("fake", "greet", map[string]any{"name": "b"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "factory should only be invoked once, instance cached")
	assert.Equal(t, 1, inst.initCount)
}

func TestRegistry_FirstInitWinsOverLaterConfig(t *testing.T) {
	inst := &fakePlugin{}
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin { return inst })

	_, err := r.Dispatch("fake", "greet", map[string]any{"name": "a"}, map[string]any{"key": "first"})
	require.NoError(t, err)
	_, err = r.Dispatch("fake", "greet", map[string]any{"name": "b"}, map[string]any{"key": "second"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"key": "first"}, inst.lastConfig)
}

func TestRegistry_Dispatch_UnregisteredPluginIsError(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Dispatch("ghost", "fn", nil, nil)
	require.Error(t, err)
}

func TestRegistry_Dispatch_UnknownFunctionIsError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin { return &fakePlugin{} })
	_, err := r.Dispatch("fake", "ghost-fn", nil, nil)
	require.Error(t, err)
}

func TestRegistry_Dispatch_MissingRequiredParamIsError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin { return &fakePlugin{} })
	_, err := r.Dispatch("fake", "greet", map[string]any{}, nil)
	require.Error(t, err)
}

func TestRegistry_Dispatch_UnknownParamIsError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("fake", func() ports.Plugin { return &fakePlugin{} })
	_, err := r.Dispatch("fake", "greet", map[string]any{"name": "a", "bogus": 1}, nil)
	require.Error(t, err)
}

func TestRegistry_Dispatch_UsesDeploymentDefaultsWhenNodeConfigOmitted(t *testing.T) {
	inst := &fakePlugin{}
	r := NewRegistry(map[string]map[string]any{"fake": {"region": "us-east"}})
	r.Register("fake", func() ports.Plugin { return inst })

	_, err := r.Dispatch("fake", "greet", map[string]any{"name": "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"region": "us-east"}, inst.lastConfig)
}

func TestRegistry_Dispatch_NodeConfigOverridesDeploymentDefault(t *testing.T) {
	inst := &fakePlugin{}
	r := NewRegistry(map[string]map[string]any{"fake": {"region": "us-east"}})
	r.Register("fake", func() ports.Plugin { return inst })

	_, err := r.Dispatch("fake", "greet", map[string]any{"name": "a"}, map[string]any{"region": "eu-west"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"region": "eu-west"}, inst.lastConfig)
}

func TestRegistry_Names_SortedList(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("zeta", func() ports.Plugin { return &fakePlugin{} })
	r.Register("alpha", func() ports.Plugin { return &fakePlugin{} })
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestRegistry_Close_CleansUpAllCachedInstances(t *testing.T) {
	a, b := &fakePlugin{}, &fakePlugin{}
	r := NewRegistry(nil)
	r.Register("a", func() ports.Plugin { return a })
	r.Register("b", func() ports.Plugin { return b })

	_, err := r.Dispatch("a", "greet", map[string]any{"name": "x"}, nil)
	require.NoError(t, err)
	_, err = r.Dispatch("b", "greet", map[string]any{"name": "y"}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.True(t, a.cleaned)
	assert.True(t, b.cleaned)
}
