package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/playbook/internal/ports"
)

func TestCoerceParam_IntFromString(t *testing.T) {
	v, err := coerceParam("n", ports.ParameterDef{Type: ports.ParamInt}, "42")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCoerceParam_FloatFromInt(t *testing.T) {
	v, err := coerceParam("n", ports.ParameterDef{Type: ports.ParamFloat}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestCoerceParam_BoolFromString(t *testing.T) {
	v, err := coerceParam("n", ports.ParameterDef{Type: ports.ParamBool}, "yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestCoerceParam_DictFromJSONString(t *testing.T) {
	v, err := coerceParam("n", ports.ParameterDef{Type: ports.ParamDict}, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)
}

func TestCoerceParam_ListRejectsNonListNonString(t *testing.T) {
	_, err := coerceParam("n", ports.ParameterDef{Type: ports.ParamList}, 5)
	require.Error(t, err)
}

func TestValidateParamConstraints_Choices(t *testing.T) {
	def := ports.ParameterDef{Choices: []any{"dev", "prod"}}
	require.NoError(t, validateParamConstraints("env", def, "prod"))
	require.Error(t, validateParamConstraints("env", def, "staging"))
}

func TestValidateParamConstraints_MinMax(t *testing.T) {
	min, max := 1.0, 10.0
	def := ports.ParameterDef{Min: &min, Max: &max}
	require.NoError(t, validateParamConstraints("n", def, 5))
	require.Error(t, validateParamConstraints("n", def, 0))
}

func TestValidateParamConstraints_Pattern(t *testing.T) {
	def := ports.ParameterDef{Pattern: `[a-z]+`}
	require.NoError(t, validateParamConstraints("n", def, "abc"))
	require.Error(t, validateParamConstraints("n", def, "ABC"))
}
