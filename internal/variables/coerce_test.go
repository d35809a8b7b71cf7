package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/playbook/internal/domain"
)

func TestCoerce_IntRejectsBool(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarInt}
	_, err := Coerce("n", def, true)
	require.Error(t, err)
}

func TestCoerce_IntFromString(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarInt}
	v, err := Coerce("n", def, "42")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCoerce_FloatFromInt(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarFloat}
	v, err := Coerce("n", def, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestCoerce_BoolFromString(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarBool}
	v, err := Coerce("n", def, "yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestCoerce_ListFromJSONString(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarList}
	v, err := Coerce("n", def, `["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)
}

func TestValidateConstraints_Choices(t *testing.T) {
	def := &domain.VariableDefinition{Name: "env", Type: domain.VarString, Choices: []any{"dev", "prod"}}
	require.NoError(t, ValidateConstraints("env", def, "prod"))
	require.Error(t, ValidateConstraints("env", def, "staging"))
}

func TestValidateConstraints_MinMax(t *testing.T) {
	min, max := 1.0, 10.0
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarInt, Min: &min, Max: &max}
	require.NoError(t, ValidateConstraints("n", def, 5))
	require.Error(t, ValidateConstraints("n", def, 0))
	require.Error(t, ValidateConstraints("n", def, 11))
}

func TestValidateConstraints_Pattern(t *testing.T) {
	def := &domain.VariableDefinition{Name: "n", Type: domain.VarString, Pattern: `[a-z]+`}
	require.NoError(t, ValidateConstraints("n", def, "abc"))
	require.Error(t, ValidateConstraints("n", def, "ABC"))
}
