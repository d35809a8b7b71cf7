package domain

import "fmt"

// VarType is the declared type of a workflow variable.
type VarType string

const (
	VarString VarType = "string"
	VarInt    VarType = "int"
	VarFloat  VarType = "float"
	VarBool   VarType = "bool"
	VarList   VarType = "list"
)

func (t VarType) Valid() bool {
	switch t {
	case VarString, VarInt, VarFloat, VarBool, VarList:
		return true
	}
	return false
}

func (t VarType) numeric() bool {
	return t == VarInt || t == VarFloat
}

// VariableDefinition describes one entry of a runbook's `[variables]` table.
// A bare scalar in the TOML source is sugar for a definition carrying only
// Default (§4.3 Pass 1).
type VariableDefinition struct {
	Name        string
	Default     any
	Required    bool
	Type        VarType
	Choices     []any
	Description string
	Min         *float64
	Max         *float64
	Pattern     string
}

// Validate enforces the construction-time invariants of §3/§4.1: choices
// must match the declared type, and min/max are only meaningful on numeric
// types. Pattern is not compiled here — invalid regex surfaces when first
// matched against a value (internal/variables owns coercion/matching).
func (v *VariableDefinition) Validate() error {
	if v.Type == "" {
		v.Type = VarString
	}
	if !v.Type.Valid() {
		return fmt.Errorf("variable %q: invalid type %q", v.Name, v.Type)
	}
	if (v.Min != nil || v.Max != nil) && !v.Type.numeric() {
		return fmt.Errorf("variable %q: min/max only valid on int or float variables", v.Name)
	}
	if v.Pattern != "" && v.Type != VarString {
		return fmt.Errorf("variable %q: pattern only valid on string variables", v.Name)
	}
	for _, c := range v.Choices {
		if !typeMatches(v.Type, c) {
			return fmt.Errorf("variable %q: choice %v does not match declared type %s", v.Name, c, v.Type)
		}
	}
	return nil
}

// typeMatches reports whether a decoded TOML/JSON value is compatible with
// the declared variable type, for validating `choices` elements.
func typeMatches(t VarType, v any) bool {
	switch t {
	case VarString:
		_, ok := v.(string)
		return ok
	case VarInt:
		switch v.(type) {
		case int, int64:
			return true
		default:
			return false
		}
	case VarFloat:
		switch v.(type) {
		case int, int64, float32, float64:
			return true
		default:
			return false
		}
	case VarBool:
		_, ok := v.(bool)
		return ok
	case VarList:
		_, ok := v.([]any)
		return ok
	}
	return false
}
