package variables

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
)

// Coerce converts a raw value (typically a string from CLI/env/.env
// sources, but possibly already-typed from TOML/JSON/YAML files) to the
// declared type, per §4.2's coercion table. Values that are already the
// target Go type pass through unchanged.
func Coerce(name string, def *domain.VariableDefinition, raw any) (any, error) {
	switch def.Type {
	case domain.VarString, "":
		return stringify(raw), nil
	case domain.VarInt:
		return coerceInt(name, raw)
	case domain.VarFloat:
		return coerceFloat(name, raw)
	case domain.VarBool:
		return coerceBool(name, raw)
	case domain.VarList:
		return coerceList(name, raw)
	default:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: unknown type %q", name, def.Type)
	}
}

func coerceInt(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int64(v)) {
			return int(v), nil
		}
		return nil, errs.New(errs.KindVariableValidation, "variable %q: %v is not an integer", name, v)
	case bool:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: boolean is not a valid int", name)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, errs.New(errs.KindVariableValidation, "variable %q: %q is not a valid int", name, v)
		}
		return n, nil
	default:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: cannot coerce %T to int", name, raw)
	}
}

func coerceFloat(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errs.New(errs.KindVariableValidation, "variable %q: %q is not a valid float", name, v)
		}
		return f, nil
	default:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: cannot coerce %T to float", name, raw)
	}
}

func coerceBool(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return nil, errs.New(errs.KindVariableValidation, "variable %q: %q is not a valid bool", name, v)
		}
	default:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: cannot coerce %T to bool", name, raw)
	}
}

func coerceList(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, errs.New(errs.KindVariableValidation, "variable %q: %q is not a JSON list", name, v)
		}
		return out, nil
	default:
		return nil, errs.New(errs.KindVariableValidation, "variable %q: cannot coerce %T to list", name, raw)
	}
}

// ValidateConstraints checks a coerced value against choices/min/max/pattern
// (§4.2, applied after coercion).
func ValidateConstraints(name string, def *domain.VariableDefinition, val any) error {
	if len(def.Choices) > 0 && !containsValue(def.Choices, val) {
		return errs.New(errs.KindVariableValidation, "variable %q: value %v not in choices %v", name, val, def.Choices)
	}
	if def.Min != nil || def.Max != nil {
		f, ok := asFloat(val)
		if !ok {
			return errs.New(errs.KindVariableValidation, "variable %q: min/max constraint on non-numeric value", name)
		}
		if def.Min != nil && f < *def.Min {
			return errs.New(errs.KindVariableValidation, "variable %q: %v is less than minimum %v", name, f, *def.Min)
		}
		if def.Max != nil && f > *def.Max {
			return errs.New(errs.KindVariableValidation, "variable %q: %v is greater than maximum %v", name, f, *def.Max)
		}
	}
	if def.Pattern != "" {
		s, ok := val.(string)
		if !ok {
			return errs.New(errs.KindVariableValidation, "variable %q: pattern constraint on non-string value", name)
		}
		re, err := regexp.Compile("^(?:" + def.Pattern + ")$")
		if err != nil {
			return errs.New(errs.KindVariableValidation, "variable %q: invalid pattern %q: %v", name, def.Pattern, err)
		}
		if !re.MatchString(s) {
			return errs.New(errs.KindVariableValidation, "variable %q: value %q does not match pattern %q", name, s, def.Pattern)
		}
	}
	return nil
}

func containsValue(choices []any, v any) bool {
	for _, c := range choices {
		if fmt.Sprint(c) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
