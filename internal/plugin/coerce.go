package plugin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/ports"
)

// coerceParam applies the same coercion rules as internal/variables.Coerce
// (§4.2), extended with a "dict" type via JSON decoding (§4.7).
func coerceParam(name string, def ports.ParameterDef, raw any) (any, error) {
	switch def.Type {
	case ports.ParamString, "":
		return fmt.Sprint(raw), nil
	case ports.ParamInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int64(v)) {
				return int(v), nil
			}
			return nil, errs.New(errs.KindVariableValidation, "%s: %v is not an integer", name, v)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, errs.New(errs.KindVariableValidation, "%s: %q is not a valid int", name, v)
			}
			return n, nil
		default:
			return nil, errs.New(errs.KindVariableValidation, "%s: cannot coerce %T to int", name, raw)
		}
	case ports.ParamFloat:
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
				return nil, errs.New(errs.KindVariableValidation, "%s: %q is not a valid float", name, v)
			}
			return f, nil
		default:
			return nil, errs.New(errs.KindVariableValidation, "%s: cannot coerce %T to float", name, raw)
		}
	case ports.ParamBool:
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
				return nil, errs.New(errs.KindVariableValidation, "%s: %q is not a valid bool", name, v)
			}
		default:
			return nil, errs.New(errs.KindVariableValidation, "%s: cannot coerce %T to bool", name, raw)
		}
	case ports.ParamList:
		switch v := raw.(type) {
		case []any:
			return v, nil
		case string:
			var out []any
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return nil, errs.New(errs.KindVariableValidation, "%s: %q is not a JSON list", name, v)
			}
			return out, nil
		default:
			return nil, errs.New(errs.KindVariableValidation, "%s: cannot coerce %T to list", name, raw)
		}
	case ports.ParamDict:
		switch v := raw.(type) {
		case map[string]any:
			return v, nil
		case string:
			var out map[string]any
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return nil, errs.New(errs.KindVariableValidation, "%s: %q is not a JSON object", name, v)
			}
			return out, nil
		default:
			return nil, errs.New(errs.KindVariableValidation, "%s: cannot coerce %T to dict", name, raw)
		}
	default:
		return nil, errs.New(errs.KindVariableValidation, "%s: unknown parameter type %q", name, def.Type)
	}
}

func validateParamConstraints(name string, def ports.ParameterDef, val any) error {
	if len(def.Choices) > 0 {
		found := false
		for _, c := range def.Choices {
			if fmt.Sprint(c) == fmt.Sprint(val) {
				found = true
				break
			}
		}
		if !found {
			return errs.New(errs.KindVariableValidation, "%s: value %v not in choices %v", name, val, def.Choices)
		}
	}
	if def.Min != nil || def.Max != nil {
		f, ok := asFloat(val)
		if !ok {
			return errs.New(errs.KindVariableValidation, "%s: min/max constraint on non-numeric value", name)
		}
		if def.Min != nil && f < *def.Min {
			return errs.New(errs.KindVariableValidation, "%s: %v is less than minimum %v", name, f, *def.Min)
		}
		if def.Max != nil && f > *def.Max {
			return errs.New(errs.KindVariableValidation, "%s: %v is greater than maximum %v", name, f, *def.Max)
		}
	}
	if def.Pattern != "" {
		s, ok := val.(string)
		if !ok {
			return errs.New(errs.KindVariableValidation, "%s: pattern constraint on non-string value", name)
		}
		re, err := regexp.Compile("^(?:" + def.Pattern + ")$")
		if err != nil {
			return errs.New(errs.KindVariableValidation, "%s: invalid pattern %q: %v", name, def.Pattern, err)
		}
		if !re.MatchString(s) {
			return errs.New(errs.KindVariableValidation, "%s: value %q does not match pattern %q", name, s, def.Pattern)
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
