package variables

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

func osLookupEnvFunc(name string) (string, bool) {
	return os.LookupEnv(name)
}

// LoadFile loads a file-sourced variable map, auto-detecting its format by
// extension (§6): .toml, .json, .yaml/.yml or .env. A file with any other
// or no extension is tried as TOML, then JSON, then YAML, and finally read
// as `.env`-style KEY=value lines.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variable file %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse TOML variable file %q: %w", path, err)
		}
		return m, nil
	case ".json":
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse JSON variable file %q: %w", path, err)
		}
		return m, nil
	case ".yaml", ".yml":
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse YAML variable file %q: %w", path, err)
		}
		return normalizeYAMLMap(m), nil
	case ".env":
		return parseDotEnv(data)
	default:
		// Auto-detect: try TOML, then JSON, then YAML, then fall back to
		// .env-style lines, mirroring the original's best-effort detection
		// for extensionless or unrecognized variable files.
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err == nil {
			return m, nil
		}
		if err := json.Unmarshal(data, &m); err == nil {
			return m, nil
		}
		if err := yaml.Unmarshal(data, &m); err == nil {
			return normalizeYAMLMap(m), nil
		}
		return parseDotEnv(data)
	}
}

// normalizeYAMLMap converts yaml.v3's map[string]interface{} nested values
// (which decode nested mappings as map[string]interface{} already, but
// sequences as []interface{} with possibly map[interface{}]interface{}
// removed in v3) into plain map[string]any/[]any recursively, for
// consistency with the JSON/TOML loaders' shapes.
func normalizeYAMLMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return normalizeYAMLMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	default:
		return v
	}
}

// parseDotEnv parses `KEY=value` lines, skipping blanks and `#` comments,
// stripping a single layer of matching quotes from the value (§6 .env
// format).
func parseDotEnv(data []byte) (map[string]any, error) {
	out := make(map[string]any)
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf(".env variable file: malformed line %q", line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		out[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan .env variable file: %w", err)
	}
	return out, nil
}

// LoadEnv loads variables from the process environment, stripping prefix
// from every matching key (§6, default prefix PLAYBOOK_VAR_). Values
// beginning with `[` or `{` are attempted as JSON; otherwise kept as raw
// strings, per §4.2.
func LoadEnv(prefix string) map[string]any {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var v any
			if err := json.Unmarshal([]byte(val), &v); err == nil {
				out[name] = v
				continue
			}
		}
		out[name] = val
	}
	return out
}

// ParseCLIVariables parses `KEY=VALUE` command-line override strings.
func ParseCLIVariables(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q: expected KEY=VALUE", a)
		}
		out[strings.TrimSpace(key)] = val
	}
	return out, nil
}
