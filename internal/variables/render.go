// Package variables implements the variable manager of §4.2: typed
// VariableDefinitions, multi-source merging, coercion, constraint
// validation, and the sandboxed `{{ }}`/`{% %}` template renderer used both
// for general substitution (§4.3 Pass 2) and for `when` evaluation
// (internal/condition builds on Render).
package variables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Renderer compiles and evaluates `{{ expr }}` / `{% if/else/endif %}`
// templates against a variable environment. The expression sub-language is
// expr-lang's (arithmetic, comparisons, `and`/`or`/`not`, index/attribute
// access, list literals) rather than text/template's Go-syntax pipelines,
// because it maps far more directly onto the restricted grammar §4.2
// describes — the teacher's own condition evaluator
// (pkg/runtime/engine.go's evalCondition) reaches for the same library.
// Jinja-style `name | filter | filter2(arg)` pipe syntax is supported by
// rewriting pipes into nested function calls before compilation.
type Renderer struct {
	funcs map[string]any
}

// NewRenderer builds a Renderer with the fixed filter/function table of
// §4.2: default, upper, lower, join, env. Callers (internal/condition) add
// further functions via WithFuncs for `when` evaluation.
func NewRenderer() *Renderer {
	return &Renderer{funcs: defaultFuncs()}
}

// WithFuncs returns a Renderer with additional named functions available to
// expressions, layered over the base filter table.
func (r *Renderer) WithFuncs(extra map[string]any) *Renderer {
	merged := make(map[string]any, len(r.funcs)+len(extra))
	for k, v := range r.funcs {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return &Renderer{funcs: merged}
}

func defaultFuncs() map[string]any {
	return map[string]any{
		"default": func(val any, def any) any {
			if val == nil {
				return def
			}
			if s, ok := val.(string); ok && s == "" {
				return def
			}
			return val
		},
		"upper": func(s string) string { return strings.ToUpper(s) },
		"lower": func(s string) string { return strings.ToLower(s) },
		"join": func(items any, sep string) string {
			return strings.Join(toStrings(items), sep)
		},
		"env": func(name string, def string) string {
			if v, ok := lookupEnv(name); ok {
				return v
			}
			return def
		},
	}
}

// lookupEnv is a replaceable indirection over filesource.go's
// osLookupEnvFunc, which keeps the os import out of this file.
var lookupEnv = osLookupEnvFunc

func toStrings(items any) []string {
	switch v := items.(type) {
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = fmt.Sprint(e)
		}
		return out
	case []string:
		return v
	default:
		return []string{fmt.Sprint(items)}
	}
}

// Render renders a single `{{ }}`/`{% %}` template string against env,
// returning the fully substituted text. An undefined variable reference is
// a hard render error (§4.2 strict-undefined).
func (r *Renderer) Render(tmpl string, env map[string]any) (string, error) {
	nodes, err := parseTemplate(tmpl)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}
	var buf strings.Builder
	if err := r.renderNodes(nodes, env, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderValue renders tmpl and, when the whole template is a single `{{ }}`
// output node, returns the raw evaluated value (preserving its type —
// bool, int, list, …) instead of its string form. This lets `when`
// evaluation and non-string variable substitution avoid double coercion.
func (r *Renderer) RenderValue(tmpl string, env map[string]any) (any, error) {
	nodes, err := parseTemplate(tmpl)
	if err != nil {
		return nil, fmt.Errorf("template parse: %w", err)
	}
	if len(nodes) == 1 {
		if out, ok := nodes[0].(*outputNode); ok {
			return r.eval(out.expr, env)
		}
	}
	var buf strings.Builder
	if err := r.renderNodes(nodes, env, &buf); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

func (r *Renderer) renderNodes(nodes []templateNode, env map[string]any, buf *strings.Builder) error {
	for _, n := range nodes {
		switch node := n.(type) {
		case *textNode:
			buf.WriteString(node.text)
		case *outputNode:
			v, err := r.eval(node.expr, env)
			if err != nil {
				return fmt.Errorf("template eval %q: %w", node.expr, err)
			}
			buf.WriteString(stringify(v))
		case *ifNode:
			v, err := r.eval(node.cond, env)
			if err != nil {
				return fmt.Errorf("template eval %q: %w", node.cond, err)
			}
			if truthy(v) {
				if err := r.renderNodes(node.then, env, buf); err != nil {
					return err
				}
			} else if err := r.renderNodes(node.els, env, buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Renderer) eval(exprStr string, env map[string]any) (any, error) {
	rewritten, err := rewritePipes(exprStr)
	if err != nil {
		return nil, err
	}
	program, err := compileCached(rewritten, r.funcs, env)
	if err != nil {
		return nil, err
	}
	fullEnv := make(map[string]any, len(env)+len(r.funcs))
	for k, v := range env {
		fullEnv[k] = v
	}
	for k, v := range r.funcs {
		fullEnv[k] = v
	}
	return expr.Run(program, fullEnv)
}

// compileCached compiles exprStr with expr.Env declaring both vars and
// functions so undefined identifiers are a compile-time (render) error —
// the sandboxing §4.2/§9 requires: no attribute access or call escapes the
// provided environment, since expr-lang only resolves names declared here.
func compileCached(exprStr string, funcs map[string]any, vars map[string]any) (*vm.Program, error) {
	envDecl := make(map[string]any, len(vars)+len(funcs))
	for k, v := range vars {
		envDecl[k] = v
	}
	for k, v := range funcs {
		envDecl[k] = v
	}
	return expr.Compile(exprStr, expr.Env(envDecl))
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return CoerceBoolString(x)
	case int, int64, float64:
		f, _ := strconv.ParseFloat(fmt.Sprint(x), 64)
		return f != 0
	default:
		return true
	}
}

// CoerceBoolString applies §4.4's string→bool result coercion: recognized
// truthy/falsy tokens (case-insensitive), else any non-empty string is true.
func CoerceBoolString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off", "":
		return false
	default:
		return s != ""
	}
}
