// Package parser implements §4.3: the two-pass TOML → Runbook pipeline.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/ormasoftchile/playbook/internal/condition"
	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/variables"
)

// Options configures a Parse call with the caller-supplied variable layers
// and prompt behavior (§4.2 priority order, §4.3 Pass 1).
type Options struct {
	EnvVars  map[string]any
	FileVars map[string]any
	CLIVars  map[string]any
	Prompt   variables.PromptFunc

	// DefaultTimeoutSeconds, when nonzero, is applied to a node that omits
	// `timeout` instead of domain.Node.Normalize's built-in 300s default,
	// so the ambient configuration's default_timeout_seconds (§ SPEC_FULL.md
	// ambient stack) actually governs node dispatch rather than sitting unread.
	DefaultTimeoutSeconds int
}

// whenLineRE matches a bare `when = ...` assignment line so Pass 2 can
// protect it from variable substitution (§4.2 Structural substitution):
// `when` is rendered at execution time against execution context, not
// pre-rendered against parse-time variables only.
var whenLineRE = regexp.MustCompile(`(?m)^([ \t]*when[ \t]*=[ \t]*)(.*)$`)

// Parse runs the two-pass pipeline over TOML source src and returns a
// validated Runbook together with the fully merged, coerced variable
// environment used to render it — the same environment callers should pass
// to the engine for runtime `when` evaluation (§4.2, §4.4).
func Parse(src []byte, opts Options) (*domain.Runbook, map[string]any, error) {
	// Pass 1: variables.
	var raw map[string]any
	if err := toml.Unmarshal(src, &raw); err != nil {
		return nil, nil, errs.Wrap(errs.KindParse, err, "parse TOML")
	}

	defs, err := extractVariableDefinitions(raw["variables"])
	if err != nil {
		return nil, nil, err
	}
	mgr := variables.NewManager(defs)
	mergedVars, err := mgr.Merge(opts.EnvVars, opts.FileVars, opts.CLIVars, opts.Prompt)
	if err != nil {
		return nil, nil, err
	}

	// Pass 2: protect `when` lines, substitute, re-parse.
	text := string(src)
	protected, placeholders := protectWhenLines(text)
	renderer := variables.NewRenderer()
	rendered, err := variables.SubstituteString(renderer, protected, mergedVars)
	if err != nil {
		return nil, nil, err
	}
	restored := restoreWhenLines(rendered, placeholders)

	var doc map[string]any
	if err := toml.Unmarshal([]byte(restored), &doc); err != nil {
		return nil, nil, errs.Wrap(errs.KindParse, err, "re-parse substituted TOML")
	}
	delete(doc, "variables")

	rbMeta, ok := doc["runbook"].(map[string]any)
	if !ok {
		return nil, nil, errs.New(errs.KindParse, "missing required [runbook] table")
	}
	delete(doc, "runbook")

	title, description, version, author, createdAt, err := parseMeta(rbMeta)
	if err != nil {
		return nil, nil, err
	}

	order := make([]string, 0, len(doc))
	for key := range doc {
		order = append(order, key)
	}
	// map iteration order is not TOML declaration order; go-toml/v2 does
	// not expose declaration order for map[string]any, so node order is
	// reconstructed from the substituted source text instead.
	order = declarationOrder(restored, order)

	nodes := make(map[string]*domain.Node, len(order))
	for _, id := range order {
		tbl, ok := doc[id].(map[string]any)
		if !ok {
			return nil, nil, errs.New(errs.KindParse, "node %q: expected a table", id).WithPath(id)
		}
		node, err := buildNode(id, tbl, order, opts.DefaultTimeoutSeconds)
		if err != nil {
			return nil, nil, err
		}
		nodes[id] = node
	}

	rb, err := domain.NewRunbook(title, description, version, author, createdAt, order, nodes)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindValidation, err, "validate runbook")
	}
	return rb, mergedVars, nil
}

func parseMeta(m map[string]any) (title, description, version, author string, createdAt time.Time, err error) {
	title, _ = m["title"].(string)
	description, _ = m["description"].(string)
	version, _ = m["version"].(string)
	author, _ = m["author"].(string)
	createdAtStr, _ := m["created_at"].(string)
	if title == "" || description == "" || version == "" || author == "" || createdAtStr == "" {
		err = errs.New(errs.KindParse, "[runbook] requires title, description, version, author, created_at")
		return
	}
	createdAt, parseErr := parseTimestamp(createdAtStr)
	if parseErr != nil {
		err = errs.Wrap(errs.KindParse, parseErr, "[runbook].created_at %q is not a valid ISO-8601 timestamp", createdAtStr)
		return
	}
	return
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", s)
}

// declarationOrder derives node table declaration order by scanning the
// substituted source text for top-level `[id]` headers, since TOML's
// semantic model (and go-toml/v2's map decode) does not preserve it.
func declarationOrder(src string, known []string) []string {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	headerRE := regexp.MustCompile(`(?m)^\[([A-Za-z0-9_.-]+)\]\s*$`)
	var order []string
	seen := make(map[string]bool, len(known))
	for _, m := range headerRE.FindAllStringSubmatch(src, -1) {
		id := m[1]
		if knownSet[id] && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}
	// Anything not matched by the header scan (defensive: e.g. inline
	// tables) is appended in a stable, sorted fallback order.
	var missing []string
	for _, id := range known {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return append(order, missing...)
}

// protectWhenLines replaces each `when = ...` line's value with an opaque
// placeholder so variable substitution does not touch it (§4.2); `when` is
// rendered later, at execution time, against the run's execution context.
func protectWhenLines(text string) (string, []string) {
	var placeholders []string
	out := whenLineRE.ReplaceAllStringFunc(text, func(line string) string {
		m := whenLineRE.FindStringSubmatch(line)
		idx := len(placeholders)
		placeholders = append(placeholders, m[2])
		return fmt.Sprintf("%s%q", m[1], fmt.Sprintf("__PLAYBOOK_WHEN_PLACEHOLDER_%d__", idx))
	})
	return out, placeholders
}

func restoreWhenLines(text string, placeholders []string) string {
	for i, val := range placeholders {
		placeholder := fmt.Sprintf("%q", fmt.Sprintf("__PLAYBOOK_WHEN_PLACEHOLDER_%d__", i))
		text = strings.Replace(text, placeholder, val, 1)
	}
	return text
}

// extractVariableDefinitions parses the `[variables]` table's entries,
// each either a VariableDefinition (table form) or a bare default (scalar
// form), per §4.3 Pass 1.
func extractVariableDefinitions(raw any) (map[string]*domain.VariableDefinition, error) {
	defs := make(map[string]*domain.VariableDefinition)
	m, ok := raw.(map[string]any)
	if !ok {
		return defs, nil
	}
	for name, v := range m {
		def, err := parseVariableEntry(name, v)
		if err != nil {
			return nil, err
		}
		defs[name] = def
	}
	return defs, nil
}

func parseVariableEntry(name string, v any) (*domain.VariableDefinition, error) {
	tbl, isTable := v.(map[string]any)
	if !isTable {
		return &domain.VariableDefinition{Name: name, Default: v, Type: inferType(v)}, nil
	}
	def := &domain.VariableDefinition{Name: name}
	def.Default = tbl["default"]
	if req, ok := tbl["required"].(bool); ok {
		def.Required = req
	}
	if t, ok := tbl["type"].(string); ok {
		def.Type = domain.VarType(t)
	} else {
		def.Type = inferType(def.Default)
	}
	if c, ok := tbl["choices"].([]any); ok {
		def.Choices = c
	}
	if d, ok := tbl["description"].(string); ok {
		def.Description = d
	}
	if minV, ok := toFloatPtr(tbl["min"]); ok {
		def.Min = minV
	}
	if maxV, ok := toFloatPtr(tbl["max"]); ok {
		def.Max = maxV
	}
	if p, ok := tbl["pattern"].(string); ok {
		def.Pattern = p
	}
	if err := def.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindParse, err, "variable %q", name)
	}
	return def, nil
}

func inferType(v any) domain.VarType {
	switch v.(type) {
	case int, int64:
		return domain.VarInt
	case float32, float64:
		return domain.VarFloat
	case bool:
		return domain.VarBool
	case []any:
		return domain.VarList
	default:
		return domain.VarString
	}
}

func toFloatPtr(v any) (*float64, bool) {
	if v == nil {
		return nil, false
	}
	switch x := v.(type) {
	case int:
		f := float64(x)
		return &f, true
	case int64:
		f := float64(x)
		return &f, true
	case float64:
		return &x, true
	}
	return nil, false
}

// buildNode constructs a Node from its TOML table, resolving depends_on
// sugar (§4.3 step 2) and folding conditional clauses into `when` (step 3).
func buildNode(id string, tbl map[string]any, declared []string, defaultTimeoutSeconds int) (*domain.Node, error) {
	typeStr, _ := tbl["type"].(string)
	node := &domain.Node{
		ID:   id,
		Type: domain.NodeType(typeStr),
	}
	if name, ok := tbl["name"].(string); ok {
		node.Name = name
	}
	if d, ok := tbl["description"].(string); ok {
		node.Description = d
	}
	if c, ok := tbl["critical"].(bool); ok {
		node.Critical = c
	}
	if s, ok := tbl["skip"].(bool); ok {
		node.Skip = s
	}
	if pb, ok := tbl["prompt_before"].(string); ok {
		node.PromptBefore = pb
	}
	if pa, ok := tbl["prompt_after"].(string); ok {
		node.PromptAfter = pa
	}
	if to, ok := toIntValue(tbl["timeout"]); ok {
		node.Timeout = to
	}
	if cn, ok := tbl["command_name"].(string); ok {
		node.CommandName = cn
	}
	if inter, ok := tbl["interactive"].(bool); ok {
		node.Interactive = inter
	}
	if pl, ok := tbl["plugin"].(string); ok {
		node.Plugin = pl
	}
	if fn, ok := tbl["function"].(string); ok {
		node.Function = fn
	}
	if fp, ok := tbl["function_params"].(map[string]any); ok {
		node.FunctionParams = fp
	}
	if pc, ok := tbl["plugin_config"].(map[string]any); ok {
		node.PluginConfig = pc
	}

	for key := range tbl {
		if !knownNodeField(key) {
			return nil, errs.New(errs.KindParse, "node %q: unknown field %q", id, key).WithPath(id)
		}
	}

	clauses, plainDeps, err := resolveDependsOn(tbl["depends_on"], id, declared)
	if err != nil {
		return nil, err
	}
	node.DependsOn = plainDeps
	explicitWhen, _ := tbl["when"].(string)
	node.When = condition.FoldClauses(clauses, explicitWhen)

	if node.Timeout == 0 && defaultTimeoutSeconds > 0 {
		node.Timeout = defaultTimeoutSeconds
	}
	node.Normalize()
	if err := node.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "node %q", id)
	}
	return node, nil
}

var nodeFieldSet = map[string]bool{
	"id": true, "type": true, "name": true, "description": true, "depends_on": true,
	"critical": true, "skip": true, "when": true, "prompt_before": true, "prompt_after": true,
	"timeout": true, "command_name": true, "interactive": true, "plugin": true, "function": true,
	"function_params": true, "plugin_config": true,
}

func knownNodeField(key string) bool { return nodeFieldSet[key] }

func toIntValue(v any) (int, bool) {
	switch x := v.(type) {
	case int64:
		return int(x), true
	case int:
		return x, true
	case float64:
		return int(x), true
	}
	return 0, false
}

// resolveDependsOn implements §4.3 step 2: missing key ⇒ implicit linear
// dependency on the previously declared node; "^" ⇒ previous node; "*" ⇒
// all previously declared nodes; scalar/list forms process element-wise,
// each element optionally carrying a `:success`/`:failure` suffix.
func resolveDependsOn(raw any, id string, declared []string) (clauses []string, plain []string, err error) {
	prevIdx := indexOf(declared, id) - 1
	var previous string
	if prevIdx >= 0 {
		previous = declared[prevIdx]
	}
	priorAll := append([]string{}, declared[:maxInt(prevIdx+1, 0)]...)

	expand := func(entry string) ([]string, error) {
		switch entry {
		case "^":
			if previous == "" {
				return nil, nil
			}
			return []string{previous}, nil
		case "*":
			return append([]string{}, priorAll...), nil
		default:
			return []string{entry}, nil
		}
	}

	var entries []string
	switch v := raw.(type) {
	case nil:
		if previous != "" {
			entries = []string{previous}
		}
	case string:
		expanded, err := expand(v)
		if err != nil {
			return nil, nil, err
		}
		entries = expanded
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, nil, errs.New(errs.KindParse, "node %q: depends_on entries must be strings", id)
			}
			expanded, err := expand(s)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, expanded...)
		}
	default:
		return nil, nil, errs.New(errs.KindParse, "node %q: invalid depends_on value", id)
	}

	for _, e := range entries {
		pd, perr := condition.ParseDependency(e)
		if perr != nil {
			return nil, nil, perr
		}
		plain = append(plain, pd.NodeID)
		if pd.Clause != "" {
			clauses = append(clauses, pd.Clause)
		}
	}
	return clauses, plain, nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
