// Package condition implements §4.4: conditional dependency sugar
// (`id:success`/`id:failure`) and `when`-expression evaluation against
// prior node executions.
package condition

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/variables"
)

// Suffix is the conditional-dependency sugar suffix recognized inside a
// depends_on entry.
type Suffix string

const (
	SuffixSuccess Suffix = "success"
	SuffixFailure Suffix = "failure"
)

// ParsedDependency is one depends_on entry after sugar extraction: a plain
// node id, and the `when` clause fragment the suffix (if any) contributes.
type ParsedDependency struct {
	NodeID string
	Clause string // "" if no suffix was present
}

// ParseDependency splits a single depends_on entry on `:`, validating that
// any suffix is `success` or `failure` (§4.3 step 2, §6).
func ParseDependency(entry string) (*ParsedDependency, error) {
	id, suffix, hasSuffix := strings.Cut(entry, ":")
	if !hasSuffix {
		return &ParsedDependency{NodeID: entry}, nil
	}
	switch Suffix(suffix) {
	case SuffixSuccess:
		return &ParsedDependency{NodeID: id, Clause: fmt.Sprintf("has_succeeded(%q)", id)}, nil
	case SuffixFailure:
		return &ParsedDependency{NodeID: id, Clause: fmt.Sprintf("has_failed(%q)", id)}, nil
	default:
		return nil, errs.New(errs.KindParse, "depends_on %q: unknown conditional suffix %q", entry, suffix)
	}
}

// FoldClauses combines conditional-dependency clauses and any explicit
// `when` into a single bare `when` expression via logical AND (§4.3 step
// 3). If there are no clauses, the explicit `when` (or the literal "true"
// default) is returned untouched. Both explicitWhen and the return value
// are bare expressions with no `{{ }}` wrapper — Node.When is always
// stored this way; Evaluator.Evaluate adds the wrapper when rendering.
func FoldClauses(clauses []string, explicitWhen string) string {
	explicitWhen = StripBraces(explicitWhen)
	if explicitWhen == "" {
		explicitWhen = "true"
	}
	if len(clauses) == 0 {
		return explicitWhen
	}
	all := append([]string{}, clauses...)
	if explicitWhen != "true" {
		all = append(all, "("+explicitWhen+")")
	}
	return strings.Join(all, " and ")
}

// StripBraces removes a single enclosing `{{ }}` wrapper from a `when`
// value, if present, so Node.When can be stored as a bare expression
// regardless of whether the TOML source wrote it wrapped (as in the S4
// example, `when = "{{ has_failed('build') }}"`) or bare.
func StripBraces(when string) string {
	when = strings.TrimSpace(when)
	if strings.HasPrefix(when, "{{") && strings.HasSuffix(when, "}}") {
		return strings.TrimSpace(when[2 : len(when)-2])
	}
	return when
}

// PreviousNode is the record passed to `previous_node(id)` in `when`
// expressions (§4.4): the latest attempt's outcome, or a sentinel with
// Exists=false when the node has no attempt yet.
type PreviousNode struct {
	ExitCode   int    `expr:"exit_code"`
	Status     string `expr:"status"`
	Output     string `expr:"output"`
	Stdout     string `expr:"stdout"`
	Stderr     string `expr:"stderr"`
	ResultText string `expr:"result_text"`
	Exists     bool   `expr:"exists"`
}

// HistoryLookup resolves the latest attempt of a node within the current
// run; internal/engine supplies the concrete implementation backed by
// persistence.
type HistoryLookup func(nodeID string) (*domain.NodeExecution, bool)

// Evaluator evaluates `when` expressions against workflow variables and
// execution history.
type Evaluator struct {
	renderer *variables.Renderer
}

// NewEvaluator builds an Evaluator whose `when` grammar is the same
// `{{ }}` template grammar as general substitution, extended with the
// history-aware functions of §4.4.
func NewEvaluator(lookup HistoryLookup) *Evaluator {
	funcs := map[string]any{
		"previous_node": func(id string) PreviousNode { return previousNode(lookup, id) },
		"has_succeeded": func(id string) bool { return latestStatusIs(lookup, id, domain.StatusOK) },
		"has_failed":    func(id string) bool { return latestStatusIs(lookup, id, domain.StatusNOK) },
		"has_run": func(id string) bool {
			_, ok := lookup(id)
			return ok
		},
		"is_skipped": func(id string) bool { return latestStatusIs(lookup, id, domain.StatusSkipped) },
	}
	return &Evaluator{renderer: variables.NewRenderer().WithFuncs(funcs)}
}

func previousNode(lookup HistoryLookup, id string) PreviousNode {
	exec, ok := lookup(id)
	if !ok {
		return PreviousNode{Exists: false}
	}
	exitCode := 0
	if exec.ExitCode != nil {
		exitCode = *exec.ExitCode
	}
	return PreviousNode{
		ExitCode:   exitCode,
		Status:     string(exec.Status),
		Output:     exec.ResultText,
		Stdout:     exec.Stdout,
		Stderr:     exec.Stderr,
		ResultText: exec.ResultText,
		Exists:     true,
	}
}

func latestStatusIs(lookup HistoryLookup, id string, want domain.NodeStatus) bool {
	exec, ok := lookup(id)
	return ok && exec.Status == want
}

// Evaluate renders the `when` expression and coerces the result to a bool
// per §4.4. On a render error it returns (true, err) — fail-open — so
// callers that ignore the error still execute the node (§4.4 Failure
// policy); callers SHOULD log err.
func (e *Evaluator) Evaluate(when string, vars map[string]any) (bool, error) {
	bare := StripBraces(when)
	if bare == "" {
		bare = "true"
	}
	val, err := e.renderer.RenderValue("{{ "+bare+" }}", vars)
	if err != nil {
		return true, errs.Wrap(errs.KindTemplateRender, err, "evaluate when %q", when)
	}
	return coerceResult(val), nil
}

func coerceResult(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return variables.CoerceBoolString(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case nil:
		return false
	default:
		return true
	}
}
