// Package ports declares the boundary interfaces the core engine consumes
// but never implements directly (§6): time, process execution, operator
// interaction, persistence, plugin dispatch and DAG visualization. Concrete
// implementations live in internal/adapters, internal/persistence and
// internal/plugin; tests substitute fakes.
package ports

import (
	"context"
	"time"

	"github.com/ormasoftchile/playbook/internal/domain"
)

// Clock abstracts wall-clock time so tests can control StartTime/EndTime.
type Clock interface {
	Now() time.Time
}

// CommandResult is the outcome of a ProcessRunner invocation.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// ProcessRunner executes a Command node's shell string. Per §6 it must
// enforce the given timeout (0 means no timeout) and support an
// interactive mode where stdio is inherited rather than captured.
type ProcessRunner interface {
	Run(ctx context.Context, commandName string, timeout time.Duration, interactive bool) (*CommandResult, error)
}

// IOHandler is the operator-facing port: prompts, descriptions and output
// reporting. All out-of-scope presentation (colors, progress bars) lives on
// the other side of this boundary.
type IOHandler interface {
	// Prompt asks a yes/no question before or after a node runs and returns
	// the operator's decision.
	Prompt(nodeID, nodeName, promptText string) (bool, error)
	// Description announces a node's purpose before it runs (Manual nodes).
	Description(nodeID, nodeName, text string)
	// CommandOutput reports a Command node's captured stdout/stderr.
	CommandOutput(nodeID, nodeName, description, stdout, stderr string)
	// FunctionOutput reports a Function node's stringified result.
	FunctionOutput(nodeID, nodeName, description, resultText string)
}

// Visualizer renders a Runbook's DAG to an external format (e.g. an image).
// Rendering itself is out of scope per §1; this interface is kept only as
// the documented seam a future renderer would implement against — no
// concrete adapter exists in this module, and nothing in cmd/playbook
// constructs one. It is intentionally unconsumed, not a leftover.
type Visualizer interface {
	Render(rb *domain.Runbook) ([]byte, error)
}

// RunRepository persists RunInfo records (§4.6).
type RunRepository interface {
	// CreateRun assigns the next run_id for workflowName (max existing + 1,
	// serialized per workflow) and persists a new RUNNING record.
	CreateRun(ctx context.Context, workflowName string, trigger domain.Trigger, startTime time.Time) (*domain.RunInfo, error)
	UpdateRun(ctx context.Context, run *domain.RunInfo) error
	GetRun(ctx context.Context, workflowName string, runID int64) (*domain.RunInfo, error)
	ListRuns(ctx context.Context, workflowName string) ([]*domain.RunInfo, error)
}

// NodeExecutionRepository persists NodeExecution attempt records (§4.6).
type NodeExecutionRepository interface {
	CreateExecution(ctx context.Context, exec *domain.NodeExecution) error
	UpdateExecution(ctx context.Context, exec *domain.NodeExecution) error
	// ListExecutions returns every attempt of every node in a run, ordered
	// by (node_id, attempt).
	ListExecutions(ctx context.Context, workflowName string, runID int64) ([]*domain.NodeExecution, error)
	// LatestExecution returns the highest-attempt record for a node, or nil
	// if the node has no recorded attempt yet.
	LatestExecution(ctx context.Context, workflowName string, runID int64, nodeID string) (*domain.NodeExecution, error)
}

// Plugin is a Function node's dispatch target (§4.7, §6).
type Plugin interface {
	Metadata() PluginMetadata
	Initialize(config map[string]any) error
	Execute(function string, params map[string]any) (any, error)
	Cleanup() error
}

// ParamType is a plugin function parameter's declared type. It mirrors
// domain.VarType plus "dict", since function_params may carry mapping
// values that domain.VariableDefinition never needs to (§4.7).
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamList   ParamType = "list"
	ParamDict   ParamType = "dict"
)

// ParameterDef describes one parameter of a plugin function signature.
type ParameterDef struct {
	Type     ParamType
	Required bool
	Default  any
	Choices  []any
	Min      *float64
	Max      *float64
	Pattern  string
}

// FunctionSignature enumerates a plugin function's parameters and return type.
type FunctionSignature struct {
	Parameters map[string]ParameterDef
	ReturnType string
}

// PluginMetadata describes a plugin's identity and callable functions.
type PluginMetadata struct {
	Name        string
	Version     string
	Author      string
	Description string
	Functions   map[string]FunctionSignature
}
