// Package domain holds the runbook data model: the parsed, validated
// representation of a TOML runbook document plus the run-time records
// (RunInfo, NodeExecution) persisted while it executes.
package domain

import "fmt"

// NodeType discriminates the node variant. The source realizes this as a
// duck-typed base with three subtypes; here it is a tagged variant (a flat
// struct carrying every variant's fields, gated by Type) so that TOML
// tables of the shape `[node_id]` with a `type` key decode directly without
// a custom unmarshaler per variant.
type NodeType string

const (
	NodeTypeManual   NodeType = "manual"
	NodeTypeCommand  NodeType = "command"
	NodeTypeFunction NodeType = "function"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeManual, NodeTypeCommand, NodeTypeFunction:
		return true
	}
	return false
}

// NodeStatus is the lifecycle state of a single node-execution attempt.
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusRunning NodeStatus = "running"
	StatusOK      NodeStatus = "ok"
	StatusNOK     NodeStatus = "nok"
	StatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is one a node attempt no longer leaves.
func (s NodeStatus) Terminal() bool {
	switch s {
	case StatusOK, StatusNOK, StatusSkipped:
		return true
	}
	return false
}

// RunStatus is the aggregate status of a run, derived from the latest
// attempt of each of its nodes (see engine.Aggregate).
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunOK      RunStatus = "ok"
	RunNOK     RunStatus = "nok"
	RunAborted RunStatus = "aborted"
)

func (s RunStatus) Terminal() bool {
	return s == RunOK || s == RunNOK
}

// Trigger records how a run (or a resumption of one) was started.
type Trigger string

const (
	TriggerRun    Trigger = "RUN"
	TriggerResume Trigger = "RESUME"
)

// OperatorDecision records a human's answer to a prompt_before/prompt_after
// confirmation.
type OperatorDecision string

const (
	DecisionApproved OperatorDecision = "approved"
	DecisionRejected OperatorDecision = "rejected"
)

const defaultTimeoutSeconds = 300

// Node is one vertex of the runbook DAG. Only the fields relevant to Type
// are meaningful; Validate rejects fields set on the wrong variant so a
// malformed TOML table is caught at construction rather than at dispatch.
type Node struct {
	ID           string   `toml:"id"`
	Type         NodeType `toml:"type"`
	Name         string   `toml:"name,omitempty"`
	Description  string   `toml:"description,omitempty"`
	DependsOn    []string `toml:"depends_on,omitempty"`
	Critical     bool     `toml:"critical,omitempty"`
	Skip         bool     `toml:"skip,omitempty"`
	When         string   `toml:"when,omitempty"`
	PromptBefore string   `toml:"prompt_before,omitempty"`
	PromptAfter  string   `toml:"prompt_after,omitempty"`
	Timeout      int      `toml:"timeout,omitempty"`

	// Command
	CommandName string `toml:"command_name,omitempty"`
	Interactive bool   `toml:"interactive,omitempty"`

	// Function
	Plugin         string         `toml:"plugin,omitempty"`
	Function       string         `toml:"function,omitempty"`
	FunctionParams map[string]any `toml:"function_params,omitempty"`
	PluginConfig   map[string]any `toml:"plugin_config,omitempty"`
}

// Normalize fills in the defaults §3 assigns when a field is omitted:
// name defaults to id, when defaults to "true", timeout defaults to 300s.
func (n *Node) Normalize() {
	if n.Name == "" {
		n.Name = n.ID
	}
	if n.When == "" {
		n.When = "true"
	}
	if n.Timeout == 0 {
		n.Timeout = defaultTimeoutSeconds
	}
}

// Validate checks the node's own fields in isolation. Cross-node invariants
// (dependency existence, cycles) are checked at the Runbook level.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node: id is required")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("node %q: invalid type %q", n.ID, n.Type)
	}
	if n.Critical && n.Skip {
		return fmt.Errorf("node %q: critical and skip cannot both be true", n.ID)
	}
	if n.Timeout < 0 {
		return fmt.Errorf("node %q: timeout must be >= 0", n.ID)
	}

	switch n.Type {
	case NodeTypeManual:
		if n.PromptAfter == "" {
			return fmt.Errorf("node %q: manual node requires prompt_after", n.ID)
		}
		if n.CommandName != "" || n.Interactive || n.Plugin != "" || n.Function != "" ||
			n.FunctionParams != nil || n.PluginConfig != nil {
			return fmt.Errorf("node %q: manual node has fields belonging to another variant", n.ID)
		}
	case NodeTypeCommand:
		if n.CommandName == "" {
			return fmt.Errorf("node %q: command node requires command_name", n.ID)
		}
		if n.Plugin != "" || n.Function != "" || n.FunctionParams != nil || n.PluginConfig != nil {
			return fmt.Errorf("node %q: command node has fields belonging to another variant", n.ID)
		}
	case NodeTypeFunction:
		if n.Plugin == "" || n.Function == "" {
			return fmt.Errorf("node %q: function node requires plugin and function", n.ID)
		}
		if n.CommandName != "" || n.Interactive {
			return fmt.Errorf("node %q: function node has fields belonging to another variant", n.ID)
		}
	}
	return nil
}
