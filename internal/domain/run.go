package domain

import "time"

// RunInfo is the persisted record of one execution of a named workflow,
// identified by (WorkflowName, RunID). The persistence layer assigns RunID;
// the engine mutates Status/end-time/counts as execution proceeds.
type RunInfo struct {
	WorkflowName string
	RunID        int64
	StartTime    time.Time
	EndTime      *time.Time
	Status       RunStatus
	NodesOK      int
	NodesNOK     int
	NodesSkipped int
	Trigger      Trigger
}

// NodeExecution is one attempt record for a single node within a single run,
// identified by (WorkflowName, RunID, NodeID, Attempt). A retry appends a
// new record rather than overwriting the previous attempt.
type NodeExecution struct {
	WorkflowName string
	RunID        int64
	NodeID       string
	Attempt      int

	StartTime        time.Time
	EndTime          *time.Time
	Status           NodeStatus
	OperatorDecision *OperatorDecision
	ResultText       string
	ExitCode         *int
	Exception        string
	Stdout           string
	Stderr           string
	DurationMS       int64
}

// IsTimeout reports whether this attempt's failure was a process-runner
// timeout, surfaced as a distinguished NodeExecutionError per spec §7.
func (e *NodeExecution) IsTimeout() bool {
	return e.Status == StatusNOK && e.Exception == ErrTimeoutMarker
}

// ErrTimeoutMarker is the Exception text the engine records when a command
// node's process runner call times out, so callers can distinguish a
// timeout from an ordinary non-zero exit without a separate error type.
const ErrTimeoutMarker = "timeout"
