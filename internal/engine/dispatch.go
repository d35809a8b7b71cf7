package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ormasoftchile/playbook/internal/condition"
	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
)

// executeNode runs the per-node sequence of §4.5 steps 1–6 for a single
// attempt: skip short-circuit, when gating, attempt creation, pre-prompt,
// type dispatch, and attempt finalization.
func (e *Engine) executeNode(ctx context.Context, rb *domain.Runbook, run *domain.RunInfo, node *domain.Node, attempt int, vars map[string]any, evaluator *condition.Evaluator) error {
	now := e.Clock.Now()

	// Step 1: skip short-circuit.
	if node.Skip {
		return e.terminal(ctx, node, run.WorkflowName, run.RunID, attempt, now, domain.StatusSkipped,
			"Node skipped: skip=true", nil)
	}

	// Step 2: when gating. A render error is fail-open: default to
	// execute, per §4.4 Failure policy.
	ok, err := evaluator.Evaluate(node.When, vars)
	if err != nil {
		// the error is neither logged nor recorded on the attempt;
		// execution proceeds because ok defaults to true on error (see Evaluate).
		_ = err
	}
	if !ok {
		return e.terminal(ctx, node, run.WorkflowName, run.RunID, attempt, now, domain.StatusSkipped,
			fmt.Sprintf("Node skipped due to condition: %s", node.When), nil)
	}

	// Step 3: create attempt record (RUNNING).
	exec := &domain.NodeExecution{
		WorkflowName: run.WorkflowName,
		RunID:        run.RunID,
		NodeID:       node.ID,
		Attempt:      attempt,
		StartTime:    now,
		Status:       domain.StatusRunning,
	}
	if err := e.Execs.CreateExecution(ctx, exec); err != nil {
		return err
	}

	// Step 4: pre-prompt.
	if node.PromptBefore != "" && e.IO != nil {
		approved, err := e.IO.Prompt(node.ID, node.Name, node.PromptBefore)
		if err != nil {
			return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", err.Error())
		}
		if !approved {
			rejected := domain.DecisionRejected
			exec.OperatorDecision = &rejected
			return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", "")
		}
	}

	// Step 5: dispatch by type.
	switch node.Type {
	case domain.NodeTypeManual:
		return e.dispatchManual(ctx, node, exec)
	case domain.NodeTypeCommand:
		return e.dispatchCommand(ctx, node, exec)
	case domain.NodeTypeFunction:
		return e.dispatchFunction(ctx, node, exec)
	default:
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", fmt.Sprintf("unknown node type %q", node.Type))
	}
}

func (e *Engine) dispatchManual(ctx context.Context, node *domain.Node, exec *domain.NodeExecution) error {
	if e.IO != nil {
		e.IO.Description(node.ID, node.Name, node.Description)
	}
	if e.IO == nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", "no IO handler configured for manual node")
	}
	approved, err := e.IO.Prompt(node.ID, node.Name, node.PromptAfter)
	if err != nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", err.Error())
	}
	decision := domain.DecisionRejected
	status := domain.StatusNOK
	if approved {
		decision = domain.DecisionApproved
		status = domain.StatusOK
	}
	exec.OperatorDecision = &decision
	return e.finalize(ctx, exec, status, "", nil, "", "", "")
}

func (e *Engine) dispatchCommand(ctx context.Context, node *domain.Node, exec *domain.NodeExecution) error {
	if e.Process == nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", "no process runner configured for command node")
	}
	timeout := time.Duration(node.Timeout) * time.Second
	result, err := e.Process.Run(ctx, node.CommandName, timeout, node.Interactive)
	if err != nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", err.Error())
	}
	if result.TimedOut {
		return e.finalize(ctx, exec, domain.StatusNOK, "", &result.ExitCode, result.Stdout, result.Stderr, domain.ErrTimeoutMarker)
	}
	if e.IO != nil {
		e.IO.CommandOutput(node.ID, node.Name, node.Description, result.Stdout, result.Stderr)
	}

	if result.ExitCode != 0 {
		return e.finalize(ctx, exec, domain.StatusNOK, "", &result.ExitCode, result.Stdout, result.Stderr, "")
	}

	// OK: an optional post-confirmation may still flip status to NOK
	// (§4.5 step 5, Command variant) — never asked on NOK.
	if node.PromptAfter != "" && e.IO != nil {
		approved, err := e.IO.Prompt(node.ID, node.Name, node.PromptAfter)
		if err != nil {
			return e.finalize(ctx, exec, domain.StatusNOK, "", &result.ExitCode, result.Stdout, result.Stderr, err.Error())
		}
		decision := domain.DecisionRejected
		status := domain.StatusNOK
		if approved {
			decision = domain.DecisionApproved
			status = domain.StatusOK
		}
		exec.OperatorDecision = &decision
		return e.finalize(ctx, exec, status, "", &result.ExitCode, result.Stdout, result.Stderr, "")
	}
	return e.finalize(ctx, exec, domain.StatusOK, "", &result.ExitCode, result.Stdout, result.Stderr, "")
}

func (e *Engine) dispatchFunction(ctx context.Context, node *domain.Node, exec *domain.NodeExecution) error {
	if e.Plugins == nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", "no plugin registry configured for function node")
	}
	result, err := e.Plugins.Dispatch(node.Plugin, node.Function, node.FunctionParams, node.PluginConfig)
	if err != nil {
		return e.finalize(ctx, exec, domain.StatusNOK, "", nil, "", "", err.Error())
	}
	resultText := fmt.Sprint(result)

	if node.PromptAfter != "" && resultText != "" && e.IO != nil {
		e.IO.FunctionOutput(node.ID, node.Name, node.Description, resultText)
		approved, err := e.IO.Prompt(node.ID, node.Name, node.PromptAfter)
		if err != nil {
			return e.finalize(ctx, exec, domain.StatusNOK, resultText, nil, "", "", err.Error())
		}
		decision := domain.DecisionRejected
		status := domain.StatusNOK
		if approved {
			decision = domain.DecisionApproved
			status = domain.StatusOK
		}
		exec.OperatorDecision = &decision
		return e.finalize(ctx, exec, status, resultText, nil, "", "", "")
	}
	if e.IO != nil {
		e.IO.FunctionOutput(node.ID, node.Name, node.Description, resultText)
	}
	return e.finalize(ctx, exec, domain.StatusOK, resultText, nil, "", "", "")
}

// finalize updates exec with end-time, duration and the terminal status
// produced by dispatch (§4.5 step 6).
func (e *Engine) finalize(ctx context.Context, exec *domain.NodeExecution, status domain.NodeStatus, resultText string, exitCode *int, stdout, stderr, exception string) error {
	now := e.Clock.Now()
	exec.EndTime = &now
	exec.DurationMS = now.Sub(exec.StartTime).Milliseconds()
	exec.Status = status
	exec.ResultText = resultText
	exec.ExitCode = exitCode
	exec.Stdout = stdout
	exec.Stderr = stderr
	exec.Exception = exception
	return e.Execs.UpdateExecution(ctx, exec)
}

// terminal creates and immediately finalizes a SKIPPED attempt (structural
// skip or when-false), notifying the IO handler, per §4.5 steps 1–2.
func (e *Engine) terminal(ctx context.Context, node *domain.Node, workflowName string, runID int64, attempt int, now time.Time, status domain.NodeStatus, rationale string, exitCode *int) error {
	exec := &domain.NodeExecution{
		WorkflowName: workflowName,
		RunID:        runID,
		NodeID:       node.ID,
		Attempt:      attempt,
		StartTime:    now,
		Status:       domain.StatusRunning,
	}
	if err := e.Execs.CreateExecution(ctx, exec); err != nil {
		return err
	}
	if e.IO != nil {
		e.IO.Description(node.ID, node.Name, rationale)
	}
	return e.finalize(ctx, exec, status, rationale, exitCode, "", "", "")
}

// Retry runs a fresh attempt for node, numbered strictly greater than the
// current latest (§4.5 Retry/skip/abort). The caller bounds retry counts
// and decides between retry/skip/abort.
func (e *Engine) Retry(ctx context.Context, rb *domain.Runbook, run *domain.RunInfo, nodeID string, vars map[string]any) error {
	node, ok := rb.Nodes[nodeID]
	if !ok {
		return errs.New(errs.KindValidation, "retry: unknown node %q", nodeID)
	}
	latest, err := e.Execs.LatestExecution(ctx, run.WorkflowName, run.RunID, nodeID)
	if err != nil {
		return err
	}
	attempt := 1
	if latest != nil {
		attempt = latest.Attempt + 1
	}
	evaluator := condition.NewEvaluator(e.historyLookup(ctx, run.WorkflowName, run.RunID))
	if err := e.executeNode(ctx, rb, run, node, attempt, vars, evaluator); err != nil {
		return err
	}
	return e.Aggregate(ctx, rb, run)
}

// SkipLatest mutates the latest attempt of nodeID to SKIPPED (§4.5
// Retry/skip/abort: "a skip after failure mutates the latest attempt to
// SKIPPED").
func (e *Engine) SkipLatest(ctx context.Context, rb *domain.Runbook, run *domain.RunInfo, nodeID string) error {
	latest, err := e.Execs.LatestExecution(ctx, run.WorkflowName, run.RunID, nodeID)
	if err != nil {
		return err
	}
	if latest == nil {
		return errs.New(errs.KindValidation, "skip: node %q has no attempt to skip", nodeID)
	}
	now := e.Clock.Now()
	latest.Status = domain.StatusSkipped
	latest.EndTime = &now
	if err := e.Execs.UpdateExecution(ctx, latest); err != nil {
		return err
	}
	return e.Aggregate(ctx, rb, run)
}
