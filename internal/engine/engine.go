// Package engine implements §4.5: topological scheduling, per-node
// execution, attempt accounting, retries, `when` gating, critical-node
// abort, and run-status aggregation.
package engine

import (
	"context"
	"time"

	"github.com/ormasoftchile/playbook/internal/condition"
	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/plugin"
	"github.com/ormasoftchile/playbook/internal/ports"
)

// Engine drives a single run's node-advance loop. One Engine instance
// executes exactly one run at a time, sequentially (§5).
type Engine struct {
	Runs    ports.RunRepository
	Execs   ports.NodeExecutionRepository
	Clock   ports.Clock
	Process ports.ProcessRunner
	IO      ports.IOHandler
	Plugins *plugin.Registry
}

// systemClock is the default ports.Clock, used when the caller doesn't
// supply one.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New builds an Engine. Process/IO/Plugins may be nil only if the run's
// nodes never dispatch to the corresponding variant.
func New(runs ports.RunRepository, execs ports.NodeExecutionRepository, process ports.ProcessRunner, io ports.IOHandler, plugins *plugin.Registry) *Engine {
	return &Engine{Runs: runs, Execs: execs, Clock: systemClock{}, Process: process, IO: io, Plugins: plugins}
}

// StartRun opens a new run of rb.Title (§4.5 Run lifecycle) and executes
// every node in topological order.
func (e *Engine) StartRun(ctx context.Context, rb *domain.Runbook, vars map[string]any) (*domain.RunInfo, error) {
	run, err := e.Runs.CreateRun(ctx, rb.Title, domain.TriggerRun, e.Clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.advance(ctx, rb, run, vars, nil); err != nil {
		return run, err
	}
	return run, nil
}

// ResumeRun reopens an existing run and advances from the first node whose
// latest attempt is not in a success-like terminal state (§4.5, §9). Only
// RUNNING or ABORTED runs are resumable; OK/NOK are terminal.
func (e *Engine) ResumeRun(ctx context.Context, rb *domain.Runbook, runID int64, vars map[string]any, startNode *string) (*domain.RunInfo, error) {
	run, err := e.Runs.GetRun(ctx, rb.Title, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunRunning && run.Status != domain.RunAborted {
		return nil, errs.New(errs.KindValidation, "run (%s, %d) is %s and cannot be resumed", rb.Title, runID, run.Status)
	}
	run.Status = domain.RunRunning
	run.Trigger = domain.TriggerResume
	run.EndTime = nil
	if err := e.Runs.UpdateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := e.advance(ctx, rb, run, vars, startNode); err != nil {
		return run, err
	}
	return run, nil
}

// Abort force-transitions run to ABORTED, per §4.5/§6.
func (e *Engine) Abort(ctx context.Context, run *domain.RunInfo) error {
	now := e.Clock.Now()
	run.Status = domain.RunAborted
	run.EndTime = &now
	return e.Runs.UpdateRun(ctx, run)
}

// advance computes the topological order, selects the nodes to run per
// §4.5's resume rule, and executes each selected node in order, stopping
// early on a critical failure or an out-of-band ABORTED transition.
func (e *Engine) advance(ctx context.Context, rb *domain.Runbook, run *domain.RunInfo, vars map[string]any, startNode *string) error {
	order, err := domain.TopologicalOrder(rb)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "compute topological order")
	}

	startIdx := 0
	if startNode != nil {
		idx := indexOf(order, *startNode)
		if idx == -1 {
			return errs.New(errs.KindValidation, "start node %q not found in topological order", *startNode)
		}
		startIdx = idx
	}

	lookup := e.historyLookup(ctx, rb.Title, run.RunID)
	evaluator := condition.NewEvaluator(lookup)

	for _, id := range order[startIdx:] {
		// Refresh run status each iteration: an out-of-band ABORTED
		// transition (via the persistence layer) halts the loop (§4.5,
		// §6 Cancellation).
		current, err := e.Runs.GetRun(ctx, rb.Title, run.RunID)
		if err != nil {
			return err
		}
		*run = *current
		if run.Status.Terminal() || run.Status == domain.RunAborted {
			return nil
		}

		latest, err := e.Execs.LatestExecution(ctx, rb.Title, run.RunID, id)
		if err != nil {
			return err
		}
		if latest != nil && (latest.Status == domain.StatusOK || latest.Status == domain.StatusSkipped) {
			continue // already satisfied by a prior run/attempt
		}

		node := rb.Nodes[id]
		attempt := 1
		if latest != nil {
			attempt = latest.Attempt + 1
		}

		if err := e.executeNode(ctx, rb, run, node, attempt, vars, evaluator); err != nil {
			return err
		}
		if err := e.Aggregate(ctx, rb, run); err != nil {
			return err
		}
		if run.Status == domain.RunNOK && node.Critical {
			return nil // critical-node policy: stop immediately (§4.5)
		}
	}
	return nil
}

func (e *Engine) historyLookup(ctx context.Context, workflowName string, runID int64) condition.HistoryLookup {
	return func(nodeID string) (*domain.NodeExecution, bool) {
		exec, err := e.Execs.LatestExecution(ctx, workflowName, runID, nodeID)
		if err != nil || exec == nil {
			return nil, false
		}
		return exec, true
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
