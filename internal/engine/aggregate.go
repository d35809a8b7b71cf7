package engine

import (
	"context"

	"github.com/ormasoftchile/playbook/internal/domain"
)

// Aggregate recomputes run's Status/NodesOK/NodesNOK/NodesSkipped from the
// latest attempt of every node in rb (§4.5 run-status aggregation): a
// critical node's latest attempt being NOK makes the run NOK immediately;
// otherwise the run is OK once every node has a terminal latest attempt and
// none of them is NOK, NOK once every node is terminal and at least one is
// NOK, and RUNNING while any node has no terminal latest attempt yet. Counts
// are persisted on every call even when Status is unchanged.
func (e *Engine) Aggregate(ctx context.Context, rb *domain.Runbook, run *domain.RunInfo) error {
	var ok, nok, skipped int
	allTerminal := true
	criticalFailed := false

	for _, id := range rb.NodeOrder {
		node := rb.Nodes[id]
		latest, err := e.Execs.LatestExecution(ctx, run.WorkflowName, run.RunID, id)
		if err != nil {
			return err
		}
		if latest == nil || !latest.Status.Terminal() {
			allTerminal = false
			continue
		}
		switch latest.Status {
		case domain.StatusOK:
			ok++
		case domain.StatusNOK:
			nok++
			if node.Critical {
				criticalFailed = true
			}
		case domain.StatusSkipped:
			skipped++
		}
	}

	run.NodesOK = ok
	run.NodesNOK = nok
	run.NodesSkipped = skipped

	switch {
	case run.Status == domain.RunAborted:
		// leave as-is; an external Abort call takes precedence.
	case criticalFailed:
		run.Status = domain.RunNOK
		now := e.Clock.Now()
		run.EndTime = &now
	case allTerminal:
		if nok > 0 {
			run.Status = domain.RunNOK
		} else {
			run.Status = domain.RunOK
		}
		now := e.Clock.Now()
		run.EndTime = &now
	default:
		run.Status = domain.RunRunning
		run.EndTime = nil
	}

	return e.Runs.UpdateRun(ctx, run)
}
