package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/playbook/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateRun_AllocatesSequentialRunIDsPerWorkflow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r1, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.RunID)

	r2, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.RunID)

	// A different workflow starts its own sequence from 1.
	other, err := store.CreateRun(ctx, "teardown", domain.TriggerRun, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.RunID)
}

func TestCreateRun_SetsRunningStatus(t *testing.T) {
	store := openTestStore(t)
	run, err := store.CreateRun(context.Background(), "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)
}

func TestUpdateRunAndGetRun_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	end := time.Now()
	run.Status = domain.RunOK
	run.EndTime = &end
	run.NodesOK = 3
	run.NodesNOK = 1
	run.NodesSkipped = 2
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := store.GetRun(ctx, "deploy", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunOK, got.Status)
	assert.Equal(t, 3, got.NodesOK)
	assert.Equal(t, 1, got.NodesNOK)
	assert.Equal(t, 2, got.NodesSkipped)
	require.NotNil(t, got.EndTime)
}

func TestUpdateRun_NoSuchRunIsError(t *testing.T) {
	store := openTestStore(t)
	run := &domain.RunInfo{WorkflowName: "ghost", RunID: 99, Status: domain.RunOK, StartTime: time.Now()}
	err := store.UpdateRun(context.Background(), run)
	require.Error(t, err)
}

func TestGetRun_NoSuchRunIsError(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun(context.Background(), "ghost", 1)
	require.Error(t, err)
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)
	_, err = store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, "deploy")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].RunID)
	assert.Equal(t, int64(1), runs[1].RunID)
}

func newExecution(workflow string, runID int64, nodeID string, attempt int) *domain.NodeExecution {
	return &domain.NodeExecution{
		WorkflowName: workflow,
		RunID:        runID,
		NodeID:       nodeID,
		Attempt:      attempt,
		StartTime:    time.Now(),
		Status:       domain.StatusRunning,
	}
}

func TestCreateAndUpdateExecution_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	exec := newExecution("deploy", 1, "build", 1)
	require.NoError(t, store.CreateExecution(ctx, exec))

	end := time.Now()
	exitCode := 0
	exec.Status = domain.StatusOK
	exec.EndTime = &end
	exec.ExitCode = &exitCode
	exec.Stdout = "done"
	exec.DurationMS = 42
	require.NoError(t, store.UpdateExecution(ctx, exec))

	got, err := store.LatestExecution(ctx, "deploy", 1, "build")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusOK, got.Status)
	assert.Equal(t, "done", got.Stdout)
	assert.Equal(t, 0, *got.ExitCode)
	assert.Equal(t, int64(42), got.DurationMS)
}

func TestUpdateExecution_NoSuchAttemptIsError(t *testing.T) {
	store := openTestStore(t)
	exec := newExecution("deploy", 1, "build", 1)
	err := store.UpdateExecution(context.Background(), exec)
	require.Error(t, err)
}

func TestLatestExecution_ReturnsNilWhenNoAttemptExists(t *testing.T) {
	store := openTestStore(t)
	got, err := store.LatestExecution(context.Background(), "deploy", 1, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestExecution_ReturnsHighestAttempt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "build", 1)))
	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "build", 2)))
	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "build", 3)))

	got, err := store.LatestExecution(ctx, "deploy", 1, "build")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Attempt)
}

func TestListExecutions_OrderedByNodeThenAttempt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "build", 1)))
	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "build", 2)))
	require.NoError(t, store.CreateExecution(ctx, newExecution("deploy", 1, "deploy-step", 1)))

	execs, err := store.ListExecutions(ctx, "deploy", 1)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "build", execs[0].NodeID)
	assert.Equal(t, 1, execs[0].Attempt)
	assert.Equal(t, "build", execs[1].NodeID)
	assert.Equal(t, 2, execs[1].Attempt)
	assert.Equal(t, "deploy-step", execs[2].NodeID)
}

func TestCreateExecution_PersistsOperatorDecisionAndException(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateRun(ctx, "deploy", domain.TriggerRun, time.Now())
	require.NoError(t, err)

	exec := newExecution("deploy", 1, "approve", 1)
	decision := domain.DecisionApproved
	exec.OperatorDecision = &decision
	exec.Exception = domain.ErrTimeoutMarker
	require.NoError(t, store.CreateExecution(ctx, exec))

	got, err := store.LatestExecution(ctx, "deploy", 1, "approve")
	require.NoError(t, err)
	require.NotNil(t, got.OperatorDecision)
	assert.Equal(t, domain.DecisionApproved, *got.OperatorDecision)
	assert.Equal(t, domain.ErrTimeoutMarker, got.Exception)
}
