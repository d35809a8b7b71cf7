package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ormasoftchile/playbook/internal/domain"
	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/ports"
)

// fakeClock advances a fixed amount on every call, so each StartTime/EndTime
// stamp is distinct and DurationMS is always positive.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type runKey struct {
	workflow string
	runID    int64
}

// fakeStore implements both ports.RunRepository and ports.NodeExecutionRepository
// entirely in memory, mirroring internal/persistence.Store's keying, run-id
// allocation and update semantics; ListRuns and ListExecutions return their
// results in no defined order.
type fakeStore struct {
	mu        sync.Mutex
	nextID    map[string]int64
	runs      map[runKey]*domain.RunInfo
	execs     map[runKey]map[string][]*domain.NodeExecution // nodeID -> attempts, 1-indexed by position
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID: make(map[string]int64),
		runs:   make(map[runKey]*domain.RunInfo),
		execs:  make(map[runKey]map[string][]*domain.NodeExecution),
	}
}

func (s *fakeStore) CreateRun(ctx context.Context, workflowName string, trigger domain.Trigger, startTime time.Time) (*domain.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID[workflowName]++
	run := &domain.RunInfo{
		WorkflowName: workflowName,
		RunID:        s.nextID[workflowName],
		StartTime:    startTime,
		Status:       domain.RunRunning,
		Trigger:      trigger,
	}
	s.runs[runKey{workflowName, run.RunID}] = run
	return run, nil
}

func (s *fakeStore) UpdateRun(ctx context.Context, run *domain.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey{run.WorkflowName, run.RunID}
	if _, ok := s.runs[key]; !ok {
		return errs.New(errs.KindPersistence, "no such run")
	}
	cp := *run
	s.runs[key] = &cp
	return nil
}

func (s *fakeStore) GetRun(ctx context.Context, workflowName string, runID int64) (*domain.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runKey{workflowName, runID}]
	if !ok {
		return nil, errs.New(errs.KindPersistence, "no such run")
	}
	cp := *run
	return &cp, nil
}

func (s *fakeStore) ListRuns(ctx context.Context, workflowName string) ([]*domain.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.RunInfo
	for k, v := range s.runs {
		if k.workflow == workflowName {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateExecution(ctx context.Context, e *domain.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey{e.WorkflowName, e.RunID}
	if s.execs[key] == nil {
		s.execs[key] = make(map[string][]*domain.NodeExecution)
	}
	cp := *e
	s.execs[key][e.NodeID] = append(s.execs[key][e.NodeID], &cp)
	return nil
}

func (s *fakeStore) UpdateExecution(ctx context.Context, e *domain.NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey{e.WorkflowName, e.RunID}
	attempts := s.execs[key][e.NodeID]
	for i, a := range attempts {
		if a.Attempt == e.Attempt {
			cp := *e
			attempts[i] = &cp
			return nil
		}
	}
	return errs.New(errs.KindPersistence, "no such attempt")
}

func (s *fakeStore) ListExecutions(ctx context.Context, workflowName string, runID int64) ([]*domain.NodeExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.NodeExecution
	for _, attempts := range s.execs[runKey{workflowName, runID}] {
		out = append(out, attempts...)
	}
	return out, nil
}

func (s *fakeStore) LatestExecution(ctx context.Context, workflowName string, runID int64, nodeID string) (*domain.NodeExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempts := s.execs[runKey{workflowName, runID}][nodeID]
	if len(attempts) == 0 {
		return nil, nil
	}
	cp := *attempts[len(attempts)-1]
	return &cp, nil
}

// fakeProcess resolves a CommandResult (or error) per command name, falling
// back to an exit-0 success for any command it has no explicit script for.
type fakeProcess struct {
	mu      sync.Mutex
	scripts map[string]*ports.CommandResult
	errs    map[string]error
	calls   []string
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{scripts: make(map[string]*ports.CommandResult), errs: make(map[string]error)}
}

func (p *fakeProcess) Run(ctx context.Context, commandName string, timeout time.Duration, interactive bool) (*ports.CommandResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, commandName)
	if err, ok := p.errs[commandName]; ok {
		return nil, err
	}
	if r, ok := p.scripts[commandName]; ok {
		return r, nil
	}
	return &ports.CommandResult{ExitCode: 0}, nil
}

// fakeIO auto-approves every prompt unless a per-node override says otherwise.
type fakeIO struct {
	mu        sync.Mutex
	approvals map[string]bool // nodeID -> decision; absent means approve
	prompts   []string
}

func newFakeIO() *fakeIO {
	return &fakeIO{approvals: make(map[string]bool)}
}

func (io *fakeIO) Prompt(nodeID, nodeName, promptText string) (bool, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.prompts = append(io.prompts, nodeID)
	if decision, ok := io.approvals[nodeID]; ok {
		return decision, nil
	}
	return true, nil
}

func (io *fakeIO) Description(nodeID, nodeName, text string)                          {}
func (io *fakeIO) CommandOutput(nodeID, nodeName, description, stdout, stderr string) {}
func (io *fakeIO) FunctionOutput(nodeID, nodeName, description, resultText string)    {}

// fakePlugin is a minimal ports.Plugin double for dispatchFunction tests.
type fakePlugin struct{}

func (fakePlugin) Metadata() ports.PluginMetadata {
	return ports.PluginMetadata{
		Name: "fake",
		Functions: map[string]ports.FunctionSignature{
			"greet": {Parameters: map[string]ports.ParameterDef{
				"name": {Type: ports.ParamString, Required: true},
			}},
		},
	}
}

func (fakePlugin) Initialize(config map[string]any) error { return nil }

func (fakePlugin) Execute(function string, params map[string]any) (any, error) {
	return "hello " + params["name"].(string), nil
}

func (fakePlugin) Cleanup() error { return nil }

func commandNode(id string, commandName string, deps ...string) *domain.Node {
	n := &domain.Node{ID: id, Type: domain.NodeTypeCommand, CommandName: commandName, DependsOn: deps}
	n.Normalize()
	return n
}

func manualNode(id string, deps ...string) *domain.Node {
	n := &domain.Node{ID: id, Type: domain.NodeTypeManual, PromptAfter: "ok?", DependsOn: deps}
	n.Normalize()
	return n
}

func criticalCommandNode(id string, commandName string, deps ...string) *domain.Node {
	n := commandNode(id, commandName, deps...)
	n.Critical = true
	return n
}

func buildRunbook(nodes ...*domain.Node) *domain.Runbook {
	order := make([]string, 0, len(nodes))
	m := make(map[string]*domain.Node, len(nodes))
	for _, n := range nodes {
		order = append(order, n.ID)
		m[n.ID] = n
	}
	rb, err := domain.NewRunbook("wf", "d", "1", "me", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), order, m)
	if err != nil {
		panic(err)
	}
	return rb
}
