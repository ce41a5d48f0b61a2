// Package controller drives a task through its lifecycle: it plans a
// workflow graph from the request, runs the graph's nodes phase by phase
// under tracing, and fails closed on any error.
package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/model/provider"
	"github.com/dshills/agentpipe/graph/nodes"
	"github.com/dshills/agentpipe/graph/store"
)

// DefaultGoal is the goal recorded for tasks created without one.
const DefaultGoal = "Process user input through deterministic workflow"

// Decision action types written by the controller. Trace events use
// emit.ActionDAGNodeEvent.
const (
	ActionControllerState = "controller_state"
	ActionWorkflowGraph   = "workflow_graph"
	ActionToolCall        = "tool_call"
	ActionValidation      = "validation"
)

// Controller-state decision statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusFailed    = "failed"
)

// llmErrLocalModelMissing marks a run that skipped the LLM step because no
// usable model was selected.
const llmErrLocalModelMissing = "local_model_missing"

// DefaultSteps returns the step list recorded for tasks created without one.
func DefaultSteps() []string {
	return []string{
		string(graph.StatePlan),
		string(graph.StateExecute),
		string(graph.StateValidate),
		string(graph.StateCommit),
		string(graph.StateArchive),
	}
}

// RunRequest is one user turn.
type RunRequest struct {
	UserInput string                 `json:"user_input"`
	TaskID    string                 `json:"task_id,omitempty"`
	Goal      string                 `json:"goal,omitempty"`
	Steps     []string               `json:"steps,omitempty"`
	ToolCall  *graph.ToolCallRequest `json:"tool_call,omitempty"`
}

// RunResult is the outcome of Run or RunTask. Error is empty on success;
// Err carries the same failure for errors.Is matching.
type RunResult struct {
	TaskID           string                `json:"task_id"`
	RunID            string                `json:"run_id,omitempty"`
	FinalState       graph.ControllerState `json:"final_state"`
	Archived         bool                  `json:"archived"`
	Context          *graph.RunContext     `json:"context,omitempty"`
	Graph            *graph.WorkflowGraph  `json:"workflow_graph,omitempty"`
	GraphFingerprint string                `json:"workflow_graph_fingerprint,omitempty"`
	ExecutionOrder   []string              `json:"workflow_execution_order,omitempty"`
	Error            string                `json:"error,omitempty"`
	Err              error                 `json:"-"`
}

// Controller binds the state machine, plan compiler and DAG executor to the
// memory and model-selection collaborators.
//
// A Controller holds no per-run mutable state. Every Run builds its own
// state machine and node registry, so concurrent Runs are safe as long as
// the Store is. Runs against the same task id must be serialized by the
// caller.
type Controller struct {
	store    store.Store
	selector model.Selector
	executor *graph.DAGExecutor
	cfg      config
}

// New creates a Controller. selector may be nil, in which case every run
// takes the missing-model path.
func New(st store.Store, selector model.Selector, opts ...Option) (*Controller, error) {
	cfg := config{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		maxMessages: DefaultMaxMessages,
		models:      provider.Env{},
		compiler:    graph.NewPlanCompiler(),
		newRegistry: nodes.NewRegistry,
		newTaskID:   newTaskID,
		newRunID:    func() string { return ulid.Make().String() },
		catalogPath: "models/models.yaml",
		modelDir:    "models/",
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Controller{
		store:    st,
		selector: selector,
		executor: graph.NewDAGExecutor(),
		cfg:      cfg,
	}, nil
}

func newTaskID() string {
	return "task-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Run processes one user turn through the full lifecycle. Failures never
// escape: they come back as a FAILED result with Error set.
//
// Cancellation of ctx is ignored. A run always reaches ARCHIVE or FAILED
// and its store writes are never cut short; ctx values still propagate.
func (c *Controller) Run(ctx context.Context, req RunRequest) RunResult {
	ctx = context.WithoutCancel(ctx)
	r := c.newRun()
	c.cfg.metrics.RunStarted()
	res := r.execute(ctx, req)
	c.cfg.metrics.RunFinished(res.FinalState)
	return res
}

// RunTask walks a fresh task through the lifecycle without running any
// node, branching only on validationPassed.
func (c *Controller) RunTask(ctx context.Context, taskID, goal string, steps []string, validationPassed bool) RunResult {
	ctx = context.WithoutCancel(ctx)
	r := c.newRun()
	c.cfg.metrics.RunStarted()
	res := r.walk(ctx, taskID, goal, steps, validationPassed)
	c.cfg.metrics.RunFinished(res.FinalState)
	return res
}

func (c *Controller) newRun() *run {
	r := &run{
		c:     c,
		fsm:   graph.NewFSM(),
		runID: c.cfg.newRunID(),
		start: c.cfg.now(),
	}
	sink := emit.NewDecisionEmitter(c.store, func(err error) {
		c.cfg.metrics.IncrementTraceErrors()
		c.cfg.logger.Warn("trace event not persisted", "run_id", r.runID, "error", err)
	})
	r.emitter = append(emit.Multi{sink}, c.cfg.emitters...)
	return r
}

// missingModelMessage is the deterministic output of a run that has no
// usable model.
func (c *Controller) missingModelMessage(profile, hardware, role string) string {
	var b strings.Builder
	b.WriteString("Local model missing. Please drop a GGUF into " + c.cfg.modelDir + " and update the catalog. \n")
	b.WriteString("Catalog: " + c.cfg.catalogPath + "\n")
	b.WriteString("Requested role=" + role + ", profile=" + profile + ", hardware=" + hardware + "\n")
	b.WriteString("Expected example path: " + joinModelPath(c.cfg.modelDir, "test-mini.gguf"))
	return b.String()
}

func joinModelPath(dir, name string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":` + strconv.Quote(err.Error()) + `}`
	}
	return string(data)
}
