package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/model"
	"github.com/dshills/agentpipe/graph/nodes"
	"github.com/dshills/agentpipe/graph/store"
)

// run is the state of one Run or RunTask invocation.
type run struct {
	c       *Controller
	fsm     *graph.FSM
	runID   string
	start   time.Time
	emitter emit.Emitter

	taskID    string
	// persisted is set once the task record exists in the store. Until
	// then nothing is written under taskID.
	persisted bool

	rc       *graph.RunContext
	registry graph.Registry
	graph    *graph.WorkflowGraph
	order    []string
}

func (r *run) execute(ctx context.Context, req RunRequest) RunResult {
	r.rc = graph.NewRunContext(req.UserInput, req.TaskID)
	r.rc.ToolCall = req.ToolCall

	if err := r.setup(ctx, req); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.plan(ctx, req); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.executePhase(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.validate(ctx); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.commit(ctx); err != nil {
		return r.fail(ctx, err)
	}
	return r.result(nil)
}

// setup creates the task, or loads it for a continuation, and records the
// user turn.
func (r *run) setup(ctx context.Context, req RunRequest) error {
	st := r.c.store
	if req.TaskID != "" {
		r.taskID = req.TaskID
		task, err := st.GetTask(ctx, req.TaskID)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTaskID) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("load task %s: %w", req.TaskID, err)
		}
		r.taskID = task.TaskID
		r.persisted = true
		if task.Archived || task.Status != store.StatusInit {
			task.Archived = false
			task.Status = store.StatusInit
			if err := st.PutTask(ctx, task); err != nil {
				return fmt.Errorf("reactivate task %s: %w", task.TaskID, err)
			}
		}
	} else {
		goal := req.Goal
		if goal == "" {
			goal = DefaultGoal
		}
		steps := req.Steps
		if len(steps) == 0 {
			steps = DefaultSteps()
		}
		r.taskID = r.c.cfg.newTaskID()
		task, err := st.CreateTask(ctx, r.taskID, goal, steps)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		r.taskID = task.TaskID
		r.persisted = true
	}
	r.rc.TaskID = r.taskID
	r.logState(ctx, graph.StateInit, StatusRunning)

	if _, err := st.AppendTaskMessage(ctx, r.taskID, model.RoleUser, req.UserInput, r.c.cfg.maxMessages); err != nil {
		return fmt.Errorf("record user message: %w", err)
	}
	return nil
}

// plan routes the request, compiles and persists the workflow graph,
// resolves its order and selects a model.
func (r *run) plan(ctx context.Context, req RunRequest) error {
	if err := r.enter(ctx, graph.StatePlan); err != nil {
		return err
	}

	r.registry = r.c.cfg.newRegistry(nodes.Deps{
		Store:        r.c.store,
		Models:       r.c.cfg.models,
		ToolExecutor: r.c.cfg.toolExecutor,
	})

	if err := r.traceNode(ctx, string(graph.NodeRouter)); err != nil {
		return &PhaseError{Prefix: PrefixRouter, Cause: err}
	}

	g := r.c.cfg.compiler.Compile(r.rc.Intent)
	if req.ToolCall != nil {
		g = graph.WithToolCall(g)
	}
	r.graph = &g
	if err := r.persistGraph(ctx, g); err != nil {
		return &PhaseError{Prefix: PrefixRouter, Cause: err}
	}

	order, err := r.c.executor.ResolveExecutionOrder(g, r.registry)
	if err != nil {
		return &PhaseError{Prefix: PrefixRouter, Cause: err}
	}
	r.order = order

	if err := r.selectModel(); err != nil {
		return &PhaseError{Prefix: PrefixRouter, Cause: err}
	}
	return nil
}

func (r *run) persistGraph(ctx context.Context, g graph.WorkflowGraph) error {
	data, err := g.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode workflow graph: %w", err)
	}
	task, err := r.c.store.GetTask(ctx, r.taskID)
	if err != nil {
		return fmt.Errorf("load task for graph snapshot: %w", err)
	}
	task.WorkflowGraph = data
	if err := r.c.store.PutTask(ctx, task); err != nil {
		return fmt.Errorf("persist workflow graph: %w", err)
	}
	r.logDecision(ctx, ActionWorkflowGraph, string(data), g.Fingerprint())
	return nil
}

func (r *run) selectModel() error {
	sel := r.c.selector
	role := "chat"
	if r.rc.Intent == graph.IntentCode {
		role = "code"
	}
	if sel == nil {
		r.skipLLM("", "", role)
		return nil
	}

	profile := sel.HardwareProfile()
	hardware := sel.DetectHardwareType()
	spec, err := sel.SelectModel(profile, hardware, role)
	if err != nil {
		return fmt.Errorf("select model: %w", err)
	}
	if spec == nil {
		r.skipLLM(profile, hardware, role)
		return nil
	}

	r.rc.SelectedModel = spec
	r.rc.LLMModelPath = spec.Path
	if spec.IsLocal() && !fileExists(spec.Path) {
		r.skipLLM(profile, hardware, role)
	}
	return nil
}

func (r *run) skipLLM(profile, hardware, role string) {
	if r.rc.SelectedModel == nil {
		r.rc.LLMModelPath = ""
	}
	r.rc.LLMOutput = r.c.missingModelMessage(profile, hardware, role)
	r.rc.LLMError = llmErrLocalModelMissing
	r.rc.SkipLLM = true
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// executePhase runs every EXECUTE node in resolved order.
func (r *run) executePhase(ctx context.Context) error {
	if err := r.enter(ctx, graph.StateExecute); err != nil {
		return err
	}

	for _, id := range r.order {
		if graph.NodeType(id).Phase() != graph.StateExecute {
			continue
		}
		if id == string(graph.NodeLLMWorker) && r.rc.SkipLLM {
			continue
		}
		if err := r.traceNode(ctx, id); err != nil {
			return &PhaseError{Prefix: PrefixExecute, Cause: err}
		}
		if id == string(graph.NodeToolCall) {
			r.recordToolCall(ctx)
		}
	}

	if !r.rc.HasOutput() && r.rc.LLMError != "" {
		r.rc.LLMOutput = r.rc.LLMError
	}
	if r.rc.HasOutput() {
		if _, err := r.c.store.AppendTaskMessage(ctx, r.taskID, model.RoleAssistant, r.rc.LLMOutput, r.c.cfg.maxMessages); err != nil {
			return fmt.Errorf("record assistant message: %w", err)
		}
	}
	return nil
}

func (r *run) recordToolCall(ctx context.Context) {
	req := r.rc.ToolCall
	params := map[string]any{}
	if req != nil {
		params["tool_name"] = req.ToolName
		params["payload"] = req.Payload
		params["allow_write_safe"] = req.AllowWriteSafe
		params["sandbox_roots"] = req.SandboxRoots
	}
	paramsJSON := mustJSON(params)
	id, ok := r.logDecision(ctx, ActionToolCall, paramsJSON, r.rc.ToolCallStatus)
	if !ok {
		return
	}
	if _, err := r.c.store.LogToolCall(ctx, id, r.rc.ToolName, paramsJSON, mustJSON(r.rc.ToolResult)); err != nil {
		r.secondaryFailure("tool call not recorded", err)
	}
}

// validate runs the VALIDATE nodes and turns a rejection into
// ErrValidationFailed.
func (r *run) validate(ctx context.Context) error {
	if err := r.enter(ctx, graph.StateValidate); err != nil {
		return err
	}
	for _, id := range r.order {
		if graph.NodeType(id).Phase() != graph.StateValidate {
			continue
		}
		if err := r.traceNode(ctx, id); err != nil {
			return &PhaseError{Prefix: PrefixValidator, Cause: err}
		}
	}

	outcome := "pass"
	if !r.rc.IsValid {
		outcome = "fail"
	}
	if id, ok := r.logDecision(ctx, ActionValidation, r.rc.LLMOutput, outcome); ok {
		if _, err := r.c.store.LogValidation(ctx, id, string(graph.NodeValidator), outcome, "non-empty output"); err != nil {
			r.secondaryFailure("validation not recorded", err)
		}
	}
	if !r.rc.IsValid {
		return ErrValidationFailed
	}
	return nil
}

// commit moves through COMMIT to ARCHIVE and archives the task.
func (r *run) commit(ctx context.Context) error {
	if err := r.enter(ctx, graph.StateCommit); err != nil {
		return err
	}
	if _, err := r.fsm.Transition(graph.StateArchive); err != nil {
		return err
	}
	if _, err := r.c.store.ArchiveTask(ctx, r.taskID); err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	r.logState(ctx, graph.StateArchive, StatusCompleted)
	return nil
}

// enter transitions to state, records it as the task status and logs it.
func (r *run) enter(ctx context.Context, state graph.ControllerState) error {
	if _, err := r.fsm.Transition(state); err != nil {
		return err
	}
	if _, err := r.c.store.UpdateTaskStatus(ctx, r.taskID, string(state)); err != nil {
		return fmt.Errorf("update task status to %s: %w", state, err)
	}
	r.logState(ctx, state, StatusRunning)
	return nil
}

// fail is the shared failure path. Secondary failures while recording it
// are logged and never replace err.
func (r *run) fail(ctx context.Context, err error) RunResult {
	if r.fsm.CanTransition(graph.StateFailed) {
		_, _ = r.fsm.Transition(graph.StateFailed)
	}
	if r.persisted {
		if _, uerr := r.c.store.UpdateTaskStatus(ctx, r.taskID, string(graph.StateFailed)); uerr != nil {
			r.secondaryFailure("failed status not recorded", uerr)
		}
		r.logState(ctx, graph.StateFailed, StatusError)
	}
	r.c.cfg.metrics.IncrementFailures(failureReason(err))

	if r.rc != nil {
		msg := err.Error()
		if r.rc.LLMOutput == "" {
			r.rc.LLMOutput = msg
		}
		if r.rc.ControllerError == "" {
			r.rc.ControllerError = msg
		}
	}
	return r.result(err)
}

func (r *run) result(err error) RunResult {
	res := RunResult{
		TaskID:         r.taskID,
		RunID:          r.runID,
		FinalState:     r.fsm.Current(),
		Archived:       err == nil && r.fsm.Current() == graph.StateArchive,
		Context:        r.rc,
		Graph:          r.graph,
		ExecutionOrder: r.order,
		Err:            err,
	}
	if r.graph != nil {
		res.GraphFingerprint = r.graph.Fingerprint()
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// walk is RunTask: the lifecycle without nodes.
func (r *run) walk(ctx context.Context, taskID, goal string, steps []string, validationPassed bool) RunResult {
	r.taskID = taskID
	task, err := r.c.store.CreateTask(ctx, taskID, goal, steps)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("create task: %w", err))
	}
	r.taskID = task.TaskID
	r.persisted = true
	r.logState(ctx, graph.StateInit, StatusRunning)

	for _, state := range []graph.ControllerState{graph.StatePlan, graph.StateExecute, graph.StateValidate} {
		if err := r.enter(ctx, state); err != nil {
			return r.fail(ctx, err)
		}
	}

	if !validationPassed {
		if _, err := r.fsm.Transition(graph.StateFailed); err != nil {
			return r.fail(ctx, err)
		}
		if _, err := r.c.store.UpdateTaskStatus(ctx, r.taskID, string(graph.StateFailed)); err != nil {
			return r.fail(ctx, err)
		}
		r.logState(ctx, graph.StateFailed, StatusFailed)
		r.c.cfg.metrics.IncrementFailures(ErrValidationFailed.Error())
		return r.result(nil)
	}

	if err := r.commit(ctx); err != nil {
		return r.fail(ctx, err)
	}
	return r.result(nil)
}

func (r *run) logState(ctx context.Context, state graph.ControllerState, status string) {
	r.logDecision(ctx, ActionControllerState, string(state), status)
}

// logDecision writes a best-effort decision row.
func (r *run) logDecision(ctx context.Context, actionType, content, status string) (int64, bool) {
	if !r.persisted {
		return 0, false
	}
	id, err := r.c.store.LogDecision(ctx, r.taskID, actionType, content, status)
	if err != nil {
		r.secondaryFailure("decision not recorded", err, "action_type", actionType)
		return 0, false
	}
	return id, true
}

func (r *run) secondaryFailure(msg string, err error, attrs ...any) {
	r.c.cfg.metrics.IncrementTraceErrors()
	args := append([]any{"task_id", r.taskID, "run_id", r.runID, "error", err}, attrs...)
	r.c.cfg.logger.Warn(msg, args...)
}
