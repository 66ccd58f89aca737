package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvaldes-dt/schemaflow/internal/expressions"
	"github.com/mvaldes-dt/schemaflow/internal/inference"
	"github.com/mvaldes-dt/schemaflow/internal/logging"
	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/internal/stage"
	"github.com/mvaldes-dt/schemaflow/internal/store"
	"github.com/mvaldes-dt/schemaflow/internal/validation"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// Config holds the orchestrator's tunable parameters.
type Config struct {
	// Retry bounds stage re-execution after transient failures.
	Retry RetryPolicy
	// StageTimeout caps one stage attempt. Zero disables the cap.
	StageTimeout time.Duration
	// SampleSize bounds how many rows profiling reads.
	SampleSize int
	// ConfidenceFloor marks mappings below it as requiring review.
	ConfidenceFloor float64
	// SourceSystem names the origin recorded in data dictionary entries.
	SourceSystem string
	// CompletionModel selects the model for text generation calls.
	CompletionModel string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Retry:           DefaultRetryPolicy(),
		StageTimeout:    2 * time.Minute,
		SampleSize:      10000,
		ConfidenceFloor: 0.8,
		SourceSystem:    "PROFILED_SOURCE",
	}
}

// StartRequest carries the parameters of one workflow run.
type StartRequest struct {
	SourceRef    string
	TargetSchema string
	TargetTable  string
	Type         schema.WorkflowType
	// IdempotencyToken dedupes starts: a token that already created a
	// workflow returns that workflow instead of starting a new one.
	IdempotencyToken string
	// DictionaryResultID names the dictionary result a MAPPING_ONLY
	// workflow starts from.
	DictionaryResultID string
}

// StageSummary reports one stage's final outcome within a run.
type StageSummary struct {
	StageName     schema.StageName   `json:"stage_name"`
	Status        schema.StageStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	DurationMs    int64              `json:"duration_ms"`
	ResourceUnits int64              `json:"resource_units"`
	ErrorMessage  string             `json:"error_message,omitempty"`
}

// StartResult is the terminal outcome of a workflow run.
type StartResult struct {
	WorkflowID   string                `json:"workflow_id"`
	Status       schema.WorkflowStatus `json:"status"`
	StageResults []StageSummary        `json:"stage_results"`
}

// WorkflowStatus is the status-query projection of a workflow instance.
type WorkflowStatus struct {
	WorkflowID      string                `json:"workflow_id"`
	Type            schema.WorkflowType   `json:"type"`
	Status          schema.WorkflowStatus `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         *time.Time            `json:"ended_at,omitempty"`
	DurationSeconds float64               `json:"duration_seconds"`
	SourceRef       string                `json:"source_ref"`
	TargetSchema    string                `json:"target_schema"`
	ErrorSummary    string                `json:"error_summary,omitempty"`
}

// Orchestrator sequences the pipeline stages for one workflow at a time per
// workflow id, owning all writes to that workflow's state.
type Orchestrator struct {
	store     store.Store
	inference inference.Client
	catalog   source.Catalog
	logger    *slog.Logger
	config    Config

	stages map[schema.StageName]stage.Stage

	cel       *expressions.CELEngine
	expr      *expressions.ExprEngine
	jq        *expressions.GoJQEngine
	validator *validation.MappingValidator

	mu        sync.Mutex
	running   map[string]struct{}
	cancelled map[string]struct{}
}

// NewOrchestrator wires the collaborators together.
func NewOrchestrator(st store.Store, inf inference.Client, cat source.Catalog, logger *slog.Logger, config Config) (*Orchestrator, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("create expression engine: %w", err)
	}
	validator, err := validation.NewMappingValidator()
	if err != nil {
		return nil, fmt.Errorf("create mapping validator: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:     st,
		inference: inf,
		catalog:   cat,
		logger:    logger,
		config:    config,
		stages: map[schema.StageName]stage.Stage{
			schema.StageProfiling:  stage.NewProfilingStage(),
			schema.StageDictionary: stage.NewDictionaryStage(),
			schema.StageMapping:    stage.NewMappingStage(),
		},
		cel:       cel,
		expr:      expressions.NewExprEngine(),
		jq:        expressions.NewGoJQEngine(),
		validator: validator,
		running:   make(map[string]struct{}),
		cancelled: make(map[string]struct{}),
	}, nil
}

// StartWorkflow validates the request, creates the workflow instance, and
// runs its stage sequence to a terminal status. Invalid arguments fail before
// any state is created.
func (o *Orchestrator) StartWorkflow(ctx context.Context, req StartRequest) (*StartResult, error) {
	seq, err := schema.StageSequence(req.Type)
	if err != nil {
		return nil, err
	}
	if req.SourceRef == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidArgument, "sourceRef is required")
	}
	if req.TargetSchema == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidArgument, "targetSchema is required")
	}
	if req.Type == schema.WorkflowMappingOnly && req.DictionaryResultID == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidArgument,
			"mapping-only workflows require a dictionary result id")
	}

	if req.IdempotencyToken != "" {
		existing, err := o.store.GetWorkflowByToken(ctx, req.IdempotencyToken)
		if err == nil {
			return o.summarizeRun(ctx, existing)
		}
		var perr *schema.PipelineError
		if !errors.As(err, &perr) || perr.Code != schema.ErrCodeNotFound {
			return nil, err
		}
	}

	now := time.Now().UTC()
	wf := &store.WorkflowInstance{
		ID:                  uuid.NewString(),
		Type:                req.Type,
		SourceRef:           req.SourceRef,
		TargetSchema:        req.TargetSchema,
		TargetTable:         req.TargetTable,
		Status:              schema.WorkflowStatusPending,
		IdempotencyToken:    req.IdempotencyToken,
		DictionaryResultRef: req.DictionaryResultID,
		StartedAt:           now,
	}
	if err := o.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	return o.run(ctx, wf, seq)
}

// Resume continues an interrupted workflow, skipping stages whose results are
// already persisted. Terminal workflows are never reopened.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) (*StartResult, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status.IsTerminal() {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %s is %s and cannot be resumed", workflowID, wf.Status)
	}

	seq, err := schema.StageSequence(wf.Type)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, wf, seq)
}

// Cancel requests cooperative cancellation. A running workflow fails at its
// next stage boundary; a stalled non-terminal workflow is failed immediately.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %s is already %s", workflowID, wf.Status)
	}

	o.mu.Lock()
	o.cancelled[workflowID] = struct{}{}
	_, isRunning := o.running[workflowID]
	o.mu.Unlock()

	if !isRunning {
		return o.finalize(ctx, wf, schema.WorkflowStatusFailed, "Cancelled")
	}
	return nil
}

// GetWorkflowStatus returns the status projection of a workflow.
func (o *Orchestrator) GetWorkflowStatus(ctx context.Context, workflowID string) (*WorkflowStatus, error) {
	wf, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	status := &WorkflowStatus{
		WorkflowID:   wf.ID,
		Type:         wf.Type,
		Status:       wf.Status,
		StartedAt:    wf.StartedAt,
		EndedAt:      wf.EndedAt,
		SourceRef:    wf.SourceRef,
		TargetSchema: wf.TargetSchema,
		ErrorSummary: wf.ErrorSummary,
	}
	if wf.EndedAt != nil {
		status.DurationSeconds = wf.EndedAt.Sub(wf.StartedAt).Seconds()
	} else {
		status.DurationSeconds = time.Since(wf.StartedAt).Seconds()
	}
	return status, nil
}

// run drives the stage sequence to a terminal workflow status. All state
// writes for the workflow id happen on this goroutine.
func (o *Orchestrator) run(ctx context.Context, wf *store.WorkflowInstance, seq []schema.StageName) (*StartResult, error) {
	o.mu.Lock()
	if _, busy := o.running[wf.ID]; busy {
		o.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "workflow %s is already running", wf.ID)
	}
	o.running[wf.ID] = struct{}{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, wf.ID)
		delete(o.cancelled, wf.ID)
		o.mu.Unlock()
	}()

	ctx = logging.WithWorkflowID(ctx, wf.ID)
	log := o.logger.With("workflow_id", wf.ID, "type", string(wf.Type))
	log.Info("workflow started", "source_ref", wf.SourceRef)

	if wf.Status == schema.WorkflowStatusPending {
		if err := o.transition(ctx, wf, schema.WorkflowStatusInProgress); err != nil {
			return nil, err
		}
	}

	result := &StartResult{WorkflowID: wf.ID}

	input, skip, err := o.initialInput(ctx, wf)
	if err != nil {
		if ferr := o.finalize(ctx, wf, schema.WorkflowStatusFailed, err.Error()); ferr != nil {
			log.Error("workflow finalization failed", "error", ferr)
		}
		result.Status = schema.WorkflowStatusFailed
		return result, nil
	}

	for _, name := range seq {
		if o.isCancelled(wf.ID) {
			log.Info("workflow cancelled at stage boundary", "stage", string(name))
			if err := o.finalize(ctx, wf, schema.WorkflowStatusFailed, "Cancelled"); err != nil {
				return nil, err
			}
			result.Status = schema.WorkflowStatusFailed
			return result, nil
		}

		if payload, done := skip[name]; done {
			log.Info("stage result already persisted, skipping", "stage", string(name))
			input = payload
			continue
		}

		summary, payload := o.runStage(ctx, wf, name, input)
		result.StageResults = append(result.StageResults, summary)

		if summary.Status != schema.StageStatusSucceeded {
			errSummary := fmt.Sprintf("%s: %s", name, summary.ErrorMessage)
			if err := o.finalize(ctx, wf, schema.WorkflowStatusFailed, errSummary); err != nil {
				return nil, err
			}
			result.Status = schema.WorkflowStatusFailed
			return result, nil
		}
		input = payload
	}

	if err := o.finalize(ctx, wf, schema.WorkflowStatusCompleted, ""); err != nil {
		return nil, err
	}
	result.Status = schema.WorkflowStatusCompleted
	log.Info("workflow completed")
	return result, nil
}

// runStage executes one stage with the bounded retry policy. Every attempt
// opens and closes its own append-only execution record.
func (o *Orchestrator) runStage(ctx context.Context, wf *store.WorkflowInstance, name schema.StageName, input any) (StageSummary, any) {
	st := o.stages[name]
	sctx := o.stageContext(wf)
	log := o.logger.With("workflow_id", wf.ID, "stage", string(name))

	summary := StageSummary{StageName: name, Status: schema.StageStatusFailed}

	for attempt := 0; attempt < o.config.Retry.MaxAttempts; attempt++ {
		summary.Attempts = attempt + 1

		rec, err := o.store.OpenStageExecution(ctx, wf.ID, name)
		if err != nil {
			summary.ErrorMessage = fmt.Sprintf("cannot open execution record: %v", err)
			return summary, nil
		}

		attemptCtx := logging.WithStage(ctx, string(name))
		cancel := func() {}
		if o.config.StageTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(attemptCtx, o.config.StageTimeout)
		}

		started := time.Now()
		res := st.Execute(attemptCtx, sctx, input)
		cancel()
		durationMs := time.Since(started).Milliseconds()

		closeStatus := schema.StageStatusSucceeded
		errMsg := ""
		if !res.Succeeded() {
			closeStatus = schema.StageStatusFailed
			errMsg = res.Err.Error()
		}
		if err := o.store.CloseStageExecution(ctx, rec.ID, store.StageExecutionClose{
			Status:        closeStatus,
			CompletedAt:   time.Now().UTC(),
			DurationMs:    durationMs,
			ResourceUnits: res.ResourceUnits,
			ErrorMessage:  errMsg,
		}); err != nil {
			log.Error("cannot close execution record", "error", err)
		}

		summary.DurationMs += durationMs
		summary.ResourceUnits += res.ResourceUnits

		if res.Succeeded() {
			summary.Status = schema.StageStatusSucceeded
			summary.ErrorMessage = ""
			log.Info("stage succeeded", "attempt", attempt+1, "duration_ms", durationMs)
			return summary, res.Payload
		}

		summary.ErrorMessage = errMsg
		log.Warn("stage attempt failed", "attempt", attempt+1, "error", errMsg)

		if !IsRetryableError(res.Err) || o.isCancelled(wf.ID) {
			return summary, nil
		}
		if attempt+1 < o.config.Retry.MaxAttempts {
			delay := ComputeBackoff(o.config.Retry, attempt)
			if err := WaitForBackoff(ctx, delay); err != nil {
				summary.ErrorMessage = "cancelled during backoff"
				return summary, nil
			}
		}
	}

	summary.ErrorMessage = fmt.Sprintf("retry attempts exhausted: %s", summary.ErrorMessage)
	return summary, nil
}

// initialInput builds the first stage's input. For resumed workflows it also
// maps already-persisted results to the stages that can be skipped, mapping
// included: a stage whose result row exists is never re-executed.
func (o *Orchestrator) initialInput(ctx context.Context, wf *store.WorkflowInstance) (any, map[schema.StageName]any, error) {
	skip := make(map[schema.StageName]any)
	if mapping, err := o.store.GetMappingResult(ctx, wf.ID); err == nil {
		skip[schema.StageMapping] = mapping
	}

	if wf.Type == schema.WorkflowMappingOnly {
		// The source workflow's dictionary result ref is persisted on the
		// row, so a resumed run reloads the same input.
		dict, err := o.store.GetDictionaryResult(ctx, wf.DictionaryResultRef)
		if err != nil {
			return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidArgument,
				"dictionary result %s not found", wf.DictionaryResultRef).WithCause(err)
		}
		return dict, skip, nil
	}

	if profile, err := o.store.GetProfilingResult(ctx, wf.ID); err == nil {
		skip[schema.StageProfiling] = profile
	}
	if dict, err := o.store.GetDictionaryResult(ctx, wf.ID); err == nil {
		skip[schema.StageDictionary] = dict
	}

	return stage.ProfilingInput{SourceRef: wf.SourceRef, SampleSize: o.config.SampleSize}, skip, nil
}

func (o *Orchestrator) stageContext(wf *store.WorkflowInstance) *stage.Context {
	return &stage.Context{
		WorkflowID:   wf.ID,
		WorkflowType: wf.Type,
		SourceRef:    wf.SourceRef,
		TargetSchema: wf.TargetSchema,
		TargetTable:  wf.TargetTable,
		Inference:    o.inference,
		Catalog:      o.catalog,
		Store:        o.store,
		Logger:       o.logger.With("workflow_id", wf.ID),
		CEL:          o.cel,
		Expr:         o.expr,
		JQ:           o.jq,
		Validator:    o.validator,
		Config: stage.Config{
			SampleSize:      o.config.SampleSize,
			ConfidenceFloor: o.config.ConfidenceFloor,
			SourceSystem:    o.config.SourceSystem,
			CompletionModel: o.config.CompletionModel,
		},
	}
}

// transition moves the workflow to a new status after validating the edge.
func (o *Orchestrator) transition(ctx context.Context, wf *store.WorkflowInstance, to schema.WorkflowStatus) error {
	if err := schema.ValidateWorkflowTransition(wf.Status, to); err != nil {
		return err
	}
	if err := o.store.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Status: &to}); err != nil {
		return err
	}
	wf.Status = to
	return nil
}

// finalize moves the workflow to a terminal status with its end timestamp.
func (o *Orchestrator) finalize(ctx context.Context, wf *store.WorkflowInstance, to schema.WorkflowStatus, errorSummary string) error {
	if err := schema.ValidateWorkflowTransition(wf.Status, to); err != nil {
		return err
	}
	now := time.Now().UTC()
	update := store.WorkflowUpdate{Status: &to, EndedAt: &now}
	if errorSummary != "" {
		update.ErrorSummary = &errorSummary
	}
	if err := o.store.UpdateWorkflow(ctx, wf.ID, update); err != nil {
		return err
	}
	wf.Status = to
	return nil
}

func (o *Orchestrator) isCancelled(workflowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cancelled[workflowID]
	return ok
}

// summarizeRun rebuilds a StartResult for an existing workflow from its
// execution log, used when an idempotency token replays a start.
func (o *Orchestrator) summarizeRun(ctx context.Context, wf *store.WorkflowInstance) (*StartResult, error) {
	execs, err := o.store.ListStageExecutions(ctx, wf.ID)
	if err != nil {
		return nil, err
	}

	byStage := make(map[schema.StageName]*StageSummary)
	var order []schema.StageName
	for _, e := range execs {
		s, ok := byStage[e.StageName]
		if !ok {
			s = &StageSummary{StageName: e.StageName}
			byStage[e.StageName] = s
			order = append(order, e.StageName)
		}
		s.Attempts++
		s.DurationMs += e.DurationMs
		s.ResourceUnits += e.ResourceUnits
		s.Status = e.Status
		s.ErrorMessage = e.ErrorMessage
	}

	result := &StartResult{WorkflowID: wf.ID, Status: wf.Status}
	for _, name := range order {
		result.StageResults = append(result.StageResults, *byStage[name])
	}
	return result, nil
}
