package stage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mvaldes-dt/schemaflow/internal/expressions"
	"github.com/mvaldes-dt/schemaflow/internal/inference"
	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/internal/store"
	"github.com/mvaldes-dt/schemaflow/internal/validation"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// Context carries the collaborators and workflow parameters a stage needs.
// Stages never mutate workflow state directly; they write only their own
// result records through the store.
type Context struct {
	WorkflowID   string
	WorkflowType schema.WorkflowType
	SourceRef    string
	TargetSchema string
	TargetTable  string

	Inference inference.Client
	Catalog   source.Catalog
	Store     store.Store
	Logger    *slog.Logger

	CEL       *expressions.CELEngine
	Expr      *expressions.ExprEngine
	JQ        *expressions.GoJQEngine
	Validator *validation.MappingValidator

	Config Config
}

// Config holds the tunable stage parameters.
type Config struct {
	// SampleSize bounds how many rows profiling reads from the source.
	SampleSize int
	// ConfidenceFloor marks mappings below it as requiring review.
	ConfidenceFloor float64
	// SourceSystem names the origin recorded in data dictionary entries.
	SourceSystem string
	// CompletionModel selects the model for text generation calls; empty
	// means the client default.
	CompletionModel string
}

// Result is the outcome of one stage attempt. Exactly one of Payload or Err
// is set. ResourceUnits counts the model calls the attempt consumed,
// including calls made before a failure.
type Result struct {
	Payload       any
	Err           *schema.PipelineError
	ResourceUnits int64
}

// Success builds a successful result carrying the stage payload.
func Success(payload any, resourceUnits int64) Result {
	return Result{Payload: payload, ResourceUnits: resourceUnits}
}

// Failure builds a failed result. Retryability is carried by the error code.
func Failure(err *schema.PipelineError, resourceUnits int64) Result {
	return Result{Err: err, ResourceUnits: resourceUnits}
}

// Succeeded reports whether the attempt produced a payload.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Stage is the uniform unit of pipeline work. Execute must be safe to
// re-invoke with the same input: re-running overwrites the stage's own result
// record and never corrupts a prior attempt's closed execution record.
type Stage interface {
	Name() schema.StageName
	Execute(ctx context.Context, sc *Context, input any) Result
}

// saveWithRetry writes a result record, retrying once on failure before
// reporting PERSISTENCE_FAILED.
func saveWithRetry(ctx context.Context, stageName schema.StageName, save func(context.Context) error) *schema.PipelineError {
	if err := save(ctx); err != nil {
		if err := save(ctx); err != nil {
			return schema.NewError(schema.ErrCodePersistenceFailed,
				"result write failed after retry").WithStage(stageName).WithCause(err)
		}
	}
	return nil
}

// asPipelineError normalizes any error into a PipelineError with the given
// fallback code.
func asPipelineError(err error, fallbackCode string) *schema.PipelineError {
	var perr *schema.PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	return schema.NewError(fallbackCode, err.Error()).WithCause(err)
}
