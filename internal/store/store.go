package store

import (
	"context"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow instances
	CreateWorkflow(ctx context.Context, wf *WorkflowInstance) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowInstance, error)
	GetWorkflowByToken(ctx context.Context, token string) (*WorkflowInstance, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowInstance, error)

	// Stage execution log (append-only)
	OpenStageExecution(ctx context.Context, workflowID string, stage schema.StageName) (*StageExecution, error)
	CloseStageExecution(ctx context.Context, id string, close StageExecutionClose) error
	ListStageExecutions(ctx context.Context, workflowID string) ([]*StageExecution, error)

	// Stage results (write-once per workflow)
	SaveProfilingResult(ctx context.Context, r *schema.ProfilingResult) error
	GetProfilingResult(ctx context.Context, workflowID string) (*schema.ProfilingResult, error)
	SaveDictionaryResult(ctx context.Context, r *schema.DictionaryResult) error
	GetDictionaryResult(ctx context.Context, workflowID string) (*schema.DictionaryResult, error)
	SaveMappingResult(ctx context.Context, r *schema.MappingResult) error
	GetMappingResult(ctx context.Context, workflowID string) (*schema.MappingResult, error)

	// Enterprise data dictionary
	UpsertDictionaryEntries(ctx context.Context, entries []DictionaryEntry) error
	ListDictionaryEntries(ctx context.Context, tableName string) ([]DictionaryEntry, error)

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
