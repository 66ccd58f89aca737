package store

import (
	"time"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// WorkflowInstance is the persisted representation of one onboarding run.
type WorkflowInstance struct {
	ID               string                `json:"id"`
	Type             schema.WorkflowType   `json:"type"`
	SourceRef        string                `json:"source_ref"`
	TargetSchema     string                `json:"target_schema"`
	TargetTable      string                `json:"target_table,omitempty"`
	Status           schema.WorkflowStatus `json:"status"`
	IdempotencyToken string                `json:"idempotency_token,omitempty"`
	// DictionaryResultRef names the dictionary result a mapping-only run
	// starts from. Persisted so an interrupted run can be resumed.
	DictionaryResultRef string     `json:"dictionary_result_ref,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	ErrorSummary        string     `json:"error_summary,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// StageExecution is one immutable attempt of one stage. Rows are append-only:
// a retry opens a new row, nothing is ever rewritten after close.
type StageExecution struct {
	ID            string             `json:"id"`
	WorkflowID    string             `json:"workflow_id"`
	StageName     schema.StageName   `json:"stage_name"`
	Attempt       int                `json:"attempt"`
	Status        schema.StageStatus `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	DurationMs    int64              `json:"duration_ms,omitempty"`
	ResourceUnits int64              `json:"resource_units,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
}

// DictionaryEntry is one column record in the enterprise data dictionary.
type DictionaryEntry struct {
	SourceSystem        string    `json:"source_system"`
	TableName           string    `json:"table_name"`
	ColumnName          string    `json:"column_name"`
	DataType            string    `json:"data_type"`
	IsSensitive         bool      `json:"is_sensitive"`
	SensitivityCategory string    `json:"sensitivity_category,omitempty"`
	ProfileWorkflowID   string    `json:"profile_workflow_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ScheduledJob is a cron-triggered recurring onboarding run.
type ScheduledJob struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	CronExpression string              `json:"cron_expression"`
	SourceRef      string              `json:"source_ref"`
	TargetSchema   string              `json:"target_schema"`
	TargetTable    string              `json:"target_table,omitempty"`
	WorkflowType   schema.WorkflowType `json:"workflow_type"`
	Enabled        bool                `json:"enabled"`
	LastRunAt      *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time          `json:"next_run_at,omitempty"`
	LastRunStatus  string              `json:"last_run_status,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowUpdate specifies the mutable fields of a workflow instance.
type WorkflowUpdate struct {
	Status       *schema.WorkflowStatus `json:"status,omitempty"`
	EndedAt      *time.Time             `json:"ended_at,omitempty"`
	ErrorSummary *string                `json:"error_summary,omitempty"`
}

// WorkflowFilter specifies criteria for listing workflow instances.
type WorkflowFilter struct {
	Status *schema.WorkflowStatus `json:"status,omitempty"`
	Type   *schema.WorkflowType   `json:"type,omitempty"`
	Since  *time.Time             `json:"since,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// StageExecutionClose carries the fields written when an attempt closes.
type StageExecutionClose struct {
	Status        schema.StageStatus
	CompletedAt   time.Time
	DurationMs    int64
	ResourceUnits int64
	ErrorMessage  string
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool `json:"enabled,omitempty"`
	Limit   int   `json:"limit,omitempty"`
}
