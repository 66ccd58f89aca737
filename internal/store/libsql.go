package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. attempt sequencing).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflow instances ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *WorkflowInstance) error {
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_instances
		 (id, type, source_ref, target_schema, target_table, status, idempotency_token, dictionary_result_ref, started_at, error_summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, string(wf.Type), wf.SourceRef, wf.TargetSchema, nullStr(wf.TargetTable),
		string(wf.Status), nullStr(wf.IdempotencyToken), nullStr(wf.DictionaryResultRef),
		wf.StartedAt, nullStr(wf.ErrorSummary), wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow already exists: %s", err.Error()).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowInstance, error) {
	return s.getWorkflowWhere(ctx, "id = ?", id)
}

func (s *LibSQLStore) GetWorkflowByToken(ctx context.Context, token string) (*WorkflowInstance, error) {
	return s.getWorkflowWhere(ctx, "idempotency_token = ?", token)
}

const workflowColumns = `id, type, source_ref, target_schema, target_table, status, idempotency_token,
	        dictionary_result_ref, started_at, ended_at, error_summary, created_at, updated_at`

func (s *LibSQLStore) getWorkflowWhere(ctx context.Context, where string, arg any) (*WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflow_instances WHERE `+where, arg)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", fmt.Sprint(arg))
	}
	return wf, err
}

// scanWorkflow reads one workflow_instances row from a row or rows cursor.
func scanWorkflow(row interface{ Scan(dest ...any) error }) (*WorkflowInstance, error) {
	wf := &WorkflowInstance{}
	var wfType, status string
	var targetTable, token, dictRef, errorSummary sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&wf.ID, &wfType, &wf.SourceRef, &wf.TargetSchema, &targetTable, &status, &token,
		&dictRef, &wf.StartedAt, &endedAt, &errorSummary, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wf.Type = schema.WorkflowType(wfType)
	wf.Status = schema.WorkflowStatus(status)
	wf.TargetTable = targetTable.String
	wf.IdempotencyToken = token.String
	wf.DictionaryResultRef = dictRef.String
	wf.ErrorSummary = errorSummary.String
	if endedAt.Valid {
		t := endedAt.Time
		wf.EndedAt = &t
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, *update.EndedAt)
	}
	if update.ErrorSummary != nil {
		sets = append(sets, "error_summary = ?")
		args = append(args, *update.ErrorSummary)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_instances SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowInstance, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}
	q := `SELECT ` + workflowColumns + ` FROM workflow_instances WHERE ` + strings.Join(where, " AND ") + ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// The pool is capped at one connection, so no store call may run while
	// the rows cursor is open. Scan everything in this single query.
	var out []*WorkflowInstance
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// --- Stage execution log ---

func (s *LibSQLStore) ListStageExecutions(ctx context.Context, workflowID string) ([]*StageExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, stage_name, attempt, status, started_at, completed_at,
		        duration_ms, resource_units, error_message
		 FROM stage_execution_log WHERE workflow_id = ? ORDER BY started_at ASC, attempt ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StageExecution
	for rows.Next() {
		se := &StageExecution{}
		var stageName, status string
		var completedAt sql.NullTime
		var durationMs, resourceUnits sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&se.ID, &se.WorkflowID, &stageName, &se.Attempt, &status,
			&se.StartedAt, &completedAt, &durationMs, &resourceUnits, &errMsg); err != nil {
			return nil, err
		}
		se.StageName = schema.StageName(stageName)
		se.Status = schema.StageStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			se.CompletedAt = &t
		}
		se.DurationMs = durationMs.Int64
		se.ResourceUnits = resourceUnits.Int64
		se.ErrorMessage = errMsg.String
		out = append(out, se)
	}
	return out, rows.Err()
}

// --- Stage results ---

func (s *LibSQLStore) SaveProfilingResult(ctx context.Context, r *schema.ProfilingResult) error {
	inferred, err := json.Marshal(r.InferredSchema)
	if err != nil {
		return fmt.Errorf("marshal inferred_schema: %w", err)
	}
	stats, err := json.Marshal(r.ColumnStatistics)
	if err != nil {
		return fmt.Errorf("marshal column_statistics: %w", err)
	}
	sensitive, err := json.Marshal(r.SensitiveColumns)
	if err != nil {
		return fmt.Errorf("marshal sensitive_columns: %w", err)
	}
	issues, err := json.Marshal(r.QualityIssues)
	if err != nil {
		return fmt.Errorf("marshal quality_issues: %w", err)
	}
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiling_results
		 (workflow_id, source_ref, sample_size, row_count, inferred_schema, column_statistics,
		  sensitive_columns, quality_issues, synonym_suggestions, summary, warnings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET
		   row_count=excluded.row_count, inferred_schema=excluded.inferred_schema,
		   column_statistics=excluded.column_statistics, sensitive_columns=excluded.sensitive_columns,
		   quality_issues=excluded.quality_issues, synonym_suggestions=excluded.synonym_suggestions,
		   summary=excluded.summary, warnings=excluded.warnings, created_at=excluded.created_at`,
		r.WorkflowID, r.SourceRef, r.SampleSize, r.RowCount, string(inferred), string(stats),
		string(sensitive), string(issues), nullStr(r.SynonymSuggestions), nullStr(r.Summary),
		string(warnings), r.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetProfilingResult(ctx context.Context, workflowID string) (*schema.ProfilingResult, error) {
	r := &schema.ProfilingResult{}
	var inferred, stats, sensitive, issues string
	var synonyms, summary, warnings sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, source_ref, sample_size, row_count, inferred_schema, column_statistics,
		        sensitive_columns, quality_issues, synonym_suggestions, summary, warnings, created_at
		 FROM profiling_results WHERE workflow_id = ?`, workflowID,
	).Scan(&r.WorkflowID, &r.SourceRef, &r.SampleSize, &r.RowCount, &inferred, &stats,
		&sensitive, &issues, &synonyms, &summary, &warnings, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("profiling result", workflowID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inferred), &r.InferredSchema); err != nil {
		return nil, fmt.Errorf("unmarshal inferred_schema: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &r.ColumnStatistics); err != nil {
		return nil, fmt.Errorf("unmarshal column_statistics: %w", err)
	}
	if err := json.Unmarshal([]byte(sensitive), &r.SensitiveColumns); err != nil {
		return nil, fmt.Errorf("unmarshal sensitive_columns: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &r.QualityIssues); err != nil {
		return nil, fmt.Errorf("unmarshal quality_issues: %w", err)
	}
	r.SynonymSuggestions = synonyms.String
	r.Summary = summary.String
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return r, nil
}

func (s *LibSQLStore) SaveDictionaryResult(ctx context.Context, r *schema.DictionaryResult) error {
	cols, err := json.Marshal(r.SourceColumns)
	if err != nil {
		return fmt.Errorf("marshal source_columns: %w", err)
	}
	decisions, err := json.Marshal(r.ColumnTypeDecisions)
	if err != nil {
		return fmt.Errorf("marshal column_type_decisions: %w", err)
	}
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dictionary_results
		 (workflow_id, profiling_result_ref, table_name, target_schema, proposed_ddl, source_columns,
		  column_type_decisions, enrichment_applied, summary, warnings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET
		   table_name=excluded.table_name, proposed_ddl=excluded.proposed_ddl,
		   source_columns=excluded.source_columns, column_type_decisions=excluded.column_type_decisions,
		   enrichment_applied=excluded.enrichment_applied, summary=excluded.summary,
		   warnings=excluded.warnings, created_at=excluded.created_at`,
		r.WorkflowID, nullStr(r.ProfilingResultRef), r.TableName, r.TargetSchema, r.ProposedDDL,
		string(cols), string(decisions), boolToInt(r.EnrichmentApplied), nullStr(r.Summary),
		string(warnings), r.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetDictionaryResult(ctx context.Context, workflowID string) (*schema.DictionaryResult, error) {
	r := &schema.DictionaryResult{}
	var cols string
	var profRef, decisions, summary, warnings sql.NullString
	var enriched int
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, profiling_result_ref, table_name, target_schema, proposed_ddl,
		        source_columns, column_type_decisions, enrichment_applied, summary, warnings, created_at
		 FROM dictionary_results WHERE workflow_id = ?`, workflowID,
	).Scan(&r.WorkflowID, &profRef, &r.TableName, &r.TargetSchema, &r.ProposedDDL,
		&cols, &decisions, &enriched, &summary, &warnings, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("dictionary result", workflowID)
	}
	if err != nil {
		return nil, err
	}
	r.ProfilingResultRef = profRef.String
	r.EnrichmentApplied = enriched != 0
	r.Summary = summary.String
	if err := json.Unmarshal([]byte(cols), &r.SourceColumns); err != nil {
		return nil, fmt.Errorf("unmarshal source_columns: %w", err)
	}
	if decisions.Valid && decisions.String != "" {
		if err := json.Unmarshal([]byte(decisions.String), &r.ColumnTypeDecisions); err != nil {
			return nil, fmt.Errorf("unmarshal column_type_decisions: %w", err)
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return r, nil
}

func (s *LibSQLStore) SaveMappingResult(ctx context.Context, r *schema.MappingResult) error {
	mappings, err := json.Marshal(r.FieldMappings)
	if err != nil {
		return fmt.Errorf("marshal field_mappings: %w", err)
	}
	artifacts, err := json.Marshal(r.TransformArtifacts)
	if err != nil {
		return fmt.Errorf("marshal transform_artifacts: %w", err)
	}
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mapping_results
		 (workflow_id, dictionary_result_ref, target_schema, target_table, field_mappings,
		  transform_artifacts, summary, warnings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET
		   field_mappings=excluded.field_mappings, transform_artifacts=excluded.transform_artifacts,
		   summary=excluded.summary, warnings=excluded.warnings, created_at=excluded.created_at`,
		r.WorkflowID, nullStr(r.DictionaryResultRef), r.TargetSchema, r.TargetTable,
		string(mappings), string(artifacts), nullStr(r.Summary), string(warnings), r.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetMappingResult(ctx context.Context, workflowID string) (*schema.MappingResult, error) {
	r := &schema.MappingResult{}
	var mappings string
	var dictRef, artifacts, summary, warnings sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, dictionary_result_ref, target_schema, target_table, field_mappings,
		        transform_artifacts, summary, warnings, created_at
		 FROM mapping_results WHERE workflow_id = ?`, workflowID,
	).Scan(&r.WorkflowID, &dictRef, &r.TargetSchema, &r.TargetTable, &mappings,
		&artifacts, &summary, &warnings, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("mapping result", workflowID)
	}
	if err != nil {
		return nil, err
	}
	r.DictionaryResultRef = dictRef.String
	r.Summary = summary.String
	if err := json.Unmarshal([]byte(mappings), &r.FieldMappings); err != nil {
		return nil, fmt.Errorf("unmarshal field_mappings: %w", err)
	}
	if artifacts.Valid && artifacts.String != "" {
		if err := json.Unmarshal([]byte(artifacts.String), &r.TransformArtifacts); err != nil {
			return nil, fmt.Errorf("unmarshal transform_artifacts: %w", err)
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return r, nil
}

// --- Enterprise data dictionary ---

func (s *LibSQLStore) UpsertDictionaryEntries(ctx context.Context, entries []DictionaryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dictionary upsert: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_dictionary
			 (source_system, table_name, column_name, data_type, is_sensitive, sensitivity_category, profile_workflow_id, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source_system, table_name, column_name) DO UPDATE SET
			   data_type=excluded.data_type, is_sensitive=excluded.is_sensitive,
			   sensitivity_category=excluded.sensitivity_category,
			   profile_workflow_id=excluded.profile_workflow_id, updated_at=excluded.updated_at`,
			e.SourceSystem, e.TableName, e.ColumnName, e.DataType, boolToInt(e.IsSensitive),
			nullStr(e.SensitivityCategory), nullStr(e.ProfileWorkflowID), e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert dictionary entry %s.%s: %w", e.TableName, e.ColumnName, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListDictionaryEntries(ctx context.Context, tableName string) ([]DictionaryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_system, table_name, column_name, data_type, is_sensitive,
		        sensitivity_category, profile_workflow_id, updated_at
		 FROM data_dictionary WHERE table_name = ? ORDER BY column_name`, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DictionaryEntry
	for rows.Next() {
		var e DictionaryEntry
		var sensitive int
		var category, profileID sql.NullString
		if err := rows.Scan(&e.SourceSystem, &e.TableName, &e.ColumnName, &e.DataType,
			&sensitive, &category, &profileID, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.IsSensitive = sensitive != 0
		e.SensitivityCategory = category.String
		e.ProfileWorkflowID = profileID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Scheduled jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs
		 (id, name, cron_expression, source_ref, target_schema, target_table, workflow_type,
		  enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.CronExpression, job.SourceRef, job.TargetSchema,
		nullStr(job.TargetTable), string(job.WorkflowType), boolToInt(job.Enabled),
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus), job.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	sets := []string{}
	args := []any{}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	q := `SELECT id, name, cron_expression, source_ref, target_schema, target_table, workflow_type,
	             enabled, last_run_at, next_run_at, last_run_status, created_at
	      FROM scheduled_jobs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at`
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		job := &ScheduledJob{}
		var wfType string
		var targetTable, lastStatus sql.NullString
		var enabled int
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&job.ID, &job.Name, &job.CronExpression, &job.SourceRef,
			&job.TargetSchema, &targetTable, &wfType, &enabled, &lastRun, &nextRun,
			&lastStatus, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.TargetTable = targetTable.String
		job.WorkflowType = schema.WorkflowType(wfType)
		job.Enabled = enabled != 0
		job.LastRunStatus = lastStatus.String
		if lastRun.Valid {
			t := lastRun.Time
			job.LastRunAt = &t
		}
		if nextRun.Valid {
			t := nextRun.Time
			job.NextRunAt = &t
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
