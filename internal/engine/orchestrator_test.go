package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/internal/store"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// fakeInference scripts model behavior per call site, routed by prompt text.
type fakeInference struct {
	mu sync.Mutex

	classifyErr error
	completeErr error

	ddl          string
	ddlFailures  int // fail this many DDL prompts with a retryable error
	mappingJSON  string
	mappingErr   error
	detectEmails bool
}

func (f *fakeInference) Classify(ctx context.Context, text string, categories []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.classifyErr != nil {
		return "", f.classifyErr
	}
	cats := strings.Join(categories, ",")
	if strings.Contains(cats, "NOT_PII") {
		if f.detectEmails && strings.Contains(text, "@") {
			return "EMAIL", nil
		}
		return "", nil
	}
	return "", nil
}

func (f *fakeInference) Complete(ctx context.Context, model, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}

	switch {
	case strings.Contains(prompt, "CREATE TABLE DDL"):
		if f.ddlFailures > 0 {
			f.ddlFailures--
			return "", schema.NewError(schema.ErrCodeInferenceUnavailable, "provider down")
		}
		return f.ddl, nil
	case strings.Contains(prompt, "optimize data types"):
		return "[]", nil
	case strings.Contains(prompt, "field-level mappings"),
		strings.Contains(prompt, "target column mappings"):
		if f.mappingErr != nil {
			return "", f.mappingErr
		}
		return f.mappingJSON, nil
	default:
		return "Looks healthy overall.", nil
	}
}

func (f *fakeInference) Extract(ctx context.Context, text string, questions []string) ([]string, error) {
	return make([]string, len(questions)), nil
}

func healthyFake() *fakeInference {
	return &fakeInference{
		detectEmails: true,
		ddl:          "CREATE TABLE CUSTOMERS (CUST_ID NUMBER NOT NULL, CUST_NAME VARCHAR, EMAIL VARCHAR)",
		mappingJSON: `[
			{"source_column": "CUST_ID", "target_column": "customer_id", "source_type": "NUMBER", "target_type": "INTEGER", "transform_kind": "TYPE_CAST", "transform_expr": "int(CUST_ID)", "confidence": 0.97},
			{"source_column": "CUST_NAME", "target_column": "customer_name", "source_type": "VARCHAR", "target_type": "VARCHAR", "transform_kind": "DIRECT", "confidence": 0.92},
			{"source_column": "EMAIL", "target_column": "email_address", "source_type": "VARCHAR", "target_type": "VARCHAR", "transform_kind": "DIRECT", "confidence": 0.6}
		]`,
	}
}

const customersCSV = "CUST_ID,CUST_NAME,EMAIL\n" +
	"1,Alice,alice@example.com\n" +
	"2,Bob,bob@example.com\n" +
	"3,Carol,carol@example.com\n" +
	"4,Dan,\n"

const targetCatalogJSON = `{
	"ANALYTICS": [
		{"table_name": "DIM_CUSTOMER", "columns": [
			{"name": "customer_id", "data_type": "INTEGER", "nullable": false},
			{"name": "customer_name", "data_type": "VARCHAR", "nullable": true},
			{"name": "email_address", "data_type": "VARCHAR", "nullable": true}
		]}
	]
}`

type harness struct {
	store *store.LibSQLStore
	orch  *Orchestrator
	fake  *fakeInference
}

func newHarness(t *testing.T, fake *fakeInference) *harness {
	t.Helper()

	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "wf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	stageDir := t.TempDir()
	writeFile(t, stageDir, "customers.csv", customersCSV)
	writeFile(t, stageDir, "catalog.json", targetCatalogJSON)

	catalog, err := source.NewLocalCatalog(stageDir)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	cfg.SampleSize = 100

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := NewOrchestrator(st, fake, catalog, logger, cfg)
	require.NoError(t, err)

	return &harness{store: st, orch: orch, fake: fake}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func startReq() StartRequest {
	return StartRequest{
		SourceRef:    "@stage/customers.csv",
		TargetSchema: "ANALYTICS",
		TargetTable:  "DIM_CUSTOMER",
		Type:         schema.WorkflowFullOnboarding,
	}
}

// --- Full onboarding ---

func TestStartWorkflow_FullOnboarding(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)
	require.Len(t, result.StageResults, 3)

	for i, name := range []schema.StageName{schema.StageProfiling, schema.StageDictionary, schema.StageMapping} {
		assert.Equal(t, name, result.StageResults[i].StageName)
		assert.Equal(t, schema.StageStatusSucceeded, result.StageResults[i].Status)
		assert.Equal(t, 1, result.StageResults[i].Attempts)
	}

	// All three result records are persisted.
	profile, err := h.store.GetProfilingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), profile.RowCount)
	require.Len(t, profile.InferredSchema, 3)
	require.NotEmpty(t, profile.SensitiveColumns)
	assert.Equal(t, "EMAIL", profile.SensitiveColumns[0].Category)
	assert.Equal(t, "ali***", profile.SensitiveColumns[0].MaskedSample)

	dict, err := h.store.GetDictionaryResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, dict.ProposedDDL, "CREATE TABLE")
	assert.True(t, dict.EnrichmentApplied)

	mapping, err := h.store.GetMappingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "DIM_CUSTOMER", mapping.TargetTable)
	require.Len(t, mapping.FieldMappings, 3)

	// The low-confidence mapping is flagged, not dropped.
	var email schema.FieldMapping
	for _, m := range mapping.FieldMappings {
		if m.SourceColumn == "EMAIL" {
			email = m
		}
	}
	assert.True(t, email.RequiresReview)
	assert.NotEmpty(t, mapping.TransformArtifacts)

	// One execution record per stage, all closed SUCCEEDED.
	execs, err := h.store.ListStageExecutions(ctx, result.WorkflowID)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	for _, e := range execs {
		assert.Equal(t, schema.StageStatusSucceeded, e.Status)
		assert.NotNil(t, e.CompletedAt)
	}

	// The workflow row is terminal with an end timestamp.
	wf, err := h.store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, wf.Status)
	assert.NotNil(t, wf.EndedAt)
	assert.Empty(t, wf.ErrorSummary)
}

func TestStartWorkflow_ProfilingOnly(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	req := startReq()
	req.Type = schema.WorkflowProfilingOnly
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)
	require.Len(t, result.StageResults, 1)
	assert.Equal(t, schema.StageProfiling, result.StageResults[0].StageName)

	_, err = h.store.GetProfilingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	_, err = h.store.GetDictionaryResult(ctx, result.WorkflowID)
	require.Error(t, err)
	_, err = h.store.GetMappingResult(ctx, result.WorkflowID)
	require.Error(t, err)
}

// --- Degraded inference ---

func TestProfilingCompletesWhenInferenceDown(t *testing.T) {
	fake := healthyFake()
	fake.classifyErr = schema.NewError(schema.ErrCodeInferenceUnavailable, "provider down")
	fake.completeErr = schema.NewError(schema.ErrCodeInferenceUnavailable, "provider down")
	h := newHarness(t, fake)
	ctx := context.Background()

	req := startReq()
	req.Type = schema.WorkflowProfilingOnly
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)

	profile, err := h.store.GetProfilingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Empty(t, profile.SensitiveColumns)
	assert.NotEmpty(t, profile.Warnings)
	assert.Contains(t, profile.Summary, "Profiling completed")
	// Deterministic profiling output is unaffected.
	assert.Len(t, profile.ColumnStatistics, 3)
}

func TestMappingFallsBackToNameMatching(t *testing.T) {
	fake := healthyFake()
	fake.mappingErr = schema.NewError(schema.ErrCodeInferenceUnavailable, "provider down")
	h := newHarness(t, fake)
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)

	mapping, err := h.store.GetMappingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	require.Len(t, mapping.FieldMappings, 3)
	assert.NotEmpty(t, mapping.Warnings)

	// No name matches between CUST_* columns and the customer_* targets, so
	// every mapping is a low-confidence suggestion flagged for review.
	for _, m := range mapping.FieldMappings {
		assert.InDelta(t, 0.7, m.Confidence, 0.001, m.SourceColumn)
		assert.True(t, m.RequiresReview, m.SourceColumn)
	}
}

// --- Failure paths ---

func TestDictionaryFailsOnBadDDL(t *testing.T) {
	fake := healthyFake()
	fake.ddl = "DROP TABLE CUSTOMERS"
	h := newHarness(t, fake)
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, result.Status)

	// Profiling succeeded, dictionary failed without retry, mapping never ran.
	require.Len(t, result.StageResults, 2)
	assert.Equal(t, schema.StageStatusSucceeded, result.StageResults[0].Status)
	assert.Equal(t, schema.StageStatusFailed, result.StageResults[1].Status)
	assert.Equal(t, 1, result.StageResults[1].Attempts)

	wf, err := h.store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, wf.ErrorSummary, "DICTIONARY")

	_, err = h.store.GetDictionaryResult(ctx, result.WorkflowID)
	require.Error(t, err)
	_, err = h.store.GetMappingResult(ctx, result.WorkflowID)
	require.Error(t, err)
}

func TestDictionaryRetriesTransientFailures(t *testing.T) {
	fake := healthyFake()
	fake.ddlFailures = 2
	h := newHarness(t, fake)
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)

	var dict StageSummary
	for _, s := range result.StageResults {
		if s.StageName == schema.StageDictionary {
			dict = s
		}
	}
	assert.Equal(t, 3, dict.Attempts)

	// Every attempt left its own closed execution record.
	execs, err := h.store.ListStageExecutions(ctx, result.WorkflowID)
	require.NoError(t, err)
	var dictExecs []*store.StageExecution
	for _, e := range execs {
		if e.StageName == schema.StageDictionary {
			dictExecs = append(dictExecs, e)
		}
	}
	require.Len(t, dictExecs, 3)
	assert.Equal(t, schema.StageStatusFailed, dictExecs[0].Status)
	assert.Equal(t, schema.StageStatusFailed, dictExecs[1].Status)
	assert.Equal(t, schema.StageStatusSucceeded, dictExecs[2].Status)
}

func TestDictionaryRetryExhaustion(t *testing.T) {
	fake := healthyFake()
	fake.ddlFailures = 10
	h := newHarness(t, fake)
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, result.Status)

	wf, err := h.store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, wf.ErrorSummary, "retry attempts exhausted")
}

func TestProfilingFailsOnMissingSource(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	req := startReq()
	req.SourceRef = "@stage/absent.csv"
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, result.Status)

	// SOURCE_UNAVAILABLE is not retried.
	require.Len(t, result.StageResults, 1)
	assert.Equal(t, 1, result.StageResults[0].Attempts)
}

// --- Argument validation ---

func TestStartWorkflow_InvalidArgumentsCreateNoState(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	cases := []StartRequest{
		{TargetSchema: "ANALYTICS", Type: schema.WorkflowFullOnboarding},
		{SourceRef: "@stage/customers.csv", Type: schema.WorkflowFullOnboarding},
		{SourceRef: "@stage/customers.csv", TargetSchema: "ANALYTICS", Type: schema.WorkflowType("NOPE")},
		{SourceRef: "@stage/customers.csv", TargetSchema: "ANALYTICS", Type: schema.WorkflowMappingOnly},
	}
	for _, req := range cases {
		_, err := h.orch.StartWorkflow(ctx, req)
		require.Error(t, err)

		var pe *schema.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, schema.ErrCodeInvalidArgument, pe.Code)
	}

	workflows, err := h.store.ListWorkflows(ctx, store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

// --- Idempotency ---

func TestStartWorkflow_IdempotencyTokenReplays(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	req := startReq()
	req.IdempotencyToken = "load-2026-08-28"
	first, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, first.Status)

	second, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.WorkflowID, second.WorkflowID)
	assert.Equal(t, schema.WorkflowStatusCompleted, second.Status)
	assert.Len(t, second.StageResults, 3)

	workflows, err := h.store.ListWorkflows(ctx, store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, workflows, 1)
}

// --- Mapping-only ---

func TestStartWorkflow_MappingOnly(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	full, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	require.Equal(t, schema.WorkflowStatusCompleted, full.Status)

	req := startReq()
	req.Type = schema.WorkflowMappingOnly
	req.DictionaryResultID = full.WorkflowID
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)
	require.Len(t, result.StageResults, 1)
	assert.Equal(t, schema.StageMapping, result.StageResults[0].StageName)

	mapping, err := h.store.GetMappingResult(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, full.WorkflowID, mapping.DictionaryResultRef)
}

func TestStartWorkflow_MappingOnlyUnknownDictionary(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	req := startReq()
	req.Type = schema.WorkflowMappingOnly
	req.DictionaryResultID = uuid.NewString()
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, result.Status)

	wf, err := h.store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, wf.ErrorSummary, "dictionary result")
}

// --- Cancel and resume ---

func TestCancel_PendingWorkflow(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	wf := &store.WorkflowInstance{
		ID:           uuid.NewString(),
		Type:         schema.WorkflowFullOnboarding,
		SourceRef:    "@stage/customers.csv",
		TargetSchema: "ANALYTICS",
		Status:       schema.WorkflowStatusPending,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	require.NoError(t, h.orch.Cancel(ctx, wf.ID))

	got, err := h.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFailed, got.Status)
	assert.Equal(t, "Cancelled", got.ErrorSummary)

	// Cancelling a terminal workflow is a conflict.
	err = h.orch.Cancel(ctx, wf.ID)
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeConflict, pe.Code)
}

func TestCancel_UnknownWorkflow(t *testing.T) {
	h := newHarness(t, healthyFake())

	err := h.orch.Cancel(context.Background(), "missing")
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeNotFound, pe.Code)
}

func TestResume_SkipsPersistedStages(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	wf := &store.WorkflowInstance{
		ID:           uuid.NewString(),
		Type:         schema.WorkflowFullOnboarding,
		SourceRef:    "@stage/customers.csv",
		TargetSchema: "ANALYTICS",
		TargetTable:  "DIM_CUSTOMER",
		Status:       schema.WorkflowStatusPending,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	// Simulate an interrupted run that finished profiling and dictionary.
	require.NoError(t, h.store.SaveProfilingResult(ctx, &schema.ProfilingResult{
		WorkflowID: wf.ID,
		SourceRef:  wf.SourceRef,
		InferredSchema: []schema.ColumnSchema{
			{Name: "CUST_ID", DataType: "NUMBER"},
		},
	}))
	require.NoError(t, h.store.SaveDictionaryResult(ctx, &schema.DictionaryResult{
		WorkflowID:  wf.ID,
		TableName:   "CUSTOMERS",
		ProposedDDL: "CREATE TABLE CUSTOMERS (CUST_ID NUMBER)",
		SourceColumns: []schema.ColumnSchema{
			{Name: "CUST_ID", DataType: "NUMBER"},
		},
	}))

	result, err := h.orch.Resume(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)

	// Only the mapping stage actually ran.
	require.Len(t, result.StageResults, 1)
	assert.Equal(t, schema.StageMapping, result.StageResults[0].StageName)

	_, err = h.store.GetMappingResult(ctx, wf.ID)
	require.NoError(t, err)
}

func TestResume_AllResultsPersistedFinalizesWithoutRerun(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	wf := &store.WorkflowInstance{
		ID:           uuid.NewString(),
		Type:         schema.WorkflowFullOnboarding,
		SourceRef:    "@stage/customers.csv",
		TargetSchema: "ANALYTICS",
		TargetTable:  "DIM_CUSTOMER",
		Status:       schema.WorkflowStatusPending,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	inProgress := schema.WorkflowStatusInProgress
	require.NoError(t, h.store.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Status: &inProgress}))

	// Interrupted after the last stage's result was written but before the
	// terminal transition.
	require.NoError(t, h.store.SaveProfilingResult(ctx, &schema.ProfilingResult{
		WorkflowID: wf.ID,
		SourceRef:  wf.SourceRef,
	}))
	require.NoError(t, h.store.SaveDictionaryResult(ctx, &schema.DictionaryResult{
		WorkflowID:  wf.ID,
		TableName:   "CUSTOMERS",
		ProposedDDL: "CREATE TABLE CUSTOMERS (CUST_ID NUMBER)",
	}))
	require.NoError(t, h.store.SaveMappingResult(ctx, &schema.MappingResult{
		WorkflowID:   wf.ID,
		TargetSchema: "ANALYTICS",
		TargetTable:  "DIM_CUSTOMER",
		FieldMappings: []schema.FieldMapping{
			{SourceColumn: "CUST_ID", TargetColumn: "customer_id", TransformKind: "DIRECT", Confidence: 0.95},
		},
	}))

	result, err := h.orch.Resume(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)
	assert.Empty(t, result.StageResults)

	// No stage was re-executed for work that was already persisted.
	execs, err := h.store.ListStageExecutions(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestResume_MappingOnlyReloadsDictionaryRef(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	full, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	require.Equal(t, schema.WorkflowStatusCompleted, full.Status)

	// A mapping-only run interrupted before its stage ran. The dictionary
	// result it starts from belongs to the source workflow, so the ref on
	// the row is what resume must reload.
	wf := &store.WorkflowInstance{
		ID:                  uuid.NewString(),
		Type:                schema.WorkflowMappingOnly,
		SourceRef:           "@stage/customers.csv",
		TargetSchema:        "ANALYTICS",
		TargetTable:         "DIM_CUSTOMER",
		Status:              schema.WorkflowStatusPending,
		DictionaryResultRef: full.WorkflowID,
		StartedAt:           time.Now().UTC(),
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	inProgress := schema.WorkflowStatusInProgress
	require.NoError(t, h.store.UpdateWorkflow(ctx, wf.ID, store.WorkflowUpdate{Status: &inProgress}))

	result, err := h.orch.Resume(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, result.Status)
	require.Len(t, result.StageResults, 1)
	assert.Equal(t, schema.StageMapping, result.StageResults[0].StageName)

	mapping, err := h.store.GetMappingResult(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, full.WorkflowID, mapping.DictionaryResultRef)
}

func TestStartWorkflow_MappingOnlyPersistsDictionaryRef(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	full, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)

	req := startReq()
	req.Type = schema.WorkflowMappingOnly
	req.DictionaryResultID = full.WorkflowID
	result, err := h.orch.StartWorkflow(ctx, req)
	require.NoError(t, err)

	wf, err := h.store.GetWorkflow(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, full.WorkflowID, wf.DictionaryResultRef)
}

func TestResume_TerminalWorkflowRejected(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)
	require.Equal(t, schema.WorkflowStatusCompleted, result.Status)

	_, err = h.orch.Resume(ctx, result.WorkflowID)
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeConflict, pe.Code)
}

// --- Status ---

func TestGetWorkflowStatus(t *testing.T) {
	h := newHarness(t, healthyFake())
	ctx := context.Background()

	result, err := h.orch.StartWorkflow(ctx, startReq())
	require.NoError(t, err)

	status, err := h.orch.GetWorkflowStatus(ctx, result.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, status.Status)
	assert.Equal(t, "@stage/customers.csv", status.SourceRef)
	assert.NotNil(t, status.EndedAt)
	assert.GreaterOrEqual(t, status.DurationSeconds, 0.0)
}
