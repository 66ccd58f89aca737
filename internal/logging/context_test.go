package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", WorkflowID(ctx))
	assert.Equal(t, "", Stage(ctx))

	ctx = WithWorkflowID(ctx, "wf-123")
	ctx = WithStage(ctx, "PROFILING")

	assert.Equal(t, "wf-123", WorkflowID(ctx))
	assert.Equal(t, "PROFILING", Stage(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithStage(WithWorkflowID(context.Background(), "wf-456"), "MAPPING")
	logger.InfoContext(ctx, "stage started", slog.Int("attempt", 1))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "wf-456", record["workflow_id"])
	assert.Equal(t, "MAPPING", record["stage"])
	assert.Equal(t, "stage started", record["msg"])
	assert.Equal(t, float64(1), record["attempt"])
}

func TestCorrelationHandler_NoIDsInPlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "startup")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, hasWorkflow := record["workflow_id"]
	_, hasStage := record["stage"]
	assert.False(t, hasWorkflow)
	assert.False(t, hasStage)
}

func TestCorrelationHandler_WithAttrsPreservesInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	logger = logger.With(slog.String("component", "orchestrator"))

	ctx := WithWorkflowID(context.Background(), "wf-789")
	logger.InfoContext(ctx, "resuming")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "orchestrator", record["component"])
	assert.Equal(t, "wf-789", record["workflow_id"])
}
