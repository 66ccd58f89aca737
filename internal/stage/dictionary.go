package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mvaldes-dt/schemaflow/internal/store"
	"github.com/mvaldes-dt/schemaflow/internal/validation"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// DictionaryStage turns a profiling result into a proposed table definition
// and enriches the enterprise data dictionary. The DDL text is
// required-generation: without usable model output the stage fails.
type DictionaryStage struct{}

func NewDictionaryStage() *DictionaryStage { return &DictionaryStage{} }

func (s *DictionaryStage) Name() schema.StageName { return schema.StageDictionary }

// Execute generates and validates the DDL, applies advisory type decisions,
// and merges the profiled columns into the data dictionary.
func (s *DictionaryStage) Execute(ctx context.Context, sc *Context, input any) Result {
	var units int64

	profile, ok := input.(*schema.ProfilingResult)
	if !ok {
		return Failure(schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"dictionary expects *ProfilingResult, got %T", input).WithStage(s.Name()), units)
	}
	if len(profile.InferredSchema) == 0 {
		return Failure(schema.NewError(schema.ErrCodeValidationFailed,
			"profiling result has no columns").WithStage(s.Name()), units)
	}

	tableName := tableNameFromSourceRef(profile.SourceRef)

	result := &schema.DictionaryResult{
		WorkflowID:         sc.WorkflowID,
		ProfilingResultRef: profile.WorkflowID,
		TableName:          tableName,
		TargetSchema:       sc.TargetSchema,
		SourceColumns:      profile.InferredSchema,
		CreatedAt:          time.Now().UTC(),
	}

	// Required generation: the proposed DDL.
	ddl, err := s.generateDDL(ctx, sc, profile, tableName)
	units++
	if err != nil {
		return Failure(asPipelineError(err, schema.ErrCodeInferenceUnavailable).WithStage(s.Name()), units)
	}
	if err := validation.ValidateDDL(ddl); err != nil {
		return Failure(asPipelineError(err, schema.ErrCodeValidationFailed).WithStage(s.Name()), units)
	}
	result.ProposedDDL = ddl

	// Advisory: data type optimization suggestions.
	decisions, n, warn := s.optimizeTypes(ctx, sc, profile)
	units += n
	result.ColumnTypeDecisions = decisions
	if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	// Best-effort: merge profiled columns into the data dictionary.
	if err := s.enrichDictionary(ctx, sc, profile, tableName); err != nil {
		sc.Logger.Warn("data dictionary enrichment failed", "error", err)
		result.Warnings = append(result.Warnings, "data dictionary enrichment failed")
	} else {
		result.EnrichmentApplied = true
	}

	summary, n := s.summarize(ctx, sc, result)
	units += n
	result.Summary = summary

	if perr := saveWithRetry(ctx, s.Name(), func(c context.Context) error {
		return sc.Store.SaveDictionaryResult(c, result)
	}); perr != nil {
		return Failure(perr, units)
	}

	return Success(result, units)
}

// generateDDL asks the model for a CREATE TABLE statement covering the
// profiled columns.
func (s *DictionaryStage) generateDDL(ctx context.Context, sc *Context, profile *schema.ProfilingResult, tableName string) (string, error) {
	var colDescs []string
	sensitive := sensitiveColumnNames(profile.SensitiveColumns)
	for _, col := range profile.InferredSchema {
		desc := fmt.Sprintf("%s (%s)", col.Name, col.DataType)
		if !col.Nullable {
			desc += " NOT NULL"
		}
		colDescs = append(colDescs, desc)
	}

	prompt := fmt.Sprintf(
		"Generate a production-ready CREATE TABLE DDL statement with the following requirements:\n\n"+
			"Schema: %s\nTable name: %s\n\nColumns:\n%s\n\n"+
			"Sensitive columns (require masking policies): %s\n\n"+
			"Requirements:\n"+
			"1. Use appropriate warehouse data types\n"+
			"2. Add NOT NULL constraints where appropriate\n"+
			"3. Return only the DDL statement, no explanation",
		sc.TargetSchema, tableName, strings.Join(colDescs, "\n"), orNone(sensitive))

	text, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		return "", err
	}
	return stripCodeFences(text), nil
}

// optimizeTypes asks the model for per-column type refinements. Degrades to
// no decisions with a warning on any failure.
func (s *DictionaryStage) optimizeTypes(ctx context.Context, sc *Context, profile *schema.ProfilingResult) ([]schema.TypeDecision, int64, string) {
	statsJSON, err := json.Marshal(profile.ColumnStatistics)
	if err != nil {
		return nil, 0, ""
	}

	prompt := fmt.Sprintf(
		"Review these column definitions and statistics, and optimize data types "+
			"for storage efficiency and query performance.\n\nColumns:\n%s\n\nStatistics:\n%s\n\n"+
			"Return a JSON array of objects with keys: column_name, original_type, optimized_type, reason. "+
			"Include only columns whose type should change.",
		describeColumns(profile.InferredSchema), string(statsJSON))

	text, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		sc.Logger.Warn("type optimization degraded", "error", err)
		return nil, 1, "type optimization unavailable"
	}

	decisions, err := decodeTypeDecisions(ctx, sc, text)
	if err != nil {
		sc.Logger.Warn("type optimization response unusable", "error", err)
		return nil, 1, "type optimization response unusable"
	}
	return decisions, 1, ""
}

// decodeTypeDecisions extracts a decision array from the raw model response,
// tolerating wrapper objects via jq normalization.
func decodeTypeDecisions(ctx context.Context, sc *Context, text string) ([]schema.TypeDecision, error) {
	var doc any
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}

	// Unwrap responses shaped as {"decisions": [...]} or similar.
	if m, ok := doc.(map[string]any); ok {
		normalized, err := sc.JQ.EvaluateAll(ctx, `.decisions // .type_decisions // []`, m)
		if err != nil {
			return nil, err
		}
		if len(normalized) == 1 {
			doc = normalized[0]
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var decisions []schema.TypeDecision
	if err := json.Unmarshal(raw, &decisions); err != nil {
		return nil, fmt.Errorf("decisions do not match expected shape: %w", err)
	}
	return decisions, nil
}

// enrichDictionary merges the profiled columns into the data dictionary.
func (s *DictionaryStage) enrichDictionary(ctx context.Context, sc *Context, profile *schema.ProfilingResult, tableName string) error {
	sensitivity := make(map[string]string, len(profile.SensitiveColumns))
	for _, sens := range profile.SensitiveColumns {
		sensitivity[sens.ColumnName] = sens.Category
	}

	now := time.Now().UTC()
	entries := make([]store.DictionaryEntry, 0, len(profile.InferredSchema))
	for _, col := range profile.InferredSchema {
		category, isSensitive := sensitivity[col.Name]
		entries = append(entries, store.DictionaryEntry{
			SourceSystem:        sc.Config.SourceSystem,
			TableName:           tableName,
			ColumnName:          col.Name,
			DataType:            col.DataType,
			IsSensitive:         isSensitive,
			SensitivityCategory: category,
			ProfileWorkflowID:   profile.WorkflowID,
			UpdatedAt:           now,
		})
	}
	return sc.Store.UpsertDictionaryEntries(ctx, entries)
}

// summarize produces a short proposal summary, falling back to a
// deterministic one-liner when the model is unavailable.
func (s *DictionaryStage) summarize(ctx context.Context, sc *Context, result *schema.DictionaryResult) (string, int64) {
	prompt := fmt.Sprintf(
		"Summarize this table proposal in 2-3 sentences for a data engineer:\n\n"+
			"Table: %s.%s\nColumns: %d\nType changes suggested: %d\nDictionary enriched: %t",
		result.TargetSchema, result.TableName, len(result.SourceColumns),
		len(result.ColumnTypeDecisions), result.EnrichmentApplied)

	summary, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		return fmt.Sprintf("Proposed table %s with %d columns.",
			result.TableName, len(result.SourceColumns)), 1
	}
	return summary, 1
}

func describeColumns(cols []schema.ColumnSchema) string {
	var out []string
	for _, c := range cols {
		out = append(out, fmt.Sprintf("%s %s", c.Name, c.DataType))
	}
	return strings.Join(out, "\n")
}

func sensitiveColumnNames(cols []schema.SensitiveColumn) []string {
	var out []string
	for _, c := range cols {
		out = append(out, c.ColumnName)
	}
	return out
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

// stripCodeFences removes a surrounding markdown code fence from model output.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.Index(trimmed, "\n"); nl >= 0 {
		// Drop an optional language tag on the fence line.
		first := strings.TrimSpace(trimmed[:nl])
		if len(first) <= 10 && !strings.ContainsAny(first, " (") {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var _ Stage = (*DictionaryStage)(nil)
