package stage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// ProfilingInput carries the initial workflow parameters into the first stage.
type ProfilingInput struct {
	SourceRef  string
	SampleSize int
}

var piiCategories = []string{
	"SSN", "EMAIL", "PHONE", "CREDIT_CARD", "ADDRESS",
	"NAME", "DATE_OF_BIRTH", "PASSPORT", "NOT_PII",
}

var phiCategories = []string{
	"MEDICAL_RECORD_NUMBER", "HEALTH_PLAN", "DIAGNOSIS",
	"PRESCRIPTION", "LAB_RESULT", "NOT_PHI",
}

// qualityRule pairs a CEL predicate with the issue it raises. Rules see three
// variables: column (name, data_type, nullable), stats (per-column numbers),
// and table (row_count, sample_size).
type qualityRule struct {
	IssueType  string
	Severity   string
	Expression string
	Describe   func(st schema.ColumnStatistics) string
}

var qualityRules = []qualityRule{
	{
		IssueType:  "HIGH_NULL_PERCENTAGE",
		Severity:   "WARNING",
		Expression: `stats.null_percent > 50.0`,
		Describe: func(st schema.ColumnStatistics) string {
			return fmt.Sprintf("Column has %.1f%% null values", st.NullPercent)
		},
	},
	{
		IssueType:  "LOW_CARDINALITY",
		Severity:   "INFO",
		Expression: `stats.cardinality == "LOW" && stats.distinct_count > 0`,
		Describe: func(st schema.ColumnStatistics) string {
			return fmt.Sprintf("Column has only %d distinct values", st.DistinctCount)
		},
	},
	{
		IssueType:  "ALL_NULLS",
		Severity:   "ERROR",
		Expression: `stats.null_count == table.sample_size && table.sample_size > 0`,
		Describe: func(st schema.ColumnStatistics) string {
			return "Column contains only null values"
		},
	},
}

// ProfilingStage inspects the source, computes per-column statistics and
// quality issues deterministically, and enriches the result with advisory
// model output (sensitivity labels, synonym suggestions, a summary).
type ProfilingStage struct{}

func NewProfilingStage() *ProfilingStage { return &ProfilingStage{} }

func (s *ProfilingStage) Name() schema.StageName { return schema.StageProfiling }

// Execute profiles the source. Schema inference and statistics must succeed;
// every model-backed field degrades to empty with a warning on failure.
func (s *ProfilingStage) Execute(ctx context.Context, sc *Context, input any) Result {
	var units int64

	params, ok := input.(ProfilingInput)
	if !ok {
		return Failure(schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"profiling expects ProfilingInput, got %T", input).WithStage(s.Name()), units)
	}

	sample, err := sc.Catalog.ReadSample(ctx, params.SourceRef, params.SampleSize)
	if err != nil {
		return Failure(asPipelineError(err, schema.ErrCodeSourceUnavailable).WithStage(s.Name()), units)
	}

	result := &schema.ProfilingResult{
		WorkflowID:       sc.WorkflowID,
		SourceRef:        params.SourceRef,
		SampleSize:       len(sample.Rows),
		RowCount:         sample.TotalRows,
		InferredSchema:   sample.Columns,
		ColumnStatistics: computeStatistics(sample),
		CreatedAt:        time.Now().UTC(),
	}

	issues, err := s.applyQualityRules(ctx, sc, result)
	if err != nil {
		return Failure(asPipelineError(err, schema.ErrCodeValidationFailed).WithStage(s.Name()), units)
	}
	result.QualityIssues = issues

	// Advisory enrichment. Each block degrades independently.
	sensitive, n, warn := s.classifySensitiveColumns(ctx, sc, sample)
	units += n
	result.SensitiveColumns = sensitive
	if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	synonyms, n, warn := s.suggestSynonyms(ctx, sc, sample)
	units += n
	result.SynonymSuggestions = synonyms
	if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	summary, n := s.summarize(ctx, sc, result)
	units += n
	result.Summary = summary

	if perr := saveWithRetry(ctx, s.Name(), func(c context.Context) error {
		return sc.Store.SaveProfilingResult(c, result)
	}); perr != nil {
		return Failure(perr, units)
	}

	return Success(result, units)
}

// computeStatistics derives per-column null, distinct, cardinality, and
// min/max figures from the sample.
func computeStatistics(sample *source.Sample) []schema.ColumnStatistics {
	n := len(sample.Rows)
	stats := make([]schema.ColumnStatistics, 0, len(sample.Columns))

	for i, col := range sample.Columns {
		st := schema.ColumnStatistics{ColumnName: col.Name}
		distinct := make(map[string]struct{})
		var minVal, maxVal string

		for _, row := range sample.Rows {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v == "" {
				st.NullCount++
				continue
			}
			distinct[v] = struct{}{}
			if minVal == "" || v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}

		st.DistinctCount = int64(len(distinct))
		if n > 0 {
			st.NullPercent = float64(st.NullCount) / float64(n) * 100
		}
		st.MinValue = minVal
		st.MaxValue = maxVal
		st.Cardinality = classifyCardinality(st.DistinctCount, int64(n))
		stats = append(stats, st)
	}
	return stats
}

// classifyCardinality buckets a distinct count against the sampled row count.
func classifyCardinality(distinct, rows int64) schema.CardinalityClass {
	switch {
	case rows > 0 && distinct == rows:
		return schema.CardinalityUnique
	case distinct < 10:
		return schema.CardinalityLow
	case distinct < rows/10:
		return schema.CardinalityMedium
	default:
		return schema.CardinalityHigh
	}
}

// applyQualityRules evaluates every rule against every column's statistics.
func (s *ProfilingStage) applyQualityRules(ctx context.Context, sc *Context, result *schema.ProfilingResult) ([]schema.QualityIssue, error) {
	var issues []schema.QualityIssue

	table := map[string]any{
		"row_count":   result.RowCount,
		"sample_size": int64(result.SampleSize),
	}

	for idx, st := range result.ColumnStatistics {
		col := result.InferredSchema[idx]
		data := map[string]any{
			"column": map[string]any{
				"name":      col.Name,
				"data_type": col.DataType,
				"nullable":  col.Nullable,
			},
			"stats": map[string]any{
				"null_count":     st.NullCount,
				"null_percent":   st.NullPercent,
				"distinct_count": st.DistinctCount,
				"cardinality":    string(st.Cardinality),
			},
			"table": table,
		}

		for _, rule := range qualityRules {
			hit, err := sc.CEL.EvaluateBool(ctx, rule.Expression, data)
			if err != nil {
				return nil, err
			}
			if hit {
				issues = append(issues, schema.QualityIssue{
					ColumnName:  col.Name,
					IssueType:   rule.IssueType,
					Severity:    rule.Severity,
					Description: rule.Describe(st),
				})
			}
		}
	}
	return issues, nil
}

// classifySensitiveColumns labels columns containing PII or PHI. Sample
// values never leave the result unmasked. Any model failure degrades the
// whole field to what was collected so far, with a warning.
func (s *ProfilingStage) classifySensitiveColumns(ctx context.Context, sc *Context, sample *source.Sample) ([]schema.SensitiveColumn, int64, string) {
	var out []schema.SensitiveColumn
	var units int64

	for i, col := range sample.Columns {
		values := sampleValues(sample.Rows, i, 3)
		if len(values) == 0 {
			continue
		}

		for _, v := range values {
			units++
			category, err := sc.Inference.Classify(ctx, v, piiCategories)
			if err != nil {
				sc.Logger.Warn("sensitivity classification degraded",
					"column", col.Name, "error", err)
				return out, units, "sensitivity classification unavailable, sensitive_columns may be incomplete"
			}
			if category != "" && category != "NOT_PII" {
				out = append(out, schema.SensitiveColumn{
					ColumnName:   col.Name,
					Category:     category,
					MaskedSample: maskValue(v),
				})
				break
			}

			units++
			category, err = sc.Inference.Classify(ctx, v, phiCategories)
			if err != nil {
				sc.Logger.Warn("sensitivity classification degraded",
					"column", col.Name, "error", err)
				return out, units, "sensitivity classification unavailable, sensitive_columns may be incomplete"
			}
			if category != "" && category != "NOT_PHI" {
				out = append(out, schema.SensitiveColumn{
					ColumnName:   col.Name,
					Category:     category,
					MaskedSample: "***REDACTED***",
				})
				break
			}
		}
	}
	return out, units, ""
}

// suggestSynonyms asks the model for naming suggestions against the existing
// data dictionary. Skipped silently when the dictionary has no entries for
// this table.
func (s *ProfilingStage) suggestSynonyms(ctx context.Context, sc *Context, sample *source.Sample) (string, int64, string) {
	tableName := tableNameFromSourceRef(sc.SourceRef)
	existing, err := sc.Store.ListDictionaryEntries(ctx, tableName)
	if err != nil || len(existing) == 0 {
		return "", 0, ""
	}

	var newCols, knownCols []string
	for _, c := range sample.Columns {
		newCols = append(newCols, c.Name)
	}
	for _, e := range existing {
		knownCols = append(knownCols, e.ColumnName)
	}

	prompt := fmt.Sprintf(
		"Given these new column names from an incoming dataset:\n%s\n\n"+
			"And these existing columns in our data dictionary:\n%s\n\n"+
			"Suggest synonyms or mappings for any naming conflicts or similar columns. "+
			"Return as JSON with keys: column_name, suggested_synonym, confidence_level, reason.",
		strings.Join(newCols, ", "), strings.Join(knownCols, ", "))

	suggestions, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		sc.Logger.Warn("synonym suggestions degraded", "error", err)
		return "", 1, "synonym suggestions unavailable"
	}
	return suggestions, 1, ""
}

// summarize produces a short human-readable summary, falling back to a
// deterministic one-liner when the model is unavailable.
func (s *ProfilingStage) summarize(ctx context.Context, sc *Context, result *schema.ProfilingResult) (string, int64) {
	prompt := fmt.Sprintf(
		"Summarize this data profiling analysis in 2-3 sentences:\n\n"+
			"- Column count: %d\n- Row count: %d\n- Sensitive columns detected: %d\n- Quality issues: %d\n\n"+
			"Provide actionable insights for data engineers.",
		len(result.InferredSchema), result.RowCount,
		len(result.SensitiveColumns), len(result.QualityIssues))

	summary, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		return fmt.Sprintf("Profiling completed. %d columns analyzed.", len(result.InferredSchema)), 1
	}
	return summary, 1
}

// sampleValues collects up to max non-empty values of one column.
func sampleValues(rows [][]string, col, max int) []string {
	var out []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}

// maskValue keeps the first three characters of a sample value.
func maskValue(v string) string {
	if len(v) <= 3 {
		return v + "***"
	}
	return v[:3] + "***"
}

// tableNameFromSourceRef derives a target table name from the source file
// reference, e.g. "@stage/customer_data.csv" becomes "CUSTOMER_DATA".
func tableNameFromSourceRef(sourceRef string) string {
	base := path.Base(sourceRef)
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return strings.ToUpper(base)
}

var _ Stage = (*ProfilingStage)(nil)
