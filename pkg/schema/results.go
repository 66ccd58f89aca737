package schema

import "time"

// CardinalityClass buckets a column's distinct-value count.
type CardinalityClass string

const (
	CardinalityUnique CardinalityClass = "UNIQUE"
	CardinalityLow    CardinalityClass = "LOW"
	CardinalityMedium CardinalityClass = "MEDIUM"
	CardinalityHigh   CardinalityClass = "HIGH"
)

// ColumnSchema describes one inferred source column.
type ColumnSchema struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// ColumnStatistics holds the deterministic per-column profile.
type ColumnStatistics struct {
	ColumnName    string           `json:"column_name"`
	NullCount     int64            `json:"null_count"`
	NullPercent   float64          `json:"null_percent"`
	DistinctCount int64            `json:"distinct_count"`
	Cardinality   CardinalityClass `json:"cardinality"`
	MinValue      string           `json:"min_value,omitempty"`
	MaxValue      string           `json:"max_value,omitempty"`
}

// SensitiveColumn records an advisory PII/PHI classification.
type SensitiveColumn struct {
	ColumnName   string `json:"column_name"`
	Category     string `json:"category"`
	MaskedSample string `json:"masked_sample,omitempty"`
}

// QualityIssue is a rule-based data quality finding.
type QualityIssue struct {
	ColumnName  string `json:"column_name"`
	IssueType   string `json:"issue_type"`
	Severity    string `json:"severity"` // INFO, WARNING, ERROR
	Description string `json:"description,omitempty"`
}

// ProfilingResult is the typed output of the profiling stage. Required
// fields come from deterministic inspection; Sensitive/Synonym/Summary are
// advisory and may be empty when inference degraded.
type ProfilingResult struct {
	WorkflowID         string             `json:"workflow_id"`
	SourceRef          string             `json:"source_ref"`
	SampleSize         int                `json:"sample_size"`
	RowCount           int64              `json:"row_count"`
	InferredSchema     []ColumnSchema     `json:"inferred_schema"`
	ColumnStatistics   []ColumnStatistics `json:"column_statistics"`
	SensitiveColumns   []SensitiveColumn  `json:"sensitive_columns"`
	QualityIssues      []QualityIssue     `json:"quality_issues"`
	SynonymSuggestions string             `json:"synonym_suggestions,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	Warnings           []string           `json:"warnings,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// TypeDecision records an advisory data type optimization for one column.
type TypeDecision struct {
	ColumnName    string `json:"column_name"`
	OriginalType  string `json:"original_type"`
	OptimizedType string `json:"optimized_type"`
	Reason        string `json:"reason,omitempty"`
}

// DictionaryResult is the typed output of the dictionary stage.
// ProposedDDL is required-generation: the stage fails without it.
type DictionaryResult struct {
	WorkflowID          string         `json:"workflow_id"`
	ProfilingResultRef  string         `json:"profiling_result_ref,omitempty"`
	TableName           string         `json:"table_name"`
	TargetSchema        string         `json:"target_schema"`
	ProposedDDL         string         `json:"proposed_ddl"`
	SourceColumns       []ColumnSchema `json:"source_columns"`
	ColumnTypeDecisions []TypeDecision `json:"column_type_decisions,omitempty"`
	EnrichmentApplied   bool           `json:"enrichment_applied"`
	Summary             string         `json:"summary,omitempty"`
	Warnings            []string       `json:"warnings,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// TransformKind classifies how a source column maps onto its target.
type TransformKind string

const (
	TransformDirect     TransformKind = "DIRECT"
	TransformTypeCast   TransformKind = "TYPE_CAST"
	TransformCalculated TransformKind = "CALCULATED"
	TransformLookup     TransformKind = "LOOKUP"
	TransformDerived    TransformKind = "DERIVED"
)

// FieldMapping is one source-to-target column correspondence.
type FieldMapping struct {
	SourceColumn   string        `json:"source_column"`
	TargetColumn   string        `json:"target_column"`
	SourceType     string        `json:"source_type"`
	TargetType     string        `json:"target_type"`
	TransformKind  TransformKind `json:"transform_kind"`
	TransformExpr  string        `json:"transform_expr,omitempty"`
	Confidence     float64       `json:"confidence"`
	RequiresReview bool          `json:"requires_review"`
}

// TransformArtifact is an opaque generated transformation file.
type TransformArtifact struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // staging, cleaned, curated
	Content string `json:"content"`
}

// MappingResult is the typed output of the mapping stage and the terminal
// payload of a full onboarding workflow.
type MappingResult struct {
	WorkflowID          string              `json:"workflow_id"`
	DictionaryResultRef string              `json:"dictionary_result_ref,omitempty"`
	TargetSchema        string              `json:"target_schema"`
	TargetTable         string              `json:"target_table"`
	FieldMappings       []FieldMapping      `json:"field_mappings"`
	TransformArtifacts  []TransformArtifact `json:"transform_artifacts,omitempty"`
	Summary             string              `json:"summary,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}
