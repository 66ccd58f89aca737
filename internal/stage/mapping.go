package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// Fallback mapping confidences: exact name matches are near-certain, proposed
// new target columns are tentative.
const (
	exactMatchConfidence = 0.95
	suggestedConfidence  = 0.7
)

// MappingStage produces field-level source-to-target mappings and the
// generated transformation artifacts. Target schema introspection must
// succeed; the model-backed correspondence generation falls back to
// deterministic name matching when unavailable.
type MappingStage struct{}

func NewMappingStage() *MappingStage { return &MappingStage{} }

func (s *MappingStage) Name() schema.StageName { return schema.StageMapping }

// Execute maps the proposed table's columns onto the target schema.
func (s *MappingStage) Execute(ctx context.Context, sc *Context, input any) Result {
	var units int64

	dict, ok := input.(*schema.DictionaryResult)
	if !ok {
		return Failure(schema.NewErrorf(schema.ErrCodeInvalidArgument,
			"mapping expects *DictionaryResult, got %T", input).WithStage(s.Name()), units)
	}

	tables, err := sc.Catalog.DescribeTargetSchema(ctx, sc.TargetSchema)
	if err != nil {
		return Failure(asPipelineError(err, schema.ErrCodeSourceUnavailable).WithStage(s.Name()), units)
	}

	target := pickTargetTable(tables, sc.TargetTable, dict.TableName)

	result := &schema.MappingResult{
		WorkflowID:          sc.WorkflowID,
		DictionaryResultRef: dict.WorkflowID,
		TargetSchema:        sc.TargetSchema,
		TargetTable:         target.TableName,
		CreatedAt:           time.Now().UTC(),
	}

	mappings, n, warn := s.generateMappings(ctx, sc, dict.SourceColumns, target.Columns)
	units += n
	if warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	s.vetMappings(sc, mappings, result)
	result.FieldMappings = mappings

	result.TransformArtifacts = buildTransformArtifacts(dict.TableName, target.TableName, mappings)

	summary, n := s.summarize(ctx, sc, result)
	units += n
	result.Summary = summary

	if perr := saveWithRetry(ctx, s.Name(), func(c context.Context) error {
		return sc.Store.SaveMappingResult(c, result)
	}); perr != nil {
		return Failure(perr, units)
	}

	return Success(result, units)
}

// pickTargetTable selects the table to map onto: the explicitly requested
// one, a name match against the proposed table, or the schema's first table.
// A zero-value table (no columns) switches mapping into suggestion mode.
func pickTargetTable(tables []source.TableSchema, requested, proposed string) source.TableSchema {
	for _, t := range tables {
		if requested != "" && strings.EqualFold(t.TableName, requested) {
			return t
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t.TableName, proposed) {
			return t
		}
	}
	if requested != "" {
		return source.TableSchema{TableName: requested}
	}
	if len(tables) > 0 {
		return tables[0]
	}
	return source.TableSchema{TableName: proposed}
}

// generateMappings asks the model for field correspondences and falls back to
// deterministic name matching when the response is unavailable or unusable.
func (s *MappingStage) generateMappings(ctx context.Context, sc *Context, sourceCols, targetCols []schema.ColumnSchema) ([]schema.FieldMapping, int64, string) {
	text, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, mappingPrompt(sourceCols, targetCols))
	if err != nil {
		sc.Logger.Warn("model mapping generation failed, using name-based fallback", "error", err)
		return nameBasedMappings(sourceCols, targetCols), 1, "field mappings generated by name matching, model unavailable"
	}

	mappings, err := s.decodeMappings(ctx, sc, text)
	if err != nil {
		sc.Logger.Warn("model mapping response unusable, using name-based fallback", "error", err)
		return nameBasedMappings(sourceCols, targetCols), 1, "field mappings generated by name matching, model response unusable"
	}
	return mappings, 1, ""
}

func mappingPrompt(sourceCols, targetCols []schema.ColumnSchema) string {
	var src, tgt []string
	for _, c := range sourceCols {
		src = append(src, fmt.Sprintf("%s (%s)", c.Name, c.DataType))
	}
	for _, c := range targetCols {
		tgt = append(tgt, fmt.Sprintf("%s (%s)", c.Name, c.DataType))
	}

	if len(tgt) == 0 {
		return fmt.Sprintf(
			"Suggest optimized target column mappings for this source schema:\n\n"+
				"SOURCE columns:\n%s\n\n"+
				"Use standardized naming (lowercase with underscores) and optimized data types.\n\n"+
				"Return only a JSON array of objects with keys: source_column, target_column, "+
				"source_type, target_type, transform_kind, transform_expr, confidence. "+
				"transform_kind is one of DIRECT, TYPE_CAST, CALCULATED, LOOKUP, DERIVED.",
			strings.Join(src, "\n"))
	}

	return fmt.Sprintf(
		"Generate field-level mappings from source to target schema:\n\n"+
			"SOURCE columns:\n%s\n\nTARGET columns:\n%s\n\n"+
			"For each source column determine the target column, the transform kind "+
			"(DIRECT, TYPE_CAST, CALCULATED, LOOKUP, DERIVED), a transform expression if needed, "+
			"and a confidence score between 0 and 1.\n\n"+
			"Return only a JSON array of objects with keys: source_column, target_column, "+
			"source_type, target_type, transform_kind, transform_expr, confidence.",
		strings.Join(src, "\n"), strings.Join(tgt, "\n"))
}

// decodeMappings parses the raw model response, normalizes wrapper objects,
// and validates the document against the mapping schema.
func (s *MappingStage) decodeMappings(ctx context.Context, sc *Context, text string) ([]schema.FieldMapping, error) {
	var doc any
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}

	// Unwrap responses shaped as {"mappings": [...]} or similar.
	if m, ok := doc.(map[string]any); ok {
		normalized, err := sc.JQ.EvaluateAll(ctx, `.mappings // .field_mappings // []`, m)
		if err != nil {
			return nil, err
		}
		if len(normalized) == 1 {
			doc = normalized[0]
		}
	}

	if err := sc.Validator.ValidateRaw(doc); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var mappings []schema.FieldMapping
	if err := json.Unmarshal(raw, &mappings); err != nil {
		return nil, fmt.Errorf("mappings do not match expected shape: %w", err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("model returned no mappings")
	}
	return mappings, nil
}

// nameBasedMappings is the deterministic fallback: exact (case-insensitive)
// name matches map directly, everything else proposes a new target column.
func nameBasedMappings(sourceCols, targetCols []schema.ColumnSchema) []schema.FieldMapping {
	byName := make(map[string]schema.ColumnSchema, len(targetCols))
	for _, t := range targetCols {
		byName[strings.ToLower(t.Name)] = t
	}

	mappings := make([]schema.FieldMapping, 0, len(sourceCols))
	for _, src := range sourceCols {
		if tgt, ok := byName[strings.ToLower(src.Name)]; ok {
			m := schema.FieldMapping{
				SourceColumn:  src.Name,
				TargetColumn:  tgt.Name,
				SourceType:    src.DataType,
				TargetType:    tgt.DataType,
				TransformKind: schema.TransformDirect,
				TransformExpr: src.Name,
				Confidence:    exactMatchConfidence,
			}
			if !strings.EqualFold(src.DataType, tgt.DataType) {
				m.TransformKind = schema.TransformTypeCast
				m.TransformExpr = fmt.Sprintf("cast(%s, %q)", src.Name, tgt.DataType)
			}
			mappings = append(mappings, m)
			continue
		}

		mappings = append(mappings, schema.FieldMapping{
			SourceColumn:  src.Name,
			TargetColumn:  strings.ReplaceAll(strings.ToLower(src.Name), " ", "_"),
			SourceType:    src.DataType,
			TargetType:    src.DataType,
			TransformKind: schema.TransformDirect,
			TransformExpr: src.Name,
			Confidence:    suggestedConfidence,
		})
	}
	return mappings
}

// vetMappings compile-checks transform expressions and applies the
// confidence floor. Low-confidence or unverifiable mappings are kept but
// flagged for review, never dropped.
func (s *MappingStage) vetMappings(sc *Context, mappings []schema.FieldMapping, result *schema.MappingResult) {
	for i := range mappings {
		m := &mappings[i]
		if m.Confidence < sc.Config.ConfidenceFloor {
			m.RequiresReview = true
		}
		if m.TransformExpr == "" {
			continue
		}
		if err := sc.Expr.CompileCheck(m.TransformExpr); err != nil {
			m.RequiresReview = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("transform expression for %s does not compile", m.TargetColumn))
		}
	}
}

// buildTransformArtifacts renders the staging, cleaned, and curated model
// files plus a schema manifest for the mapped table.
func buildTransformArtifacts(sourceTable, targetTable string, mappings []schema.FieldMapping) []schema.TransformArtifact {
	src := strings.ToLower(sourceTable)
	tgt := strings.ToLower(targetTable)
	if tgt == "" {
		tgt = src
	}

	var selects []string
	for _, m := range mappings {
		if m.TransformKind == schema.TransformDirect {
			selects = append(selects, fmt.Sprintf("    %s AS %s", m.SourceColumn, m.TargetColumn))
		} else {
			selects = append(selects, fmt.Sprintf("    %s AS %s -- %s",
				m.SourceColumn, m.TargetColumn, m.TransformKind))
		}
	}
	selectList := strings.Join(selects, ",\n")

	staging := fmt.Sprintf(
		"-- Staging model for %s\n\nWITH source AS (\n    SELECT * FROM raw.%s\n),\n\n"+
			"renamed AS (\n    SELECT\n%s\n    FROM source\n)\n\nSELECT * FROM renamed\n",
		src, src, selectList)

	cleaned := fmt.Sprintf(
		"-- Cleaned model for %s: data quality filters\n\nWITH staging AS (\n"+
			"    SELECT * FROM staging.stg_%s\n)\n\nSELECT * FROM staging\n",
		src, src)

	curated := fmt.Sprintf(
		"-- Curated model for %s\n\nWITH cleaned AS (\n    SELECT * FROM cleaned.int_%s_cleaned\n)\n\n"+
			"SELECT\n    *,\n    CURRENT_TIMESTAMP AS loaded_at\nFROM cleaned\n",
		tgt, src)

	manifest := buildSchemaManifest(tgt, mappings)

	return []schema.TransformArtifact{
		{Name: fmt.Sprintf("stg_%s.sql", src), Kind: "staging", Content: staging},
		{Name: fmt.Sprintf("int_%s_cleaned.sql", src), Kind: "cleaned", Content: cleaned},
		{Name: fmt.Sprintf("cur_%s.sql", tgt), Kind: "curated", Content: curated},
		{Name: "schema.yml", Kind: "schema", Content: manifest},
	}
}

func buildSchemaManifest(table string, mappings []schema.FieldMapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "version: 2\n\nmodels:\n  - name: %s\n    columns:\n", table)
	for _, m := range mappings {
		fmt.Fprintf(&b, "      - name: %s\n", m.TargetColumn)
		if m.RequiresReview {
			b.WriteString("        description: requires review\n")
		}
	}
	return b.String()
}

// summarize produces a short mapping summary, falling back to a
// deterministic one-liner when the model is unavailable.
func (s *MappingStage) summarize(ctx context.Context, sc *Context, result *schema.MappingResult) (string, int64) {
	review := 0
	for _, m := range result.FieldMappings {
		if m.RequiresReview {
			review++
		}
	}

	prompt := fmt.Sprintf(
		"Summarize this field mapping exercise in 2-3 sentences for a data engineer:\n\n"+
			"Target table: %s.%s\nMappings: %d\nFlagged for review: %d",
		result.TargetSchema, result.TargetTable, len(result.FieldMappings), review)

	summary, err := sc.Inference.Complete(ctx, sc.Config.CompletionModel, prompt)
	if err != nil {
		return fmt.Sprintf("Mapped %d columns onto %s, %d flagged for review.",
			len(result.FieldMappings), result.TargetTable, review), 1
	}
	return summary, 1
}

var _ Stage = (*MappingStage)(nil)
