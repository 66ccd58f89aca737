package stage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaldes-dt/schemaflow/internal/expressions"
	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/internal/validation"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

func targetTables() []source.TableSchema {
	return []source.TableSchema{
		{TableName: "DIM_CUSTOMER", Columns: []schema.ColumnSchema{
			{Name: "customer_id", DataType: "INTEGER"},
			{Name: "customer_name", DataType: "VARCHAR"},
		}},
		{TableName: "DIM_PRODUCT", Columns: []schema.ColumnSchema{
			{Name: "product_id", DataType: "INTEGER"},
		}},
	}
}

func TestPickTargetTable(t *testing.T) {
	tables := targetTables()

	assert.Equal(t, "DIM_PRODUCT", pickTargetTable(tables, "dim_product", "X").TableName)
	assert.Equal(t, "DIM_CUSTOMER", pickTargetTable(tables, "", "dim_customer").TableName)
	assert.Equal(t, "DIM_CUSTOMER", pickTargetTable(tables, "", "UNKNOWN").TableName)

	// A requested table absent from the catalog switches to suggestion mode.
	suggestion := pickTargetTable(tables, "DIM_ORDER", "X")
	assert.Equal(t, "DIM_ORDER", suggestion.TableName)
	assert.Empty(t, suggestion.Columns)

	// An empty catalog falls back to the proposed name.
	fallback := pickTargetTable(nil, "", "CUSTOMERS")
	assert.Equal(t, "CUSTOMERS", fallback.TableName)
}

func TestNameBasedMappings(t *testing.T) {
	sourceCols := []schema.ColumnSchema{
		{Name: "CUSTOMER_ID", DataType: "NUMBER"},
		{Name: "customer_name", DataType: "VARCHAR"},
		{Name: "SIGNUP CHANNEL", DataType: "VARCHAR"},
	}
	targetCols := []schema.ColumnSchema{
		{Name: "customer_id", DataType: "INTEGER"},
		{Name: "customer_name", DataType: "VARCHAR"},
	}

	mappings := nameBasedMappings(sourceCols, targetCols)
	require.Len(t, mappings, 3)

	// Name match with a type difference becomes a cast.
	id := mappings[0]
	assert.Equal(t, "customer_id", id.TargetColumn)
	assert.Equal(t, schema.TransformTypeCast, id.TransformKind)
	assert.Equal(t, exactMatchConfidence, id.Confidence)

	// Name and type match maps directly.
	name := mappings[1]
	assert.Equal(t, schema.TransformDirect, name.TransformKind)
	assert.Equal(t, exactMatchConfidence, name.Confidence)

	// No match proposes a normalized new target column at lower confidence.
	channel := mappings[2]
	assert.Equal(t, "signup_channel", channel.TargetColumn)
	assert.Equal(t, suggestedConfidence, channel.Confidence)
}

func TestVetMappings_ConfidenceFloor(t *testing.T) {
	sc := &Context{
		Expr:   expressions.NewExprEngine(),
		Config: Config{ConfidenceFloor: 0.8},
	}
	mappings := []schema.FieldMapping{
		{TargetColumn: "a", Confidence: 0.9},
		{TargetColumn: "b", Confidence: 0.79},
	}
	result := &schema.MappingResult{}

	(&MappingStage{}).vetMappings(sc, mappings, result)
	assert.False(t, mappings[0].RequiresReview)
	assert.True(t, mappings[1].RequiresReview)
	assert.Empty(t, result.Warnings)
}

func TestVetMappings_BrokenTransformExpr(t *testing.T) {
	sc := &Context{
		Expr:   expressions.NewExprEngine(),
		Config: Config{ConfidenceFloor: 0.8},
	}
	mappings := []schema.FieldMapping{
		{TargetColumn: "total", Confidence: 0.95, TransformExpr: "amount *"},
	}
	result := &schema.MappingResult{}

	(&MappingStage{}).vetMappings(sc, mappings, result)
	assert.True(t, mappings[0].RequiresReview)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "total")
}

func TestDecodeMappings_WrappedAndFenced(t *testing.T) {
	validator, err := validation.NewMappingValidator()
	require.NoError(t, err)
	sc := &Context{
		JQ:        expressions.NewGoJQEngine(),
		Validator: validator,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	text := "```json\n{\"mappings\": [" +
		"{\"source_column\": \"ID\", \"target_column\": \"customer_id\", \"transform_kind\": \"DIRECT\", \"confidence\": 0.9}" +
		"]}\n```"

	mappings, err := (&MappingStage{}).decodeMappings(context.Background(), sc, text)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "ID", mappings[0].SourceColumn)
	assert.Equal(t, schema.TransformDirect, mappings[0].TransformKind)
}

func TestDecodeMappings_RejectsInvalidDocument(t *testing.T) {
	validator, err := validation.NewMappingValidator()
	require.NoError(t, err)
	sc := &Context{
		JQ:        expressions.NewGoJQEngine(),
		Validator: validator,
	}

	// Missing the required target_column.
	_, err = (&MappingStage{}).decodeMappings(context.Background(), sc,
		`[{"source_column": "ID", "transform_kind": "DIRECT"}]`)
	require.Error(t, err)

	_, err = (&MappingStage{}).decodeMappings(context.Background(), sc, "not json at all")
	require.Error(t, err)

	_, err = (&MappingStage{}).decodeMappings(context.Background(), sc, `[]`)
	require.Error(t, err)
}

func TestBuildTransformArtifacts(t *testing.T) {
	mappings := []schema.FieldMapping{
		{SourceColumn: "CUST_ID", TargetColumn: "customer_id", TransformKind: schema.TransformTypeCast},
		{SourceColumn: "CUST_NAME", TargetColumn: "customer_name", TransformKind: schema.TransformDirect, RequiresReview: true},
	}

	artifacts := buildTransformArtifacts("CUSTOMERS", "DIM_CUSTOMER", mappings)
	require.Len(t, artifacts, 4)

	byKind := map[string]schema.TransformArtifact{}
	for _, a := range artifacts {
		byKind[a.Kind] = a
	}

	staging := byKind["staging"]
	assert.Equal(t, "stg_customers.sql", staging.Name)
	assert.Contains(t, staging.Content, "raw.customers")
	assert.Contains(t, staging.Content, "CUST_ID AS customer_id")

	cleaned := byKind["cleaned"]
	assert.Equal(t, "int_customers_cleaned.sql", cleaned.Name)

	curated := byKind["curated"]
	assert.Equal(t, "cur_dim_customer.sql", curated.Name)
	assert.Contains(t, curated.Content, "loaded_at")

	manifest := byKind["schema"]
	assert.Equal(t, "schema.yml", manifest.Name)
	assert.Contains(t, manifest.Content, "name: dim_customer")
	assert.Contains(t, manifest.Content, "customer_name")
	assert.Contains(t, manifest.Content, "requires review")
}
