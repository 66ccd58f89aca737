package source

import (
	"context"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// Sample is a bounded tabular read of a source.
type Sample struct {
	Columns []schema.ColumnSchema
	Rows    [][]string
	// TotalRows is the full row count of the source, which can exceed
	// len(Rows) when the sample was truncated by the limit.
	TotalRows int64
}

// TableSchema describes one table of a target schema.
type TableSchema struct {
	TableName string                `json:"table_name"`
	Columns   []schema.ColumnSchema `json:"columns"`
}

// Catalog is the storage/catalog collaborator the pipeline stages depend on
// for deterministic structural facts. Unreachable or unreadable inputs
// surface as SOURCE_UNAVAILABLE errors.
type Catalog interface {
	// InferSchema derives the ordered column list of the source.
	InferSchema(ctx context.Context, sourceRef string) ([]schema.ColumnSchema, error)

	// ReadSample reads up to limit rows of the source.
	ReadSample(ctx context.Context, sourceRef string, limit int) (*Sample, error)

	// DescribeTargetSchema lists the tables and columns of a target schema.
	DescribeTargetSchema(ctx context.Context, schemaName string) ([]TableSchema, error)
}
