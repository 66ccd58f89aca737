package source

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// stagePrefix marks source references that resolve inside the staging
// directory, e.g. "@stage/customers.csv".
const stagePrefix = "@stage/"

// catalogFileName is the JSON file inside the staging directory that
// describes the available target schemas:
//
//	{"ANALYTICS": [{"table_name": "DIM_CUSTOMER", "columns": [...]}]}
const catalogFileName = "catalog.json"

// LocalCatalog implements Catalog over CSV files in a local staging
// directory. It stands in for the warehouse staging area in development and
// tests.
type LocalCatalog struct {
	stageDir string
}

// NewLocalCatalog creates a catalog rooted at the given staging directory.
func NewLocalCatalog(stageDir string) (*LocalCatalog, error) {
	info, err := os.Stat(stageDir)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"staging directory unavailable: %s", stageDir).WithCause(err)
	}
	if !info.IsDir() {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"staging path is not a directory: %s", stageDir)
	}
	return &LocalCatalog{stageDir: stageDir}, nil
}

// InferSchema derives the column list from the CSV header and a scan of the
// data rows. A column is nullable when any scanned value is empty.
func (c *LocalCatalog) InferSchema(ctx context.Context, sourceRef string) ([]schema.ColumnSchema, error) {
	sample, err := c.ReadSample(ctx, sourceRef, 1000)
	if err != nil {
		return nil, err
	}
	return sample.Columns, nil
}

// ReadSample reads up to limit data rows of the referenced CSV file.
func (c *LocalCatalog) ReadSample(ctx context.Context, sourceRef string, limit int) (*Sample, error) {
	path, err := c.resolve(sourceRef)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"cannot read source %s", sourceRef).WithCause(err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"source %s has no header row", sourceRef).WithCause(err)
	}

	var rows [][]string
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "sample read cancelled").WithCause(err)
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
				"malformed record in source %s", sourceRef).WithCause(err)
		}
		total++
		if limit <= 0 || len(rows) < limit {
			rows = append(rows, record)
		}
	}

	columns := make([]schema.ColumnSchema, len(header))
	for i, name := range header {
		columns[i] = schema.ColumnSchema{
			Name:     strings.TrimSpace(name),
			DataType: inferColumnType(rows, i),
			Nullable: columnHasEmpty(rows, i),
		}
	}

	return &Sample{Columns: columns, Rows: rows, TotalRows: total}, nil
}

// DescribeTargetSchema reads the staging catalog file and returns the tables
// of the named schema.
func (c *LocalCatalog) DescribeTargetSchema(ctx context.Context, schemaName string) ([]TableSchema, error) {
	path := filepath.Join(c.stageDir, catalogFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"target catalog unavailable at %s", path).WithCause(err)
	}

	var catalog map[string][]TableSchema
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"target catalog is not valid JSON").WithCause(err)
	}

	tables, ok := catalog[schemaName]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"target schema %q not found in catalog", schemaName)
	}
	return tables, nil
}

// resolve maps a source reference to a path inside the staging directory and
// rejects references that escape it.
func (c *LocalCatalog) resolve(sourceRef string) (string, error) {
	if !strings.HasPrefix(sourceRef, stagePrefix) {
		return "", schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"unsupported source reference %q", sourceRef)
	}
	rel := strings.TrimPrefix(sourceRef, stagePrefix)
	path := filepath.Join(c.stageDir, filepath.Clean("/"+rel))
	if !strings.HasPrefix(path, filepath.Clean(c.stageDir)+string(os.PathSeparator)) {
		return "", schema.NewErrorf(schema.ErrCodeSourceUnavailable,
			"source reference %q escapes the staging directory", sourceRef)
	}
	return path, nil
}

// inferColumnType scans sampled values and picks the narrowest type that
// accepts all non-empty values: NUMBER, FLOAT, BOOLEAN, TIMESTAMP, DATE,
// otherwise VARCHAR.
func inferColumnType(rows [][]string, col int) string {
	allInt, allFloat, allBool, allDate, allTimestamp := true, true, true, true, true
	seen := false

	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
		}
		switch strings.ToLower(v) {
		case "true", "false":
		default:
			allBool = false
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			allDate = false
		}
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			if _, err := time.Parse("2006-01-02 15:04:05", v); err != nil {
				allTimestamp = false
			}
		}
	}

	switch {
	case !seen:
		return "VARCHAR"
	case allBool:
		return "BOOLEAN"
	case allInt:
		return "NUMBER"
	case allFloat:
		return "FLOAT"
	case allDate:
		return "DATE"
	case allTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func columnHasEmpty(rows [][]string, col int) bool {
	for _, row := range rows {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			return true
		}
	}
	return false
}

var _ Catalog = (*LocalCatalog)(nil)
