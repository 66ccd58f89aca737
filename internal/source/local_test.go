package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStageFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newCatalog(t *testing.T) (*LocalCatalog, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := NewLocalCatalog(dir)
	require.NoError(t, err)
	return c, dir
}

func TestNewLocalCatalog_MissingDir(t *testing.T) {
	_, err := NewLocalCatalog(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeSourceUnavailable, pe.Code)
}

func TestNewLocalCatalog_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeStageFile(t, dir, "file.csv", "a\n1\n")

	_, err := NewLocalCatalog(filepath.Join(dir, "file.csv"))
	require.Error(t, err)
}

// --- Sampling ---

func TestReadSample(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "customers.csv",
		"CUST_ID,CUST_NAME,SIGNUP_DATE\n1,Alice,2024-01-15\n2,Bob,2024-02-20\n3,,2024-03-01\n")

	sample, err := c.ReadSample(context.Background(), "@stage/customers.csv", 100)
	require.NoError(t, err)

	assert.Equal(t, int64(3), sample.TotalRows)
	assert.Len(t, sample.Rows, 3)
	require.Len(t, sample.Columns, 3)

	assert.Equal(t, "CUST_ID", sample.Columns[0].Name)
	assert.Equal(t, "NUMBER", sample.Columns[0].DataType)
	assert.False(t, sample.Columns[0].Nullable)

	assert.Equal(t, "VARCHAR", sample.Columns[1].DataType)
	assert.True(t, sample.Columns[1].Nullable)

	assert.Equal(t, "DATE", sample.Columns[2].DataType)
}

func TestReadSample_LimitCountsAllRows(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "big.csv", "N\n1\n2\n3\n4\n5\n")

	sample, err := c.ReadSample(context.Background(), "@stage/big.csv", 2)
	require.NoError(t, err)
	assert.Len(t, sample.Rows, 2)
	assert.Equal(t, int64(5), sample.TotalRows)
}

func TestReadSample_MissingFile(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.ReadSample(context.Background(), "@stage/absent.csv", 10)
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeSourceUnavailable, pe.Code)
}

func TestReadSample_UnsupportedReference(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.ReadSample(context.Background(), "s3://bucket/key.csv", 10)
	require.Error(t, err)
}

func TestReadSample_PathEscapeRejected(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.ReadSample(context.Background(), "@stage/../../etc/passwd", 10)
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeSourceUnavailable, pe.Code)
}

func TestReadSample_Cancelled(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "rows.csv", "N\n1\n2\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReadSample(ctx, "@stage/rows.csv", 10)
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeCancelled, pe.Code)
}

// --- Type inference ---

func TestInferSchema_Types(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "typed.csv",
		"I,F,B,D,TS,S\n"+
			"1,1.5,true,2024-01-01,2024-01-01 10:00:00,abc\n"+
			"2,2.25,false,2024-06-30,2024-06-30 23:59:59,def\n")

	cols, err := c.InferSchema(context.Background(), "@stage/typed.csv")
	require.NoError(t, err)
	require.Len(t, cols, 6)

	types := map[string]string{}
	for _, col := range cols {
		types[col.Name] = col.DataType
	}
	assert.Equal(t, "NUMBER", types["I"])
	assert.Equal(t, "FLOAT", types["F"])
	assert.Equal(t, "BOOLEAN", types["B"])
	assert.Equal(t, "DATE", types["D"])
	assert.Equal(t, "TIMESTAMP", types["TS"])
	assert.Equal(t, "VARCHAR", types["S"])
}

func TestInferSchema_AllEmptyColumnIsVarchar(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "empty.csv", "A,B\n1,\n2,\n")

	cols, err := c.InferSchema(context.Background(), "@stage/empty.csv")
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR", cols[1].DataType)
	assert.True(t, cols[1].Nullable)
}

// --- Target catalog ---

func TestDescribeTargetSchema(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "catalog.json", `{
		"ANALYTICS": [
			{"table_name": "DIM_CUSTOMER", "columns": [
				{"name": "customer_id", "data_type": "INTEGER", "nullable": false},
				{"name": "customer_name", "data_type": "VARCHAR", "nullable": true}
			]}
		]
	}`)

	tables, err := c.DescribeTargetSchema(context.Background(), "ANALYTICS")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "DIM_CUSTOMER", tables[0].TableName)
	assert.Len(t, tables[0].Columns, 2)
}

func TestDescribeTargetSchema_UnknownSchema(t *testing.T) {
	c, dir := newCatalog(t)
	writeStageFile(t, dir, "catalog.json", `{"ANALYTICS": []}`)

	_, err := c.DescribeTargetSchema(context.Background(), "FINANCE")
	require.Error(t, err)
}

func TestDescribeTargetSchema_MissingCatalog(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.DescribeTargetSchema(context.Background(), "ANALYTICS")
	require.Error(t, err)

	var pe *schema.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, schema.ErrCodeSourceUnavailable, pe.Code)
}
