package validation

import (
	"testing"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDDL_Accepts(t *testing.T) {
	valid := []string{
		"CREATE TABLE CUSTOMERS (ID NUMBER, NAME VARCHAR(100))",
		"create table customers (id number, name varchar(100))",
		"CREATE OR REPLACE TABLE RAW.CUSTOMERS (ID NUMBER)",
		"CREATE TABLE IF NOT EXISTS STAGING.ORDERS (ORDER_ID NUMBER, TOTAL NUMBER(10,2));",
		`CREATE TABLE "my_schema"."my_table" (COL_1 VARCHAR)`,
		"CREATE TABLE T (\n  ID NUMBER COMMENT 'primary key',\n  NAME VARCHAR\n)",
		"CREATE TABLE T (ID NUMBER, PRIMARY KEY (ID))",
	}
	for _, ddl := range valid {
		assert.NoError(t, ValidateDDL(ddl), ddl)
	}
}

func TestValidateDDL_Rejects(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"DROP TABLE CUSTOMERS",
		"SELECT * FROM CUSTOMERS",
		"CREATE VIEW V AS SELECT 1",
		"CREATE TABLE (ID NUMBER)",
		"CREATE TABLE CUSTOMERS",
		"CREATE TABLE CUSTOMERS (ID NUMBER",
		"CREATE TABLE CUSTOMERS (ID NUMBER))",
		"CREATE TABLE CUSTOMERS ()",
		"CREATE TABLE CUSTOMERS (PRIMARY KEY (ID))",
		"CREATE TABLE BAD-NAME (ID NUMBER)",
	}
	for _, ddl := range invalid {
		err := ValidateDDL(ddl)
		require.Error(t, err, ddl)

		var pe *schema.PipelineError
		require.ErrorAs(t, err, &pe, ddl)
		assert.Equal(t, schema.ErrCodeValidationFailed, pe.Code, ddl)
	}
}

func TestValidateDDL_QuotedCommentWithParen(t *testing.T) {
	ddl := "CREATE TABLE T (ID NUMBER COMMENT 'contains ) paren', NAME VARCHAR)"
	assert.NoError(t, ValidateDDL(ddl))
}

func TestValidateDDL_NestedTypeParens(t *testing.T) {
	ddl := "CREATE TABLE T (TOTAL NUMBER(12,2), RATE DECIMAL(5,4))"
	assert.NoError(t, ValidateDDL(ddl))
}
