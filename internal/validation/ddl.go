package validation

import (
	"regexp"
	"strings"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateDDL performs a structural check on a CREATE TABLE statement before
// it is persisted: statement kind, a well-formed table identifier, balanced
// parentheses, and at least one column definition. It does not attempt full
// dialect parsing; warehouse-specific type syntax passes through unchecked.
func ValidateDDL(ddl string) error {
	trimmed := strings.TrimSpace(ddl)
	if trimmed == "" {
		return schema.NewError(schema.ErrCodeValidationFailed, "empty DDL statement")
	}

	upper := strings.ToUpper(trimmed)
	rest := ""
	switch {
	case strings.HasPrefix(upper, "CREATE OR REPLACE TABLE"):
		rest = trimmed[len("CREATE OR REPLACE TABLE"):]
	case strings.HasPrefix(upper, "CREATE TABLE IF NOT EXISTS"):
		rest = trimmed[len("CREATE TABLE IF NOT EXISTS"):]
	case strings.HasPrefix(upper, "CREATE TABLE"):
		rest = trimmed[len("CREATE TABLE"):]
	default:
		return schema.NewError(schema.ErrCodeValidationFailed,
			"DDL must be a CREATE TABLE statement")
	}

	rest = strings.TrimSpace(rest)
	open := strings.Index(rest, "(")
	if open < 0 {
		return schema.NewError(schema.ErrCodeValidationFailed,
			"CREATE TABLE has no column list")
	}

	tableName := strings.TrimSpace(rest[:open])
	if tableName == "" {
		return schema.NewError(schema.ErrCodeValidationFailed,
			"CREATE TABLE is missing a table name")
	}
	for _, part := range strings.Split(tableName, ".") {
		part = strings.Trim(part, `"`)
		if !identifierRe.MatchString(part) {
			return schema.NewErrorf(schema.ErrCodeValidationFailed,
				"invalid table identifier %q", tableName)
		}
	}

	body := rest[open:]
	if err := checkBalanced(body); err != nil {
		return err
	}

	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(body, "(")), ";"))
	inner = strings.TrimSpace(strings.TrimSuffix(inner, ")"))
	if countColumnDefs(inner) == 0 {
		return schema.NewError(schema.ErrCodeValidationFailed,
			"CREATE TABLE defines no columns")
	}

	return nil
}

// checkBalanced verifies parentheses pair up, ignoring quoted strings.
func checkBalanced(s string) error {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return schema.NewError(schema.ErrCodeValidationFailed,
					"unbalanced parentheses in DDL")
			}
		}
	}
	if depth != 0 || inString {
		return schema.NewError(schema.ErrCodeValidationFailed,
			"unbalanced parentheses in DDL")
	}
	return nil
}

// countColumnDefs counts top-level comma-separated entries that look like
// column definitions (identifier followed by a type token).
func countColumnDefs(body string) int {
	count := 0
	depth := 0
	start := 0
	inString := false

	flush := func(segment string) {
		fields := strings.Fields(strings.TrimSpace(segment))
		if len(fields) < 2 {
			return
		}
		first := strings.ToUpper(fields[0])
		// Table-level constraints are not column definitions.
		switch first {
		case "PRIMARY", "FOREIGN", "UNIQUE", "CHECK", "CONSTRAINT":
			return
		}
		if identifierRe.MatchString(strings.Trim(fields[0], `"`)) {
			count++
		}
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			flush(body[start:i])
			start = i + 1
		}
	}
	flush(body[start:])
	return count
}
