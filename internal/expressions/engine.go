package expressions

import "context"

// Engine evaluates expressions over profiling and mapping data.
// Three implementations: CEL (quality rules), GoJQ (response reshaping),
// Expr (transform expressions).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
