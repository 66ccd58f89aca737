package inference

import "context"

// Client is the model-call surface the pipeline stages depend on. Calls are
// stateless and carry no ordering guarantee. Every call counts as one
// resource unit against the owning stage attempt.
type Client interface {
	// Classify asks the model to assign one of the given categories to the
	// text, returning the matched category or "" when none applies.
	Classify(ctx context.Context, text string, categories []string) (string, error)

	// Complete sends a prompt to the named model and returns the raw
	// response text. An empty model name selects the default model.
	Complete(ctx context.Context, model, prompt string) (string, error)

	// Extract answers the given questions about the text, one answer per
	// question, in order.
	Extract(ctx context.Context, text string, questions []string) ([]string, error)
}
