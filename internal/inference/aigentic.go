package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nexxia-ai/aigentic/ai"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// ModelClient implements Client on top of aigentic models. A default model
// serves unqualified calls; additional named models can be registered for
// prompts that ask for a specific one. Transport and rate-limit failures
// surface as retryable errors; everything else is fatal for the calling
// attempt.
type ModelClient struct {
	defaultModel *ai.Model
	models       map[string]*ai.Model
}

// NewModelClient wraps an aigentic model as the default Client model.
func NewModelClient(defaultModel *ai.Model) *ModelClient {
	return &ModelClient{
		defaultModel: defaultModel,
		models:       make(map[string]*ai.Model),
	}
}

// Register makes a named model selectable via Complete.
func (c *ModelClient) Register(name string, model *ai.Model) {
	c.models[name] = model
}

const classifyInstruction = "You label text samples. Reply with exactly one category name from the list, or NONE if no category applies. Reply with the category name only."

const extractInstruction = "You answer questions about a text sample. Answer each question on its own line, in order, with no numbering and no extra commentary."

// Classify asks the default model to pick one of the categories for the text.
func (c *ModelClient) Classify(ctx context.Context, text string, categories []string) (string, error) {
	prompt := fmt.Sprintf("Categories: %s\n\nText:\n%s", strings.Join(categories, ", "), text)
	msg, err := c.call(ctx, c.defaultModel, classifyInstruction, prompt)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(msg.Content)
	for _, cat := range categories {
		if strings.EqualFold(answer, cat) {
			return cat, nil
		}
	}
	return "", nil
}

// Complete sends the prompt to the named model and returns the response text.
func (c *ModelClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	m := c.defaultModel
	if model != "" {
		named, ok := c.models[model]
		if !ok {
			return "", schema.NewErrorf(schema.ErrCodeInvalidArgument, "unknown model %q", model)
		}
		m = named
	}
	msg, err := c.call(ctx, m, "", prompt)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Extract answers the questions about the text, one answer per question.
func (c *ModelClient) Extract(ctx context.Context, text string, questions []string) ([]string, error) {
	prompt := fmt.Sprintf("Questions:\n%s\n\nText:\n%s", strings.Join(questions, "\n"), text)
	msg, err := c.call(ctx, c.defaultModel, extractInstruction, prompt)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(msg.Content), "\n")
	answers := make([]string, 0, len(questions))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			answers = append(answers, trimmed)
		}
	}
	// Pad or truncate so callers can index answers by question position.
	for len(answers) < len(questions) {
		answers = append(answers, "")
	}
	return answers[:len(questions)], nil
}

func (c *ModelClient) call(ctx context.Context, model *ai.Model, instruction, prompt string) (ai.AIMessage, error) {
	if model == nil {
		return ai.AIMessage{}, schema.NewError(schema.ErrCodeInferenceUnavailable, "no model configured")
	}
	var messages []ai.Message
	if instruction != "" {
		messages = append(messages, ai.SystemMessage{Role: ai.SystemRole, Content: instruction})
	}
	messages = append(messages, ai.UserMessage{Role: ai.UserRole, Content: prompt})

	msg, err := model.Call(ctx, messages, nil)
	if err != nil {
		return ai.AIMessage{}, classifyCallError(err)
	}
	return msg, nil
}

// classifyCallError maps provider errors onto pipeline error codes so retry
// policy can distinguish transient failures from fatal ones.
func classifyCallError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return schema.NewError(schema.ErrCodeTimeout, "model call timed out").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return schema.NewError(schema.ErrCodeCancelled, "model call cancelled").WithCause(err)
	}

	var statusErr *ai.StatusError
	if errors.As(err, &statusErr) && statusErr != nil {
		if statusErr.StatusCode == 429 || statusErr.StatusCode >= 500 {
			return schema.NewErrorf(schema.ErrCodeInferenceUnavailable,
				"model call failed with status %d: %s", statusErr.StatusCode, statusErr.ErrorMessage).
				WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeValidationFailed,
			"model rejected request with status %d: %s", statusErr.StatusCode, statusErr.ErrorMessage).
			WithCause(err)
	}

	return schema.NewError(schema.ErrCodeInferenceUnavailable, "model call failed").WithCause(err)
}

var _ Client = (*ModelClient)(nil)
