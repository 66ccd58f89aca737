package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeInvalidArgument      = "INVALID_ARGUMENT"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeSourceUnavailable    = "SOURCE_UNAVAILABLE"
	ErrCodeInferenceUnavailable = "INFERENCE_UNAVAILABLE"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodePersistenceFailed    = "PERSISTENCE_FAILED"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeRetryExhausted       = "RETRY_EXHAUSTED"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeStore                = "STORE_ERROR"
	ErrCodeCircuitOpen          = "CIRCUIT_OPEN"
)

// PipelineError is the structured error type for all schemaflow operations.
type PipelineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Stage   string         `json:"stage,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error code denotes a transient condition
// worth retrying. Only collaborator transience qualifies; validation,
// argument, and source errors are final.
func (e *PipelineError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeInferenceUnavailable, ErrCodeTimeout, ErrCodeCircuitOpen:
		return true
	default:
		return false
	}
}

// NewError creates a new PipelineError.
func NewError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

// NewErrorf creates a new PipelineError with a formatted message.
func NewErrorf(code, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches the owning stage name to the error.
func (e *PipelineError) WithStage(stage StageName) *PipelineError {
	e.Stage = string(stage)
	return e
}

// WithCause attaches an underlying cause.
func (e *PipelineError) WithCause(err error) *PipelineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PipelineError) WithDetails(details map[string]any) *PipelineError {
	e.Details = details
	return e
}
