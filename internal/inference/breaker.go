package inference

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// CircuitState represents the state of the breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker around model calls.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive retryable failures
	// before opening the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a test call is
	// allowed through.
	Cooldown time.Duration
	// HalfOpenMax is the number of test calls allowed in half-open state.
	HalfOpenMax int
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// BreakerClient wraps a Client with a circuit breaker. When the provider
// keeps failing, subsequent calls are rejected immediately with a retryable
// error instead of burning attempts against a dead endpoint.
type BreakerClient struct {
	inner  Client
	config BreakerConfig

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
}

// NewBreakerClient wraps the given Client with circuit breaking.
func NewBreakerClient(inner Client, config BreakerConfig) *BreakerClient {
	return &BreakerClient{inner: inner, config: config}
}

func (b *BreakerClient) Classify(ctx context.Context, text string, categories []string) (string, error) {
	if err := b.allow(); err != nil {
		return "", err
	}
	out, err := b.inner.Classify(ctx, text, categories)
	b.record(err)
	return out, err
}

func (b *BreakerClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	if err := b.allow(); err != nil {
		return "", err
	}
	out, err := b.inner.Complete(ctx, model, prompt)
	b.record(err)
	return out, err
}

func (b *BreakerClient) Extract(ctx context.Context, text string, questions []string) ([]string, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	out, err := b.inner.Extract(ctx, text, questions)
	b.record(err)
	return out, err
}

// State returns the current circuit state, transitioning open to half-open
// when the cooldown has elapsed.
func (b *BreakerClient) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && time.Since(b.lastFailureTime) >= b.config.Cooldown {
		b.state = CircuitHalfOpen
		b.halfOpenAttempts = 0
	}
	return b.state
}

func (b *BreakerClient) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(b.lastFailureTime) >= b.config.Cooldown {
			b.state = CircuitHalfOpen
			b.halfOpenAttempts = 1 // this call counts as the first test call
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"model circuit open after %d consecutive failures", b.consecutiveFailures).
			WithDetails(map[string]any{
				"state":              b.state.String(),
				"cooldown_remaining": (b.config.Cooldown - time.Since(b.lastFailureTime)).String(),
			})

	case CircuitHalfOpen:
		if b.halfOpenAttempts >= b.config.HalfOpenMax {
			return schema.NewError(schema.ErrCodeCircuitOpen,
				"model circuit half-open: max test calls reached")
		}
		b.halfOpenAttempts++
		return nil
	}
	return nil
}

// record updates breaker state from the call outcome. Only retryable provider
// failures trip the breaker; validation errors and cancellations do not.
func (b *BreakerClient) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveFailures = 0
		b.halfOpenAttempts = 0
		b.state = CircuitClosed
		return
	}

	var perr *schema.PipelineError
	if errors.As(err, &perr) && !perr.IsRetryable() {
		return
	}

	b.consecutiveFailures++
	b.lastFailureTime = time.Now()

	if b.state == CircuitHalfOpen || b.consecutiveFailures >= b.config.FailureThreshold {
		b.state = CircuitOpen
	}
}

var _ Client = (*BreakerClient)(nil)
