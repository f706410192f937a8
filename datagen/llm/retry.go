package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"datagen_platform/utils/logging"
)

// PermanentError marks a backend failure that retrying cannot fix (bad
// request, invalid credentials). The retry layer fails fast on these.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

const retryBaseDelay = 2 * time.Second

type retryProvider struct {
	inner     Provider
	attempts  int
	baseDelay time.Duration
}

// WithRetries bounds transport failures to a fixed retry budget with
// exponential backoff (base 2s, doubling per attempt). Once the budget is
// exhausted the request surfaces as a permanent failure to the caller, which
// drops that single request and continues.
func WithRetries(inner Provider, attempts int) Provider {
	if attempts < 1 {
		attempts = 1
	}
	return &retryProvider{inner: inner, attempts: attempts, baseDelay: retryBaseDelay}
}

func (p *retryProvider) Generate(ctx context.Context, req *Request) (RawGenerations, error) {
	var lastErr error

	delay := p.baseDelay
	for attempt := 0; attempt < p.attempts; attempt++ {
		outputs, err := p.inner.Generate(ctx, req)
		if err == nil {
			return outputs, nil
		}

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			return nil, err
		}

		lastErr = err
		if attempt == p.attempts-1 {
			break
		}

		slog.Info("retrying generation request", "attempt", attempt+1, "delay", delay.String(), "error", err, "code", logging.GEN_DISPATCH)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("generation request failed after %d attempts: %w", p.attempts, lastErr)
}
