package services

import (
	"context"
	"errors"
	"testing"
)

func TestLocalRunLimiter(t *testing.T) {
	limiter := NewRunLimiter(nil, 2)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	if err := limiter.Acquire(ctx); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("expected ErrTooManyRuns, got %v", err)
	}

	limiter.Release(ctx)

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("expected a slot after release, got %v", err)
	}
}

func TestLocalRunLimiterReleaseFloor(t *testing.T) {
	limiter := NewRunLimiter(nil, 1)
	ctx := context.Background()

	// Extra releases must not create phantom slots.
	limiter.Release(ctx)
	limiter.Release(ctx)

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := limiter.Acquire(ctx); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("expected ErrTooManyRuns, got %v", err)
	}
}
