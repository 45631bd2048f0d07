package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
)

func TestExecRunsOnce(t *testing.T) {
	// Arrange
	ctx := context.Background()
	tracker := New(kvstore.NewMemory(clock.New()))
	calls := 0
	fn := func(context.Context) error {
		calls++
		return nil
	}

	// Act
	first := tracker.Exec(ctx, "evt-1", fn)
	second := tracker.Exec(ctx, "evt-1", fn)

	// Assert
	if first != nil {
		t.Fatalf("first Exec() error = %v", first)
	}
	if !errors.Is(second, ErrAlreadyCompleted) {
		t.Fatalf("second Exec() error = %v", second)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestExecFailureAllowsRetry(t *testing.T) {
	// Arrange
	ctx := context.Background()
	tracker := New(kvstore.NewMemory(clock.New()))
	boom := errors.New("smtp down")

	// Act
	first := tracker.Exec(ctx, "evt-2", func(context.Context) error { return boom })
	second := tracker.Exec(ctx, "evt-2", func(context.Context) error { return nil })

	// Assert
	if !errors.Is(first, boom) {
		t.Fatalf("first Exec() error = %v", first)
	}
	if second != nil {
		t.Fatalf("second Exec() error = %v", second)
	}
}

func TestExecPermanentFailureIsRecorded(t *testing.T) {
	// Arrange
	ctx := context.Background()
	tracker := New(kvstore.NewMemory(clock.New()))
	bad := errors.New("unknown channel")
	runs := 0

	// Act
	first := tracker.Exec(ctx, "evt-3", func(context.Context) error {
		runs++
		return Permanent(bad)
	})
	second := tracker.Exec(ctx, "evt-3", func(context.Context) error {
		runs++
		return nil
	})
	state, err := tracker.Acquire(ctx, "evt-3", time.Minute)

	// Assert
	if !errors.Is(first, bad) {
		t.Fatalf("first Exec() error = %v, want %v", first, bad)
	}
	if !errors.Is(second, ErrAlreadyFailed) {
		t.Fatalf("second Exec() error = %v, want %v", second, ErrAlreadyFailed)
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if err != nil || state != StateFailed {
		t.Fatalf("Acquire() = %s, %v, want %s", state, err, StateFailed)
	}
}

func TestPermanentNil(t *testing.T) {
	if err := Permanent(nil); err != nil {
		t.Fatalf("Permanent(nil) = %v, want nil", err)
	}
}

func TestAcquireInProgress(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tracker := New(kvstore.NewMemory(clk))

	// Act
	s1, _ := tracker.Acquire(ctx, "k", time.Minute)
	s2, _ := tracker.Acquire(ctx, "k", time.Minute)
	clk.Advance(2 * time.Minute)
	s3, _ := tracker.Acquire(ctx, "k", time.Minute)

	// Assert
	if s1 != StateNone || s2 != StateInProgress || s3 != StateNone {
		t.Fatalf("states = %s %s %s", s1, s2, s3)
	}
}
