// Package idempotency guards handlers that may see the same message twice.
//
// Brokers deliver at least once, so an OTP delivery event can arrive again
// after a consumer restart. Exec records the outcome of a key in a kvstore and
// refuses to run the same key twice while that record lives.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
)

type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateError      State = "error"
)

func (s State) String() string {
	return string(s)
}

type Idempotency interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

// StateTracker implements Idempotency on top of any kvstore.Store.
type StateTracker struct {
	store kvstore.Store
}

func New(store kvstore.Store) *StateTracker {
	return &StateTracker{store: kvstore.Namespace(store, "idempotency:")}
}

const (
	defaultLockDuration = time.Minute
	defaultStateTTL     = 10 * time.Minute
)

type Option func(*execOptions)

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
}

func WithLockDuration(lockDuration time.Duration) Option {
	return func(o *execOptions) {
		o.lockDuration = lockDuration
	}
}

func WithStateTTL(stateTTL time.Duration) Option {
	return func(o *execOptions) {
		o.stateTTL = stateTTL
	}
}

// Acquire tries to start an operation. StateNone means the caller owns it.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	acquired, err := s.store.Add(ctx, key, []byte(StateInProgress), lockDuration)
	if err != nil {
		return StateError, err
	}
	if acquired {
		return StateNone, nil
	}

	result, err := s.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		// lock expired between Add and Get
		acquired, err = s.store.Add(ctx, key, []byte(StateInProgress), lockDuration)
		if err != nil {
			return StateError, err
		}
		if acquired {
			return StateNone, nil
		}
		return StateError, ErrInvalidState
	}
	if err != nil {
		return StateError, err
	}

	switch State(result) {
	case StateInProgress, StateCompleted, StateFailed:
		return State(result), nil
	default:
		return StateError, ErrInvalidState
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error from fn as final. Exec records the key as failed
// instead of releasing it, so later runs get ErrAlreadyFailed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (s *StateTracker) mark(ctx context.Context, key string, state State, ttl time.Duration) error {
	return s.store.Put(ctx, key, []byte(state), ttl)
}

// Exec runs fn once per key.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	execOpt := &execOptions{
		lockDuration: defaultLockDuration,
		stateTTL:     defaultStateTTL,
	}
	for _, opt := range opts {
		opt(execOpt)
	}
	if execOpt.lockDuration <= 0 {
		execOpt.lockDuration = defaultLockDuration
	}
	if execOpt.stateTTL <= 0 {
		execOpt.stateTTL = defaultStateTTL
	}

	state, err := s.Acquire(ctx, key, execOpt.lockDuration)
	if err != nil {
		return err
	}

	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrAlreadyFailed
	}

	if err := fn(ctx); err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			if markErr := s.mark(ctx, key, StateFailed, execOpt.stateTTL); markErr != nil {
				return markErr
			}
			return perm.err
		}
		// a failed run releases the key so a redelivery can retry it
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return delErr
		}
		return err
	}

	return s.mark(ctx, key, StateCompleted, execOpt.stateTTL)
}
