// Package otp issues and verifies one-time passcodes for a single purpose.
//
// An Engine owns one key space of the store. Records hold only a salted hash
// of the code; verification runs inside the store's atomic update so a code
// is consumed at most once even when verified concurrently from several
// instances.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/hash"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	otpcode "github.com/shandysiswandi/carepass/internal/pkg/otp"
)

// ErrEmptyIdentifier is returned when Request or Verify gets a blank identifier.
var ErrEmptyIdentifier = errors.New("otp: identifier is required")

const (
	saltSize           = 16
	defaultMaxAttempts = 3
	minExpiredGrace    = time.Minute
)

// Deliverer sends a freshly issued code out of band. Its error is logged and
// never changes the engine's state.
type Deliverer interface {
	Deliver(ctx context.Context, d entity.Delivery) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, d entity.Delivery) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, d entity.Delivery) error {
	return f(ctx, d)
}

// Config parameterizes one engine instance.
type Config struct {
	Purpose     entity.Purpose
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// ExpiredGrace keeps a record past its TTL so late verifies report
	// Expired rather than NotFound. Zero picks max(TTL, 1m).
	ExpiredGrace time.Duration
}

// Dependency groups the collaborators of an Engine.
type Dependency struct {
	Store     kvstore.Store
	Hasher    hash.Hasher
	Clock     clock.Clocker
	Deliverer Deliverer
}

// RequestInput asks for a new code.
type RequestInput struct {
	// Identifier keys the record.
	Identifier string
	// Channel is where the code goes; empty means Identifier.
	Channel string
	// Tags are returned by a successful Verify.
	Tags map[string]string
}

// VerifyInput checks a candidate code.
type VerifyInput struct {
	Identifier string
	Candidate  string
	// Require lists tags the record must carry. A mismatch is reported as
	// not found and leaves the record untouched.
	Require map[string]string
}

// Result is the outcome of a successful verification.
type Result struct {
	Identifier string
	Tags       map[string]string
}

// Engine issues and verifies codes for one purpose.
type Engine struct {
	cfg       Config
	store     kvstore.Store
	hasher    hash.Hasher
	clock     clock.Clocker
	deliverer Deliverer
	codes     otpcode.Generator
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config, dep Dependency) (*Engine, error) {
	if cfg.Purpose == "" {
		return nil, errors.New("otp: purpose is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("otp: %s ttl must be positive", cfg.Purpose)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.ExpiredGrace <= 0 {
		cfg.ExpiredGrace = max(cfg.TTL, minExpiredGrace)
	}

	codes, err := otpcode.NewNumeric(cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("otp: %s: %w", cfg.Purpose, err)
	}

	if dep.Store == nil || dep.Hasher == nil || dep.Clock == nil {
		return nil, errors.New("otp: store, hasher and clock are required")
	}
	if dep.Deliverer == nil {
		dep.Deliverer = DelivererFunc(func(context.Context, entity.Delivery) error { return nil })
	}

	return &Engine{
		cfg:       cfg,
		store:     kvstore.Namespace(dep.Store, "otp:"+cfg.Purpose.String()+":"),
		hasher:    dep.Hasher,
		clock:     dep.Clock,
		deliverer: dep.Deliverer,
		codes:     codes,
	}, nil
}

// Purpose returns the engine's purpose.
func (e *Engine) Purpose() entity.Purpose {
	return e.cfg.Purpose
}

// TTL returns how long an issued code stays valid.
func (e *Engine) TTL() time.Duration {
	return e.cfg.TTL
}

// Request issues a code for in.Identifier, replacing any pending one, and
// hands it to the Deliverer. It returns the validity window.
func (e *Engine) Request(ctx context.Context, in RequestInput) (time.Duration, error) {
	id := entity.NormalizeIdentifier(in.Identifier)
	if id == "" {
		return 0, ErrEmptyIdentifier
	}

	code, err := e.codes.Generate()
	if err != nil {
		return 0, err
	}

	salt, err := hash.Salt(saltSize)
	if err != nil {
		return 0, err
	}

	rec := entity.OTPRecord{
		Identifier: id,
		SecretHash: e.hasher.Sum(salt, []byte(code)),
		Salt:       salt,
		ExpiresAt:  e.clock.Now().Add(e.cfg.TTL),
		Tags:       maps.Clone(in.Tags),
	}

	value, err := kvstore.Encode(rec)
	if err != nil {
		return 0, err
	}

	if err := e.store.Put(ctx, id, value, e.cfg.TTL+e.cfg.ExpiredGrace); err != nil {
		return 0, err
	}

	channel := in.Channel
	if channel == "" {
		channel = in.Identifier
	}
	if err := e.deliverer.Deliver(ctx, entity.Delivery{
		Purpose:  e.cfg.Purpose,
		Channel:  channel,
		Code:     code,
		Validity: e.cfg.TTL,
	}); err != nil {
		slog.WarnContext(ctx, "otp delivery failed", "purpose", e.cfg.Purpose, "channel", channel, "error", err)
	}

	return e.cfg.TTL, nil
}

// Verify checks a candidate against the pending record of in.Identifier.
//
// A match consumes the record. A miss counts an attempt; the attempt that
// reaches the ceiling returns ErrOTPTooManyAttempts and destroys the record.
// A record past its TTL returns ErrOTPExpired and is destroyed.
func (e *Engine) Verify(ctx context.Context, in VerifyInput) (Result, error) {
	id := entity.NormalizeIdentifier(in.Identifier)
	if id == "" {
		return Result{}, ErrEmptyIdentifier
	}

	var (
		result  Result
		outcome error
	)

	err := e.store.Update(ctx, id, func(current []byte) (kvstore.Mutation, error) {
		result, outcome = Result{}, nil

		var rec entity.OTPRecord
		if err := kvstore.Decode(current, &rec); err != nil {
			slog.ErrorContext(ctx, "otp record is corrupt, discarding", "purpose", e.cfg.Purpose, "error", err)
			outcome = entity.ErrOTPNotFound
			return kvstore.RemoveMutation(), nil
		}

		for k, v := range in.Require {
			if rec.Tags[k] != v {
				outcome = entity.ErrOTPNotFound
				return kvstore.KeepMutation(), nil
			}
		}

		if !e.clock.Now().Before(rec.ExpiresAt) {
			outcome = entity.ErrOTPExpired
			return kvstore.RemoveMutation(), nil
		}

		if hash.Equal(e.hasher.Sum(rec.Salt, []byte(in.Candidate)), rec.SecretHash) {
			result = Result{Identifier: rec.Identifier, Tags: rec.Tags}
			return kvstore.RemoveMutation(), nil
		}

		rec.Attempts++
		if rec.Attempts >= e.cfg.MaxAttempts {
			outcome = entity.ErrOTPTooManyAttempts
			return kvstore.RemoveMutation(), nil
		}

		value, err := kvstore.Encode(rec)
		if err != nil {
			return kvstore.Mutation{}, err
		}
		outcome = entity.ErrOTPInvalid
		return kvstore.ReplaceMutation(value), nil
	})
	if errors.Is(err, kvstore.ErrNotFound) {
		return Result{}, entity.ErrOTPNotFound
	}
	if err != nil {
		return Result{}, err
	}
	if outcome != nil {
		return Result{}, outcome
	}

	return result, nil
}

// Discard drops any pending record for identifier.
func (e *Engine) Discard(ctx context.Context, identifier string) error {
	return e.store.Delete(ctx, entity.NormalizeIdentifier(identifier))
}
