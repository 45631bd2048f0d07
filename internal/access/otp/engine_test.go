package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/hash"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	count int
}

func (b *inbox) Deliver(_ context.Context, d entity.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codes == nil {
		b.codes = map[string]string{}
	}
	b.codes[d.Channel] = d.Code
	b.count++
	return nil
}

func (b *inbox) code(channel string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[channel]
}

func newEngine(t *testing.T, cfg Config) (*Engine, *clock.Manual, *inbox) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	box := &inbox{}
	if cfg.Purpose == "" {
		cfg.Purpose = entity.PurposeLogin
	}
	if cfg.Length == 0 {
		cfg.Length = 6
	}
	if cfg.TTL == 0 {
		cfg.TTL = 120 * time.Second
	}
	e, err := NewEngine(cfg, Dependency{
		Store:     kvstore.NewMemory(clk),
		Hasher:    hash.NewHMACSHA256("pepper"),
		Clock:     clk,
		Deliverer: box,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e, clk, box
}

func wrong(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestVerifySucceedsExactlyOnce(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{MaxAttempts: 3})
	validity, err := e.Request(ctx, RequestInput{Identifier: "alice", Tags: map[string]string{entity.TagPrincipalID: "EMP001"}})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	code := box.code("alice")

	// Act
	res, err := e.Verify(ctx, VerifyInput{Identifier: "alice", Candidate: code})
	_, again := e.Verify(ctx, VerifyInput{Identifier: "alice", Candidate: code})

	// Assert
	if validity != 120*time.Second {
		t.Fatalf("validity = %v", validity)
	}
	if len(code) != 6 {
		t.Fatalf("code %q should have 6 digits", code)
	}
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if res.Tags[entity.TagPrincipalID] != "EMP001" {
		t.Fatalf("tags = %v", res.Tags)
	}
	if !errors.Is(again, entity.ErrOTPNotFound) {
		t.Fatalf("second Verify() error = %v, want not found", again)
	}
}

func TestWrongAttemptsUpToCeiling(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{MaxAttempts: 3})
	_, _ = e.Request(ctx, RequestInput{Identifier: "bob@example.com"})
	bad := wrong(box.code("bob@example.com"))

	// Act
	var errs []error
	for range 4 {
		_, err := e.Verify(ctx, VerifyInput{Identifier: "bob@example.com", Candidate: bad})
		errs = append(errs, err)
	}

	// Assert
	want := []error{entity.ErrOTPInvalid, entity.ErrOTPInvalid, entity.ErrOTPTooManyAttempts, entity.ErrOTPNotFound}
	for i := range want {
		if !errors.Is(errs[i], want[i]) {
			t.Fatalf("attempt %d error = %v, want %v", i+1, errs[i], want[i])
		}
	}
}

func TestInvalidLeavesRecordRetryable(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{MaxAttempts: 3})
	_, _ = e.Request(ctx, RequestInput{Identifier: "carol"})
	code := box.code("carol")

	// Act
	_, first := e.Verify(ctx, VerifyInput{Identifier: "carol", Candidate: wrong(code)})
	_, second := e.Verify(ctx, VerifyInput{Identifier: "carol", Candidate: code})

	// Assert
	if !errors.Is(first, entity.ErrOTPInvalid) {
		t.Fatalf("first Verify() error = %v", first)
	}
	if second != nil {
		t.Fatalf("second Verify() error = %v", second)
	}
}

func TestExpiredIsNeverInvalid(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, clk, box := newEngine(t, Config{TTL: time.Second})
	_, _ = e.Request(ctx, RequestInput{Identifier: "dave"})
	code := box.code("dave")
	clk.Advance(2 * time.Second)

	// Act
	_, wrongErr := e.Verify(ctx, VerifyInput{Identifier: "dave", Candidate: wrong(code)})
	_, afterErr := e.Verify(ctx, VerifyInput{Identifier: "dave", Candidate: code})

	// Assert
	if !errors.Is(wrongErr, entity.ErrOTPExpired) {
		t.Fatalf("Verify() error = %v, want expired", wrongErr)
	}
	if !errors.Is(afterErr, entity.ErrOTPNotFound) {
		t.Fatalf("Verify() after expiry error = %v, want not found", afterErr)
	}
}

func TestExpiredCorrectCode(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, clk, box := newEngine(t, Config{TTL: time.Second})
	_, _ = e.Request(ctx, RequestInput{Identifier: "erin"})
	clk.Advance(2 * time.Second)

	// Act
	_, err := e.Verify(ctx, VerifyInput{Identifier: "erin", Candidate: box.code("erin")})

	// Assert
	if !errors.Is(err, entity.ErrOTPExpired) {
		t.Fatalf("Verify() error = %v, want expired", err)
	}
}

func TestConcurrentCorrectVerifications(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{})
	_, _ = e.Request(ctx, RequestInput{Identifier: "frank"})
	code := box.code("frank")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	start := make(chan struct{})

	// Act
	for range workers {
		wg.Go(func() {
			<-start
			_, err := e.Verify(ctx, VerifyInput{Identifier: "frank", Candidate: code})
			results <- err
		})
	}
	close(start)
	wg.Wait()
	close(results)

	// Assert
	var ok, notFound int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, entity.ErrOTPNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || notFound != workers-1 {
		t.Fatalf("ok = %d, notFound = %d", ok, notFound)
	}
}

func TestNewRequestOverwritesPending(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{})
	_, _ = e.Request(ctx, RequestInput{Identifier: "gina"})
	first := box.code("gina")
	_, _ = e.Request(ctx, RequestInput{Identifier: "gina"})
	second := box.code("gina")
	if first == second {
		t.Skip("generator produced the same code twice")
	}

	// Act
	_, err := e.Verify(ctx, VerifyInput{Identifier: "gina", Candidate: first})

	// Assert
	if !errors.Is(err, entity.ErrOTPInvalid) {
		t.Fatalf("Verify(old code) error = %v, want invalid", err)
	}
}

func TestRequireTagsMismatchIsNotFound(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{Purpose: entity.PurposeConsent, MaxAttempts: 1})
	_, _ = e.Request(ctx, RequestInput{
		Identifier: "+1-555-0100",
		Tags:       map[string]string{entity.TagSubjectID: "PAT0007", entity.TagOperatorID: "EMP001"},
	})
	code := box.code("+1-555-0100")

	// Act
	_, other := e.Verify(ctx, VerifyInput{Identifier: "+1-555-0100", Candidate: code, Require: map[string]string{entity.TagOperatorID: "EMP002"}})
	res, owner := e.Verify(ctx, VerifyInput{Identifier: "+1-555-0100", Candidate: code, Require: map[string]string{entity.TagOperatorID: "EMP001"}})

	// Assert
	if !errors.Is(other, entity.ErrOTPNotFound) {
		t.Fatalf("Verify(other operator) error = %v", other)
	}
	if owner != nil || res.Tags[entity.TagSubjectID] != "PAT0007" {
		t.Fatalf("Verify(owner) = %+v, %v", res, owner)
	}
}

func TestIdentifierIsNormalized(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e, _, box := newEngine(t, Config{})
	_, _ = e.Request(ctx, RequestInput{Identifier: "  Alice@Example.com "})

	// Act
	_, err := e.Verify(ctx, VerifyInput{Identifier: "alice@example.com", Candidate: box.code("  Alice@Example.com ")})

	// Assert
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestDeliveryFailureDoesNotFailRequest(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Now())
	store := kvstore.NewMemory(clk)
	e, err := NewEngine(Config{Purpose: entity.PurposeLogin, Length: 6, TTL: time.Minute}, Dependency{
		Store:  store,
		Hasher: hash.NewHMACSHA256(""),
		Clock:  clk,
		Deliverer: DelivererFunc(func(context.Context, entity.Delivery) error {
			return errors.New("smtp down")
		}),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// Act
	_, err = e.Request(context.Background(), RequestInput{Identifier: "hank"})

	// Assert
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if ok, _ := store.Exists(context.Background(), "otp:login:hank"); !ok {
		t.Fatal("record should be stored even when delivery fails")
	}
}

func TestRecordNeverHoldsRawCode(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	store := kvstore.NewMemory(clk)
	box := &inbox{}
	e, _ := NewEngine(Config{Purpose: entity.PurposeLogin, Length: 8, TTL: time.Minute}, Dependency{
		Store: store, Hasher: hash.NewHMACSHA256(""), Clock: clk, Deliverer: box,
	})
	_, _ = e.Request(ctx, RequestInput{Identifier: "ivy"})

	// Act
	raw, err := store.Get(ctx, "otp:login:ivy")

	// Assert
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var rec entity.OTPRecord
	if err := kvstore.Decode(raw, &rec); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(rec.SecretHash) == box.code("ivy") || len(rec.Salt) != saltSize {
		t.Fatalf("record = %+v", rec)
	}
}

func TestUnavailableStoreIsNotACredentialFailure(t *testing.T) {
	// Arrange
	e, err := NewEngine(Config{Purpose: entity.PurposeLogin, Length: 6, TTL: time.Minute}, Dependency{
		Store: downStore{}, Hasher: hash.NewHMACSHA256(""), Clock: clock.New(),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// Act
	_, err = e.Verify(context.Background(), VerifyInput{Identifier: "x", Candidate: "123456"})

	// Assert
	if !errors.Is(err, kvstore.ErrUnavailable) {
		t.Fatalf("Verify() error = %v, want unavailable", err)
	}
}

type downStore struct{}

func (downStore) Put(context.Context, string, []byte, time.Duration) error { return kvstore.ErrUnavailable }
func (downStore) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, kvstore.ErrUnavailable
}
func (downStore) Get(context.Context, string) ([]byte, error)  { return nil, kvstore.ErrUnavailable }
func (downStore) Delete(context.Context, string) error         { return kvstore.ErrUnavailable }
func (downStore) Exists(context.Context, string) (bool, error) { return false, kvstore.ErrUnavailable }
func (downStore) Update(context.Context, string, kvstore.UpdateFunc) error {
	return kvstore.ErrUnavailable
}
