package kvstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// runStoreSuite exercises the Store contract. advance must make at least d
// elapse from the store's point of view.
func runStoreSuite(t *testing.T, s Store, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	t.Run("put get delete", func(t *testing.T) {
		// Arrange
		if err := s.Put(ctx, "a", []byte("1"), time.Minute); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		// Act
		got, err := s.Get(ctx, "a")

		// Assert
		if err != nil || string(got) != "1" {
			t.Fatalf("Get() = %q, %v", got, err)
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() after delete error = %v", err)
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("invalid ttl", func(t *testing.T) {
		if err := s.Put(ctx, "z", []byte("1"), 0); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("Put() error = %v", err)
		}
	})

	t.Run("add only when absent", func(t *testing.T) {
		// Act
		first, err1 := s.Add(ctx, "nx", []byte("first"), time.Minute)
		second, err2 := s.Add(ctx, "nx", []byte("second"), time.Minute)

		// Assert
		if err1 != nil || err2 != nil {
			t.Fatalf("Add() errors = %v, %v", err1, err2)
		}
		if !first || second {
			t.Fatalf("Add() = %v, %v", first, second)
		}
		got, _ := s.Get(ctx, "nx")
		if string(got) != "first" {
			t.Fatalf("Get() = %q", got)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		// Arrange
		_ = s.Put(ctx, "short", []byte("x"), 100*time.Millisecond)

		// Act
		advance(300 * time.Millisecond)

		// Assert
		if ok, _ := s.Exists(ctx, "short"); ok {
			t.Fatal("expired key should not exist")
		}
		if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() error = %v", err)
		}
		if err := s.Update(ctx, "short", func([]byte) (Mutation, error) {
			t.Fatal("fn must not run for an expired key")
			return KeepMutation(), nil
		}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Update() error = %v", err)
		}
	})

	t.Run("update mutations", func(t *testing.T) {
		// Arrange
		_ = s.Put(ctx, "u", []byte("v1"), time.Minute)

		// Act & Assert
		if err := s.Update(ctx, "u", func(cur []byte) (Mutation, error) {
			if string(cur) != "v1" {
				t.Fatalf("current = %q", cur)
			}
			return ReplaceMutation([]byte("v2")), nil
		}); err != nil {
			t.Fatalf("Update(replace) error = %v", err)
		}
		got, _ := s.Get(ctx, "u")
		if string(got) != "v2" {
			t.Fatalf("after replace = %q", got)
		}

		if err := s.Update(ctx, "u", func([]byte) (Mutation, error) {
			return KeepMutation(), nil
		}); err != nil {
			t.Fatalf("Update(keep) error = %v", err)
		}

		boom := errors.New("boom")
		if err := s.Update(ctx, "u", func([]byte) (Mutation, error) {
			return RemoveMutation(), boom
		}); !errors.Is(err, boom) {
			t.Fatalf("Update(err) error = %v", err)
		}
		if ok, _ := s.Exists(ctx, "u"); !ok {
			t.Fatal("failed update must not change the key")
		}

		if err := s.Update(ctx, "u", func([]byte) (Mutation, error) {
			return RemoveMutation(), nil
		}); err != nil {
			t.Fatalf("Update(remove) error = %v", err)
		}
		if ok, _ := s.Exists(ctx, "u"); ok {
			t.Fatal("key should be removed")
		}
	})

	t.Run("replace keeps ttl", func(t *testing.T) {
		// Arrange
		_ = s.Put(ctx, "ttl", []byte("a"), 200*time.Millisecond)

		// Act
		_ = s.Update(ctx, "ttl", func([]byte) (Mutation, error) {
			return ReplaceMutation([]byte("b")), nil
		})
		advance(400 * time.Millisecond)

		// Assert
		if ok, _ := s.Exists(ctx, "ttl"); ok {
			t.Fatal("replace must not extend the ttl")
		}
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		// Arrange
		_ = s.Put(ctx, "once", []byte("token"), time.Minute)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)

		// Act
		for range 16 {
			wg.Go(func() {
				var won bool
				err := s.Update(ctx, "once", func([]byte) (Mutation, error) {
					won = true
					return RemoveMutation(), nil
				})
				if err == nil && won {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			})
		}
		wg.Wait()

		// Assert
		if winners != 1 {
			t.Fatalf("winners = %d, want exactly 1", winners)
		}
	})
}
