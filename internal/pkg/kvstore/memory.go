package kvstore

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/shandysiswandi/carepass/internal/pkg/clock"
)

const shardCount = 32

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

type memShard struct {
	mu    sync.Mutex
	items map[string]memEntry
}

// Memory is an in-process Store. Keys are spread over mutex-guarded shards so
// unrelated keys do not contend.
type Memory struct {
	clock   clock.Clocker
	shards  [shardCount]*memShard
	evicted *atomic.Int64
}

// NewMemory creates an empty Memory store.
func NewMemory(clk clock.Clocker) *Memory {
	m := &Memory{clock: clk, evicted: atomic.NewInt64(0)}
	for i := range m.shards {
		m.shards[i] = &memShard{items: make(map[string]memEntry)}
	}
	return m
}

func (m *Memory) shard(key string) *memShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// live returns the entry for key, dropping it if it has expired.
// The shard lock must be held.
func (m *Memory) live(s *memShard, key string, now time.Time) (memEntry, bool) {
	e, ok := s.items[key]
	if !ok {
		return memEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.items, key)
		m.evicted.Inc()
		return memEntry{}, false
	}
	return e, true
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	s := m.shard(key)
	s.mu.Lock()
	s.items[key] = memEntry{value: clone(value), expiresAt: m.clock.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Add implements Store.
func (m *Memory) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.clock.Now()
	if _, ok := m.live(s, key, now); ok {
		return false, nil
	}
	s.items[key] = memEntry{value: clone(value), expiresAt: now.Add(ttl)}
	return true, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := m.live(s, key, m.clock.Now())
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.value), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := m.live(s, key, m.clock.Now())
	return ok, nil
}

// Update implements Store. The shard lock is held while fn runs.
func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := m.live(s, key, m.clock.Now())
	if !ok {
		return ErrNotFound
	}

	mut, err := fn(clone(e.value))
	if err != nil {
		return err
	}

	switch mut.Action {
	case Replace:
		s.items[key] = memEntry{value: clone(mut.Value), expiresAt: e.expiresAt}
	case Remove:
		delete(s.items, key)
	}
	return nil
}

// Sweep drops every expired entry and returns how many it removed.
func (m *Memory) Sweep() int {
	now := m.clock.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if !now.Before(e.expiresAt) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	m.evicted.Add(int64(removed))
	return removed
}

// Evicted returns the number of entries dropped for being expired so far.
func (m *Memory) Evicted() int64 {
	return m.evicted.Load()
}

// RegisterMetrics reports the entry count and the evicted total on meter.
func (m *Memory) RegisterMetrics(meter metric.Meter) error {
	entries, err := meter.Int64ObservableGauge("kvstore.memory.entries",
		metric.WithDescription("Entries held by the in-memory store, expired ones included"))
	if err != nil {
		return err
	}
	evicted, err := meter.Int64ObservableCounter("kvstore.memory.evicted",
		metric.WithDescription("Entries dropped from the in-memory store after expiry"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(entries, int64(m.Len()))
		o.ObserveInt64(evicted, m.Evicted())
		return nil
	}, entries, evicted)
	return err
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Janitor sweeps every interval until ctx is done. It is meant to run on the
// application's goroutine manager.
func (m *Memory) Janitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.DebugContext(ctx, "kvstore sweep", "removed", n)
			}
		}
	}
}
