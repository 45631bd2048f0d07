package kvstore

import (
	"context"
	"time"
)

// Namespaced prefixes every key before handing it to the wrapped Store.
type Namespaced struct {
	store  Store
	prefix string
}

// Namespace returns a view of store in which key k is stored as prefix+k.
func Namespace(store Store, prefix string) *Namespaced {
	return &Namespaced{store: store, prefix: prefix}
}

// Put implements Store.
func (n *Namespaced) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Put(ctx, n.prefix+key, value, ttl)
}

// Add implements Store.
func (n *Namespaced) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.store.Add(ctx, n.prefix+key, value, ttl)
}

// Get implements Store.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

// Delete implements Store.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

// Exists implements Store.
func (n *Namespaced) Exists(ctx context.Context, key string) (bool, error) {
	return n.store.Exists(ctx, n.prefix+key)
}

// Update implements Store.
func (n *Namespaced) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return n.store.Update(ctx, n.prefix+key, fn)
}
