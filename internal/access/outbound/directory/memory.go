// Package directory resolves principals for the access module.
//
// The directory is the closed set of operators and subjects allowed to sign
// in. It is read on every request, so a removed principal or a changed kind
// takes effect without reissuing tokens.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shandysiswandi/carepass/internal/access/entity"
)

var (
	ErrDuplicateID         = errors.New("directory: duplicate principal id")
	ErrDuplicateIdentifier = errors.New("directory: identifier used by two principals")
	ErrInvalidPrincipal    = errors.New("directory: principal needs an id and a known kind")
)

// Memory is a directory held in process, usually loaded from configuration.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]entity.Principal
	byName map[string]string
}

// NewMemory builds a Memory directory from principals.
func NewMemory(principals []entity.Principal) (*Memory, error) {
	m := &Memory{}
	if err := m.Replace(principals); err != nil {
		return nil, err
	}
	return m, nil
}

// Replace swaps the whole principal set. The old set is kept on error.
func (m *Memory) Replace(principals []entity.Principal) error {
	byID := make(map[string]entity.Principal, len(principals))
	byName := make(map[string]string, len(principals))

	for _, p := range principals {
		if p.ID == "" || !p.Kind.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidPrincipal, p.ID)
		}
		if _, dup := byID[p.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
		}
		byID[p.ID] = p

		names := append([]string{p.ID}, p.Identifiers...)
		for _, name := range names {
			name = entity.NormalizeIdentifier(name)
			if name == "" {
				continue
			}
			if owner, dup := byName[name]; dup && owner != p.ID {
				return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, name)
			}
			byName[name] = p.ID
		}
	}

	m.mu.Lock()
	m.byID, m.byName = byID, byName
	m.mu.Unlock()
	return nil
}

// Principal returns the principal with id.
func (m *Memory) Principal(_ context.Context, id string) (entity.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byID[id]
	if !ok {
		return entity.Principal{}, entity.ErrPrincipalNotFound
	}
	return p, nil
}

// Lookup returns the principal owning a login identifier.
func (m *Memory) Lookup(ctx context.Context, identifier string) (entity.Principal, error) {
	m.mu.RLock()
	id, ok := m.byName[entity.NormalizeIdentifier(identifier)]
	m.mu.RUnlock()
	if !ok {
		return entity.Principal{}, entity.ErrPrincipalNotFound
	}
	return m.Principal(ctx, id)
}
