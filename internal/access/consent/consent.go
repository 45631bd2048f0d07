// Package consent runs the delegated consent flow: an operator asks for a
// code on a subject's contact channel, and the verified code attaches a
// time-boxed grant for that one subject to the operator's session.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
)

const defaultExpiredGrace = 5 * time.Minute

// Directory resolves principals by id.
type Directory interface {
	Principal(ctx context.Context, id string) (entity.Principal, error)
}

type engine interface {
	Request(ctx context.Context, in otp.RequestInput) (time.Duration, error)
	Verify(ctx context.Context, in otp.VerifyInput) (otp.Result, error)
}

// Config parameterizes the Manager.
type Config struct {
	// GrantTTL is the lifetime of a grant, capped at the session's expiry.
	GrantTTL time.Duration
	// RequireRegisteredChannel restricts consent codes to the subject's
	// registered contacts.
	RequireRegisteredChannel bool
	// ExpiredGrace keeps an expired grant readable so checks can report
	// ErrGrantExpired instead of ErrNoGrant.
	ExpiredGrace time.Duration
}

// Dependency groups the collaborators of a Manager.
type Dependency struct {
	Engine    engine
	Store     kvstore.Store
	Directory Directory
	Clock     clock.Clocker
	IDs       uid.NumberID
}

// Manager owns consent grants, one per operator session.
type Manager struct {
	cfg    Config
	engine engine
	grants kvstore.Store
	dir    Directory
	clock  clock.Clocker
	ids    uid.NumberID
}

// NewManager builds a Manager. Grants live in store under "grant:".
func NewManager(cfg Config, dep Dependency) (*Manager, error) {
	if cfg.GrantTTL <= 0 {
		return nil, errors.New("consent: grant ttl must be positive")
	}
	if cfg.ExpiredGrace <= 0 {
		cfg.ExpiredGrace = defaultExpiredGrace
	}
	if dep.Engine == nil || dep.Store == nil || dep.Directory == nil || dep.Clock == nil || dep.IDs == nil {
		return nil, errors.New("consent: engine, store, directory, clock and ids are required")
	}

	return &Manager{
		cfg:    cfg,
		engine: dep.Engine,
		grants: kvstore.Namespace(dep.Store, "grant:"),
		dir:    dep.Directory,
		clock:  dep.Clock,
		ids:    dep.IDs,
	}, nil
}

// RequestOTP sends a consent code to channel on behalf of op. The code is
// bound to subjectID and to the requesting operator.
func (m *Manager) RequestOTP(ctx context.Context, op entity.Session, subjectID, channel string) (time.Duration, error) {
	subject, err := m.dir.Principal(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	if subject.Kind != entity.PrincipalKindSubject {
		return 0, entity.ErrPrincipalNotFound
	}
	if m.cfg.RequireRegisteredChannel && !subject.HasContact(channel) {
		return 0, entity.ErrChannelNotRegistered
	}

	return m.engine.Request(ctx, otp.RequestInput{
		Identifier: channel,
		Channel:    channel,
		Tags: map[string]string{
			entity.TagSubjectID:  subject.ID,
			entity.TagOperatorID: op.Subject,
		},
	})
}

// VerifyOTP checks the consent code and, on success, replaces the grant of
// op's session with one for the subject the code was issued for.
func (m *Manager) VerifyOTP(ctx context.Context, op entity.Session, channel, candidate string) (entity.ConsentGrant, error) {
	res, err := m.engine.Verify(ctx, otp.VerifyInput{
		Identifier: channel,
		Candidate:  candidate,
		Require:    map[string]string{entity.TagOperatorID: op.Subject},
	})
	if err != nil {
		return entity.ConsentGrant{}, err
	}

	subjectID := res.Tags[entity.TagSubjectID]
	if subjectID == "" {
		return entity.ConsentGrant{}, entity.ErrOTPNotFound
	}

	now := m.clock.Now()
	expiresAt := now.Add(m.cfg.GrantTTL)
	if !op.ExpiresAt.IsZero() && op.ExpiresAt.Before(expiresAt) {
		expiresAt = op.ExpiresAt
	}
	if !expiresAt.After(now) {
		return entity.ConsentGrant{}, entity.ErrGrantExpired
	}

	grant := entity.ConsentGrant{
		ID:         m.ids.Generate(),
		OperatorID: op.Subject,
		SubjectID:  subjectID,
		SessionID:  op.TokenID,
		GrantedAt:  now,
		ExpiresAt:  expiresAt,
	}

	value, err := kvstore.Encode(grant)
	if err != nil {
		return entity.ConsentGrant{}, fmt.Errorf("consent: encode grant: %w", err)
	}

	if err := m.grants.Put(ctx, op.TokenID, value, expiresAt.Sub(now)+m.cfg.ExpiredGrace); err != nil {
		return entity.ConsentGrant{}, err
	}

	return grant, nil
}

// Current returns the live grant of op's session.
func (m *Manager) Current(ctx context.Context, op entity.Session) (entity.ConsentGrant, error) {
	raw, err := m.grants.Get(ctx, op.TokenID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return entity.ConsentGrant{}, entity.ErrNoGrant
	}
	if err != nil {
		return entity.ConsentGrant{}, err
	}

	var grant entity.ConsentGrant
	if err := kvstore.Decode(raw, &grant); err != nil {
		return entity.ConsentGrant{}, entity.ErrNoGrant
	}
	if grant.OperatorID != op.Subject {
		return entity.ConsentGrant{}, entity.ErrNoGrant
	}
	if !grant.Active(m.clock.Now()) {
		return grant, entity.ErrGrantExpired
	}

	return grant, nil
}

// CheckGrant authorizes op to read subjectID. A live grant for another
// subject is ErrSubjectMismatch, never ErrNoGrant.
func (m *Manager) CheckGrant(ctx context.Context, op entity.Session, subjectID string) (entity.ConsentGrant, error) {
	grant, err := m.Current(ctx, op)
	if err != nil {
		return entity.ConsentGrant{}, err
	}
	if grant.SubjectID != subjectID {
		return entity.ConsentGrant{}, entity.ErrSubjectMismatch
	}
	return grant, nil
}

// RevokeGrant drops the grant of op's session. Revoking twice is fine.
func (m *Manager) RevokeGrant(ctx context.Context, op entity.Session) error {
	return m.grants.Delete(ctx, op.TokenID)
}
