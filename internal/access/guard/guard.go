// Package guard is the single gate in front of every protected operation.
//
// Authenticate turns an Authorization header into a validated session.
// Authorize then decides, for one resource owner and action, whether that
// session may proceed: the caller's kind is read fresh from the directory
// and checked against policy, a subject may act on its own resources, and an
// operator acting for a subject needs a live consent grant for exactly that
// subject.
package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
)

// Outcome is the coarse result of a guard decision.
type Outcome int

const (
	Unauthenticated Outcome = iota
	Forbidden
	Authorized
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

// Decision is what the guard concluded. Reason is one of the entity errors
// and is meant for logs and machine readable codes, never for raw output.
type Decision struct {
	Outcome   Outcome
	Claims    jwt.Claims
	Session   entity.Session
	Principal entity.Principal
	Grant     *entity.ConsentGrant
	Reason    error
}

// Allowed reports whether the decision lets the caller proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Authorized
}

// Sessions validates session tokens.
type Sessions interface {
	Validate(ctx context.Context, token string) (jwt.Claims, error)
}

// Directory resolves principals.
type Directory interface {
	Principal(ctx context.Context, id string) (entity.Principal, error)
}

// Policy answers whether a principal kind may act on an object.
type Policy interface {
	Allowed(kind, object, action string) (bool, error)
}

// Grants checks delegated consent.
type Grants interface {
	CheckGrant(ctx context.Context, op entity.Session, subjectID string) (entity.ConsentGrant, error)
}

// Guard implements authentication and authorization decisions.
type Guard struct {
	sessions  Sessions
	directory Directory
	policy    Policy
	grants    Grants
}

// New builds a Guard.
func New(sessions Sessions, directory Directory, policy Policy, grants Grants) *Guard {
	return &Guard{
		sessions:  sessions,
		directory: directory,
		policy:    policy,
		grants:    grants,
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate validates the bearer credential in header. The returned error
// is only set for infrastructure faults; credential problems are reported as
// an Unauthenticated decision.
func (g *Guard) Authenticate(ctx context.Context, header string) (Decision, error) {
	token, ok := BearerToken(header)
	if !ok {
		return Decision{Outcome: Unauthenticated, Reason: entity.ErrUnauthorized}, nil
	}

	claims, err := g.sessions.Validate(ctx, token)
	if err != nil {
		if isCredentialError(err) {
			return Decision{Outcome: Unauthenticated, Reason: err}, nil
		}
		return Decision{}, err
	}

	return Decision{Outcome: Authorized, Claims: claims, Session: entity.SessionFromClaims(claims)}, nil
}

// AuthorizeInput describes one protected action.
type AuthorizeInput struct {
	Session entity.Session
	// OwnerID is the subject owning the resource; empty for resources that
	// belong to nobody in particular.
	OwnerID string
	Object  string
	Action  string
}

// Authorize decides whether in.Session may perform in.Action on in.Object
// owned by in.OwnerID.
func (g *Guard) Authorize(ctx context.Context, in AuthorizeInput) (Decision, error) {
	d := Decision{Session: in.Session}
	if in.Session.Subject == "" {
		d.Outcome, d.Reason = Unauthenticated, entity.ErrUnauthorized
		return d, nil
	}

	principal, err := g.directory.Principal(ctx, in.Session.Subject)
	if errors.Is(err, entity.ErrPrincipalNotFound) {
		d.Outcome, d.Reason = Unauthenticated, entity.ErrUnauthorized
		return d, nil
	}
	if err != nil {
		return Decision{}, err
	}
	d.Principal = principal

	allowed, err := g.policy.Allowed(principal.Kind.String(), in.Object, in.Action)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		d.Outcome, d.Reason = Forbidden, entity.ErrUnauthorized
		return d, nil
	}

	if in.OwnerID == "" || in.OwnerID == principal.ID {
		d.Outcome = Authorized
		return d, nil
	}

	if principal.Kind != entity.PrincipalKindOperator {
		d.Outcome, d.Reason = Forbidden, entity.ErrUnauthorized
		return d, nil
	}

	grant, err := g.grants.CheckGrant(ctx, in.Session, in.OwnerID)
	switch {
	case err == nil:
		d.Outcome, d.Grant = Authorized, &grant
		return d, nil
	case errors.Is(err, entity.ErrNoGrant),
		errors.Is(err, entity.ErrGrantExpired),
		errors.Is(err, entity.ErrSubjectMismatch):
		d.Outcome, d.Reason = Forbidden, err
		return d, nil
	default:
		return Decision{}, err
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, entity.ErrTokenMalformed) ||
		errors.Is(err, entity.ErrTokenSignatureInvalid) ||
		errors.Is(err, entity.ErrTokenExpired) ||
		errors.Is(err, entity.ErrTokenRevoked)
}
