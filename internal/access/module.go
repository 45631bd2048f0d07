package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/consent"
	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/guard"
	"github.com/shandysiswandi/carepass/internal/access/inbound"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/access/outbound/delivery"
	"github.com/shandysiswandi/carepass/internal/access/session"
	"github.com/shandysiswandi/carepass/internal/access/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/authz"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
	"github.com/shandysiswandi/carepass/internal/pkg/hash"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/pkg/router"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

const (
	DeliveryDirect = "direct"
	DeliveryBroker = "broker"
)

var ErrNoDeliverer = errors.New("access: direct delivery needs a deliver function")

// Directory resolves principals by id and by login identifier.
type Directory interface {
	Principal(ctx context.Context, id string) (entity.Principal, error)
	Lookup(ctx context.Context, identifier string) (entity.Principal, error)
}

// DeliverFunc hands a code to the notification side in process.
type DeliverFunc func(ctx context.Context, purpose, channel, code string, validFor time.Duration) error

type Dependency struct {
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Store      kvstore.Store              `validate:"required"`
	Hasher     hash.Hasher                `validate:"required"`
	Signer     jwt.Signer                 `validate:"required"`
	Directory  Directory                  `validate:"required"`
	Policy     *authz.Enforcer            `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`

	// Publisher carries codes to the notification consumer when
	// delivery.driver is "broker".
	Publisher messaging.Publisher
	// Deliver is used when delivery.driver is "direct".
	Deliver DeliverFunc
}

// Module is the wired access subsystem.
type Module struct {
	uc *usecase.Usecase
}

func New(dep Dependency) (*Module, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	deliverer, err := newDeliverer(dep)
	if err != nil {
		return nil, err
	}

	loginOTP, err := otp.NewEngine(engineConfig(dep.Config, entity.PurposeLogin), otp.Dependency{
		Store:     dep.Store,
		Hasher:    dep.Hasher,
		Clock:     dep.Clock,
		Deliverer: deliverer,
	})
	if err != nil {
		return nil, err
	}

	consentOTP, err := otp.NewEngine(engineConfig(dep.Config, entity.PurposeConsent), otp.Dependency{
		Store:     dep.Store,
		Hasher:    dep.Hasher,
		Clock:     dep.Clock,
		Deliverer: deliverer,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewService(dep.Signer, dep.Store, dep.Clock)

	grants, err := consent.NewManager(consent.Config{
		GrantTTL:                 dep.Config.GetSecond("consent.grant_ttl_seconds"),
		RequireRegisteredChannel: dep.Config.GetBool("consent.require_registered_channel"),
		ExpiredGrace:             dep.Config.GetSecond("consent.expired_grace_seconds"),
	}, consent.Dependency{
		Engine:    consentOTP,
		Store:     dep.Store,
		Directory: dep.Directory,
		Clock:     dep.Clock,
		IDs:       dep.UID,
	})
	if err != nil {
		return nil, err
	}

	uc := usecase.New(usecase.Dependency{
		LoginOTP:   loginOTP,
		ConsentTTL: consentOTP.TTL(),
		Sessions:   sessions,
		Consent:    grants,
		Guard:      guard.New(sessions, dep.Directory, dep.Policy, grants),
		Directory:  dep.Directory,
		Validator:  dep.Validator,
		Config:     dep.Config,
		Clock:      dep.Clock,
		Instrument: dep.Instrument,
	})

	return &Module{uc: uc}, nil
}

// Authenticate is the router's authenticator.
func (m *Module) Authenticate(ctx context.Context, authorization string) (jwt.Claims, error) {
	return m.uc.Authenticate(ctx, authorization)
}

// RegisterHTTPEndpoint mounts the module's routes.
func (m *Module) RegisterHTTPEndpoint(r *router.Router) {
	inbound.RegisterHTTPEndpoint(r, m.uc)
}

func engineConfig(cfg config.Config, purpose entity.Purpose) otp.Config {
	prefix := "otp." + purpose.String() + "."
	return otp.Config{
		Purpose:      purpose,
		Length:       cfg.GetInt(prefix + "length"),
		TTL:          cfg.GetSecond(prefix + "ttl_seconds"),
		MaxAttempts:  cfg.GetInt(prefix + "max_attempts"),
		ExpiredGrace: cfg.GetSecond(prefix + "expired_grace_seconds"),
	}
}

func newDeliverer(dep Dependency) (otp.Deliverer, error) {
	switch driver := dep.Config.GetString("delivery.driver"); driver {
	case DeliveryBroker:
		if dep.Publisher == nil {
			return nil, errors.New("access: broker delivery needs a publisher")
		}
		return delivery.NewAsync(delivery.NewBroker(dep.Publisher, dep.UUID, dep.Instrument), dep.Goroutine), nil

	case DeliveryDirect, "":
		if dep.Deliver == nil {
			return nil, ErrNoDeliverer
		}
		direct := otp.DelivererFunc(func(ctx context.Context, d entity.Delivery) error {
			return dep.Deliver(ctx, d.Purpose.String(), d.Channel, d.Code, d.Validity)
		})
		return delivery.NewAsync(direct, dep.Goroutine), nil

	default:
		return nil, fmt.Errorf("access: unknown delivery driver %q", driver)
	}
}
