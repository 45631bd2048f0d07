package app

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/carepass/internal/access"
	"github.com/shandysiswandi/carepass/internal/notification"
	"github.com/shandysiswandi/carepass/internal/pkg/authz"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
	"github.com/shandysiswandi/carepass/internal/pkg/hash"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/mail"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/pkg/router"
	"github.com/shandysiswandi/carepass/internal/pkg/sms"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	configPath string
	config     config.Config
	ins        instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	hasher    hash.Hasher
	uid       uid.NumberID
	uuid      uid.StringID
	jwt       jwt.Signer
	policy    *authz.Enforcer

	// resources
	dbConn      *pgxpool.Pool
	cacheConn   *redis.Client
	store       kvstore.Store
	directory   access.Directory
	policyStore *authz.PostgresStore
	mail        mail.Mail
	sms         sms.Sender
	messaging   messaging.Messaging

	// modules
	notification *notification.Module
	access       *access.Module

	// server
	router     *router.Router
	httpServer *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application from the config file at configPath and
// returns an App instance. An empty path falls back to CONFIG_PATH.
func New(configPath string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:        ctx,
		cancel:     cancel,
		configPath: configPath,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initJWT()
	app.initStore()
	app.initDirectory()
	app.initPolicy()
	app.initMail()
	app.initSMS()
	app.initMessaging()
	app.initModules()
	app.initHTTPServer()
	app.initReload()
	app.initClosers()

	return app
}
