package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/carepass/internal/access"
	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/outbound/directory"
	"github.com/shandysiswandi/carepass/internal/pkg/authz"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
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
	"github.com/shandysiswandi/carepass/internal/shared/event"
)

const (
	storeMemory = "memory"
	storeRedis  = "redis"

	directoryMemory   = "memory"
	directoryPostgres = "postgres"
)

func (a *App) initConfig() {
	path := a.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		slog.Error("failed to init config", "path", path, "error", err)
		os.Exit(1)
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		//nolint:errcheck,gosec // ignore error
		os.Setenv("TZ", tz)
	}

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		MetricsExporter:  a.config.GetString("instrument.metrics_exporter"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		LogLevel:         a.config.GetString("instrument.log_level"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	hasher, err := hash.New(a.config.GetString("hash.algorithm"), a.config.GetString("hash.pepper"))
	if err != nil {
		slog.Error("failed to init hasher", "error", err)
		os.Exit(1)
	}
	a.hasher = hasher

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator

	snow, err := uid.NewSnowflake(a.config.GetInt64("app.node_id"))
	if err != nil {
		slog.Error("failed to init uid number snowflake", "error", err)
		os.Exit(1)
	}
	a.uid = snow
}

func (a *App) initJWT() {
	signer, err := jwt.NewHS512(jwt.Config{
		Secret:    a.config.GetBinary("session.secret"),
		Issuer:    a.config.GetString("session.issuer"),
		Audiences: a.config.GetArray("session.audiences"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		slog.Error("failed to init session signer, run `carepass keygen` for a key", "error", err)
		os.Exit(1)
	}
	a.jwt = signer
}

func (a *App) initStore() {
	switch driver := strings.TrimSpace(a.config.GetString("store.driver")); driver {
	case storeMemory, "":
		mem := kvstore.NewMemory(a.clock)
		if err := mem.RegisterMetrics(a.ins.Meter("kvstore")); err != nil {
			slog.Warn("failed to register kvstore metrics", "error", err)
		}
		interval := a.config.GetSecond("store.memory.sweep_interval_seconds")
		a.goroutine.Run(a.ctx, "kvstore-janitor", func(ctx context.Context) error {
			return mem.Janitor(ctx, interval)
		})
		a.store = mem

	case storeRedis:
		opt, err := redis.ParseURL(a.config.GetString("store.redis.url"))
		if err != nil {
			slog.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}

		rdb := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Error("failed to init redis", "error", err)
			os.Exit(1)
		}

		var opts []kvstore.RedisOption
		if n := a.config.GetInt64("store.redis.max_retries"); n > 0 {
			opts = append(opts, kvstore.WithMaxRetries(uint64(n)))
		}

		a.cacheConn = rdb
		a.store = kvstore.NewRedis(rdb, opts...)

	default:
		slog.Error("failed to init store, unknown driver", "driver", driver)
		os.Exit(1)
	}
}

func (a *App) configuredPrincipals() ([]entity.Principal, error) {
	var principals []entity.Principal
	if err := a.config.Unmarshal("directory.principals", &principals); err != nil {
		return nil, err
	}
	for i := range principals {
		principals[i].Identifiers = normalizeAll(principals[i].Identifiers)
	}
	return principals, nil
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = entity.NormalizeIdentifier(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (a *App) initDirectory() {
	principals, err := a.configuredPrincipals()
	if err != nil {
		slog.Error("failed to read directory principals", "error", err)
		os.Exit(1)
	}

	switch driver := strings.TrimSpace(a.config.GetString("directory.driver")); driver {
	case directoryMemory, "":
		dir, err := directory.NewMemory(principals)
		if err != nil {
			slog.Error("failed to init memory directory", "error", err)
			os.Exit(1)
		}
		a.directory = dir

	case directoryPostgres:
		a.initDatabase()

		dir := directory.NewPostgres(a.dbConn, a.ins)
		if err := dir.Migrate(a.ctx); err != nil {
			slog.Error("failed to migrate directory schema", "error", err)
			os.Exit(1)
		}
		if len(principals) > 0 {
			if err := dir.Upsert(a.ctx, principals); err != nil {
				slog.Error("failed to seed directory principals", "error", err)
				os.Exit(1)
			}
		}
		a.directory = dir

	default:
		slog.Error("failed to init directory, unknown driver", "driver", driver)
		os.Exit(1)
	}
}

func (a *App) initDatabase() {
	config, err := pgxpool.ParseConfig(a.config.GetString("directory.postgres.url"))
	if err != nil {
		slog.Error("failed to parse DB connection string.", "error", err)
		os.Exit(1)
	}

	if n := a.config.GetInt("directory.postgres.pool.max_conns"); n > 0 {
		config.MaxConns = int32(n)
	}
	if n := a.config.GetInt("directory.postgres.pool.min_conns"); n > 0 {
		config.MinConns = int32(n)
	}
	if d := a.config.GetSecond("directory.postgres.pool.max_conn_lifetime_seconds"); d > 0 {
		config.MaxConnLifetime = d
	}
	if d := a.config.GetSecond("directory.postgres.pool.max_conn_idle_seconds"); d > 0 {
		config.MaxConnIdleTime = d
	}

	pool, err := pgxpool.NewWithConfig(a.ctx, config)
	if err != nil {
		slog.Error("failed to create DB connection pool", "error", err)
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		slog.Error("failed to ping DB", "error", err)
		os.Exit(1)
	}

	a.dbConn = pool
}

// initPolicy loads the configured policies. With a Postgres directory the
// policies live in the database too, and every instance follows changes.
func (a *App) initPolicy() {
	policies, err := authz.ParsePolicies(a.config.GetArray("authz.policies"))
	if err != nil {
		slog.Error("failed to parse authz policies", "error", err)
		os.Exit(1)
	}

	policy, err := authz.New(policies)
	if err != nil {
		slog.Error("failed to init authz policies", "error", err)
		os.Exit(1)
	}
	a.policy = policy

	if a.dbConn == nil {
		return
	}

	store := authz.NewPostgresStore(a.dbConn, a.config.GetString("authz.postgres.channel"))
	if err := store.Migrate(a.ctx); err != nil {
		slog.Error("failed to migrate authz policies", "error", err)
		os.Exit(1)
	}
	if err := store.Seed(a.ctx, policies); err != nil {
		slog.Error("failed to seed authz policies", "error", err)
		os.Exit(1)
	}
	if err := store.Sync(a.ctx, a.policy); err != nil {
		slog.Error("failed to load authz policies", "error", err)
		os.Exit(1)
	}

	a.goroutine.Run(a.ctx, "authz-policy-watcher", func(ctx context.Context) error {
		return store.Watch(ctx, func(ctx context.Context) {
			if err := store.Sync(ctx, a.policy); err != nil {
				slog.ErrorContext(ctx, "failed to reload authz policies", "error", err)
				return
			}
			slog.InfoContext(ctx, "authz policies reloaded")
		})
	})
	a.policyStore = store
}

func (a *App) initMail() {
	if a.config.GetString("mail.host") == "" {
		slog.Warn("mail.host is empty, email notices go to the dev log")
		return
	}

	mail, err := mail.NewSMTP(mail.SMTPConfig{
		Host:               a.config.GetString("mail.host"),
		Port:               a.config.GetInt("mail.port"),
		Username:           a.config.GetString("mail.username"),
		Password:           a.config.GetString("mail.password"),
		From:               a.config.GetString("mail.from"),
		InsecureSkipVerify: a.config.GetBool("mail.insecure_skip_verify"),
	})
	if err != nil {
		slog.Error("failed to init mail", "error", err)
		os.Exit(1)
	}

	a.mail = mail
}

func (a *App) initSMS() {
	if a.config.GetString("sms.endpoint") == "" {
		slog.Warn("sms.endpoint is empty, phone notices go to the dev log")
		return
	}

	a.sms = sms.NewGateway(sms.Config{
		Endpoint: a.config.GetString("sms.endpoint"),
		APIKey:   a.config.GetString("sms.api_key"),
		From:     a.config.GetString("sms.from"),
		DryRun:   a.config.GetBool("sms.dry_run"),
		Timeout:  a.config.GetSecond("sms.timeout_seconds"),
	})
}

func (a *App) initMessaging() {
	if a.config.GetString("delivery.driver") != access.DeliveryBroker {
		return
	}

	driver := a.config.GetString("messaging.driver")
	client, err := messaging.NewFromDriver(driver, messaging.FactoryOptions{
		NSQ: messaging.NSQConfig{
			ProducerAddr:         a.config.GetString("messaging.nsq.producer_addr"),
			ConsumerNSQDAddrs:    a.config.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			ConsumerLookupdAddrs: a.config.GetArray("messaging.nsq.consumer_lookupd_addrs"),
			Config: func() *nsq.Config {
				cfg := nsq.NewConfig()
				if n := a.config.GetInt("messaging.nsq.max_in_flight"); n > 0 {
					cfg.MaxInFlight = n
				}
				if d := a.config.GetSecond("messaging.nsq.dial_timeout_seconds"); d > 0 {
					cfg.DialTimeout = d
				}
				if d := a.config.GetSecond("messaging.nsq.lookupd_poll_interval_seconds"); d > 0 {
					cfg.LookupdPollInterval = d
				}
				return cfg
			}(),
		},
		Kafka: messaging.KafkaConfig{
			Brokers:      a.config.GetArray("messaging.kafka.brokers"),
			BatchTimeout: time.Duration(a.config.GetInt64("messaging.kafka.batch_timeout_ms")) * time.Millisecond,
		},
		NATS: messaging.NATSConfig{
			URL: a.config.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("messaging.nats.name")),
				nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
				nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.RetryOnFailedConnect(a.config.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
	})
	if err != nil {
		slog.Error("failed to init messaging", "error", err, "driver", driver)
		os.Exit(1)
	}

	// the in-process broker drops messages for groups nobody declared yet
	if mem, ok := client.(*messaging.Memory); ok {
		if err := mem.Declare(event.OTPDeliveryDestination, event.OTPDeliveryDestinationConsumerNotification); err != nil {
			slog.Error("failed to declare memory queue", "error", err)
			os.Exit(1)
		}
	}

	a.messaging = client
}

func (a *App) initHTTPServer() {
	var authenticate router.Authenticator
	if a.access != nil {
		authenticate = a.access.Authenticate
	}

	a.router = router.NewRouter(router.Config{
		Config:       a.config,
		UUID:         a.uuid,
		Authenticate: authenticate,
		Instrument:   a.ins,
	})

	a.router.GET("/health", a.health)
	if h := a.ins.MetricsHandler(); h != nil {
		a.router.GETRaw("/metrics", h)
	}
	if a.access != nil {
		a.access.RegisterHTTPEndpoint(a.router)
	}

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-Id"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

// health reports whether the expiring store answers.
func (a *App) health(r *router.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := a.store.Exists(ctx, "health"); err != nil {
		slog.ErrorContext(ctx, "health check failed", "error", err)
		return nil, goerror.NewUnavailable(err)
	}

	return map[string]string{"status": "ok"}, nil
}

// initReload refreshes the memory directory and the policies when the
// config file changes.
func (a *App) initReload() {
	vc, ok := a.config.(*config.Viper)
	if !ok {
		return
	}

	vc.OnChange(func() {
		policies, err := authz.ParsePolicies(a.config.GetArray("authz.policies"))
		switch {
		case err != nil:
			slog.Error("reload: invalid authz policies kept the previous set", "error", err)
		case a.policyStore != nil:
			// the watcher applies the stored set once the seed notifies
			if err := a.policyStore.Seed(a.ctx, policies); err != nil {
				slog.Error("reload: failed to seed authz policies", "error", err)
			}
		default:
			if err := a.policy.Replace(policies); err != nil {
				slog.Error("reload: failed to replace authz policies", "error", err)
			}
		}

		mem, ok := a.directory.(*directory.Memory)
		if !ok {
			return
		}
		principals, err := a.configuredPrincipals()
		if err != nil {
			slog.Error("reload: failed to read directory principals", "error", err)
			return
		}
		if err := mem.Replace(principals); err != nil {
			slog.Error("reload: invalid directory kept the previous set", "error", err)
			return
		}
		slog.Info("reload: directory and policies refreshed", "principals", len(principals))
	})
}

func (a *App) initClosers() {
	a.closers = []struct {
		name string
		fn   func(context.Context) error
	}{
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Messaging",
			fn: func(context.Context) error {
				if a.messaging == nil {
					return nil
				}
				return a.messaging.Close()
			},
		},
		{
			name: "Mail",
			fn: func(context.Context) error {
				if a.mail == nil {
					return nil
				}
				return a.mail.Close()
			},
		},
		{
			name: "Redis",
			fn: func(context.Context) error {
				if a.cacheConn == nil {
					return nil
				}
				return a.cacheConn.Close()
			},
		},
		{
			name: "Database",
			fn: func(context.Context) error {
				if a.dbConn != nil {
					a.dbConn.Close()
				}

				return nil
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
