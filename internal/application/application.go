package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/cache"
	"github.com/psds-microservice/cityfix-service/internal/config"
	"github.com/psds-microservice/cityfix-service/internal/database"
	"github.com/psds-microservice/cityfix-service/internal/handler"
	"github.com/psds-microservice/cityfix-service/internal/identity"
	"github.com/psds-microservice/cityfix-service/internal/kafka"
	"github.com/psds-microservice/cityfix-service/internal/logger"
	"github.com/psds-microservice/cityfix-service/internal/metrics"
	"github.com/psds-microservice/cityfix-service/internal/notify"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"github.com/psds-microservice/cityfix-service/internal/repository/gormstore"
	"github.com/psds-microservice/cityfix-service/internal/repository/mongostore"
	"github.com/psds-microservice/cityfix-service/internal/router"
	"github.com/psds-microservice/cityfix-service/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores is the storage backend selected by STORE_DRIVER together with its
// readiness check and teardown.
type Stores struct {
	Tickets        repository.TicketStore
	Municipalities repository.MunicipalityStore
	Ping           handler.Pinger
	Close          func() error
}

// OpenStores connects the configured backend. For postgres pending migrations
// are applied first; for mongo the indexes are ensured.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &Stores{
			Tickets:        mongostore.NewTicketStore(db),
			Municipalities: mongostore.NewMunicipalityStore(db),
			Ping:           func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close:          func() error { return client.Disconnect(context.Background()) },
		}, nil
	default:
		if err := database.MigrateUp(ctx, cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Stores{
			Tickets:        gormstore.NewTicketStore(db),
			Municipalities: gormstore.NewMunicipalityStore(db),
			Ping:           sqlDB.PingContext,
			Close:          sqlDB.Close,
		}, nil
	}
}

// OpenResolutionCache returns the redis-backed resolution cache and its client,
// or two nils when REDIS_ADDR is unset.
func OpenResolutionCache(cfg *config.Config) (service.ResolutionCache, *redis.Client) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return cache.NewResolutionCache(rdb, cfg.Redis.TTL), rdb
}

// API is the HTTP intake service (api mode).
type API struct {
	cfg        *config.Config
	log        *zap.Logger
	httpSrv    *http.Server
	producer   *kafka.Producer
	dispatcher *notify.Dispatcher
	closers    []func() error
}

// NewAPI wires stores, cache, event producer and notifier into the router.
func NewAPI(ctx context.Context, cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &API{cfg: cfg, log: log}

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, stores.Close)
	checks := map[string]handler.Pinger{cfg.StoreDriver: stores.Ping}

	m := metrics.New()

	resolutions, rdb := OpenResolutionCache(cfg)
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log)
	a.producer = producer
	a.closers = append(a.closers, producer.Close)

	var notifier service.Notifier
	if client := notify.NewClient(cfg.NotificationServiceURL); client.Enabled() {
		a.dispatcher = notify.NewDispatcher(client, cfg.NotifyQueueSize, m, log)
		notifier = a.dispatcher
	}

	resolver := service.NewResolver(stores.Municipalities, resolutions, m)
	tickets := service.NewTicketService(service.TicketDeps{
		Store:    stores.Tickets,
		Resolver: resolver,
		Notifier: notifier,
		Events:   producer,
		Metrics:  m,
	})
	municipalities := service.NewMunicipalityService(stores.Municipalities, resolutions)

	authz, err := identity.NewAuthorizer()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("authorizer: %w", err)
	}

	a.httpSrv = &http.Server{
		Addr: cfg.Addr(),
		Handler: router.New(router.Deps{
			Tickets:        handler.NewTicketHandler(tickets),
			Geo:            handler.NewGeoHandler(resolver),
			Municipalities: handler.NewMunicipalityHandler(municipalities),
			Health:         handler.NewHealthHandler(checks),
			Authz:          authz,
			Metrics:        m,
			Log:            log,
			RequestTimeout: cfg.RequestTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer a.Close()

	if a.dispatcher != nil {
		notifyCtx, stop := context.WithCancel(context.Background())
		defer stop()
		go a.dispatcher.Run(notifyCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.log.Info("http server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("store", a.cfg.StoreDriver),
		zap.Bool("geo_cache", a.cfg.Redis.Addr != ""),
		zap.Bool("events", a.producer.Enabled()),
		zap.Bool("notifications", a.dispatcher != nil),
	)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases every backing connection. Errors are logged, not returned.
func (a *API) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		ServiceName: "cityfix-service",
		Environment: cfg.AppEnv,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
}
