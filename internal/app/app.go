// Package app assembles a running credflow service from configuration:
// storage, queue, key store, resolvers, handlers, workers, the HTTP
// trigger surface and the timer scheduler.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/credflow/internal/actions"
	"github.com/petrijr/credflow/internal/config"
	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/did"
	"github.com/petrijr/credflow/internal/engine"
	"github.com/petrijr/credflow/internal/keystore"
	"github.com/petrijr/credflow/internal/metrics"
	"github.com/petrijr/credflow/internal/notify"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/internal/persistence"
	"github.com/petrijr/credflow/internal/taskqueue"
	"github.com/petrijr/credflow/internal/trigger"
	"github.com/petrijr/credflow/pkg/api"
	"github.com/petrijr/credflow/pkg/worker"
)

const (
	scheduleSyncInterval = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// App is a fully wired credflow service.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store     persistence.Persistence
	Keys      keystore.Store
	Queue     taskqueue.Queue
	Engine    api.Engine
	Worker    *worker.Worker
	Metrics   *metrics.PrometheusObserver
	Server    *trigger.Server
	Scheduler *trigger.Scheduler

	sqlite  map[string]*sql.DB
	pg      *pgxpool.Pool
	redis   *redis.Client
	mongo   *mongo.Client
	closers []func()
}

// New connects the configured backends and wires all components. Call Close
// when done, also after Run returns.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, sqlite: make(map[string]*sql.DB)}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	store, err := a.openStorage(ctx)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.Store = store

	if a.Queue, err = a.openQueue(ctx); err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	if a.Keys, err = a.openKeys(); err != nil {
		return fmt.Errorf("open key store: %w", err)
	}

	handlers := actions.NewRegistry(actions.Deps{
		Params:   params.NewResolver(cfg.Settings),
		Keys:     a.Keys,
		Verifier: NewVerifier(cfg, a.Logger),
		Mailer:   a.newMailer(),
	})

	a.Metrics = metrics.NewPrometheusObserver()
	a.Engine = engine.NewEngineWithConfig(engine.Config{
		Persistence: store,
		Handlers:    handlers,
		Observer:    api.NewCompositeObserver(api.NewLoggingObserver(a.Logger), a.Metrics),
		Logger:      a.Logger,
	})
	a.Worker = worker.New(a.Engine, a.Queue, worker.WithLogger(a.Logger))
	a.Server = trigger.NewServer(trigger.ServerConfig{
		Engine:       a.Engine,
		Submitter:    a.Worker,
		Logger:       a.Logger,
		Metrics:      a.Metrics.Handler(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	a.Scheduler = trigger.NewScheduler(store.Workflows, a.Worker, a.Logger)
	return nil
}

func (a *App) openSQLite(dsn string) (*sql.DB, error) {
	if db, ok := a.sqlite[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Stores, queue and key store share the file through one connection.
	db.SetMaxOpenConns(1)
	a.sqlite[dsn] = db
	a.closers = append(a.closers, func() { _ = db.Close() })
	return db, nil
}

func (a *App) openStorage(ctx context.Context) (persistence.Persistence, error) {
	sc := a.Config.Storage
	switch sc.Driver {
	case "memory":
		return persistence.NewInMemory(), nil

	case "sqlite":
		db, err := a.openSQLite(sc.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		store, err := persistence.NewSQLiteStore(db)
		if err != nil {
			return persistence.Persistence{}, err
		}
		events, err := persistence.NewSQLiteEventStore(db)
		if err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.Persistence{Workflows: store, Outcomes: store, Events: events}, nil

	case "postgres":
		pool, err := persistence.NewPostgresPool(ctx, sc.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		a.pg = pool
		a.closers = append(a.closers, pool.Close)
		store := persistence.NewPostgresStore(pool)
		if err := store.InitSchema(ctx); err != nil {
			return persistence.Persistence{}, err
		}
		return persistence.Of(store), nil

	case "redis":
		opts, err := redis.ParseURL(sc.DSN)
		if err != nil {
			return persistence.Persistence{}, err
		}
		client := redis.NewClient(opts)
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return persistence.Persistence{}, err
		}
		store := persistence.NewRedisStore(client, sc.Prefix)
		return persistence.Of(store), nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.DSN))
		if err != nil {
			return persistence.Persistence{}, err
		}
		a.mongo = client
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return persistence.Persistence{}, err
		}
		store := persistence.NewMongoStore(client, sc.Database)
		return persistence.Of(store), nil
	}
	return persistence.Persistence{}, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

// openQueue relies on config validation: a durable queue driver always
// matches the storage driver, whose connection it reuses.
func (a *App) openQueue(ctx context.Context) (taskqueue.Queue, error) {
	qc := a.Config.Queue
	switch qc.Driver {
	case "memory":
		return taskqueue.NewInMemoryQueue(qc.Capacity), nil
	case "sqlite":
		db, err := a.openSQLite(a.Config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return taskqueue.NewSQLiteQueue(db)
	case "postgres":
		if a.pg == nil {
			return nil, errors.New("postgres queue requires postgres storage")
		}
		return taskqueue.NewPostgresQueue(ctx, a.pg)
	case "redis":
		if a.redis == nil {
			return nil, errors.New("redis queue requires redis storage")
		}
		return taskqueue.NewRedisQueue(a.redis, a.Config.Storage.Prefix), nil
	case "mongo":
		if a.mongo == nil {
			return nil, errors.New("mongo queue requires mongo storage")
		}
		return taskqueue.NewMongoQueue(a.mongo, a.Config.Storage.Database, ""), nil
	}
	return nil, fmt.Errorf("unknown queue driver %q", qc.Driver)
}

func (a *App) openKeys() (keystore.Store, error) {
	kc := a.Config.Keys
	if kc.Driver == "memory" {
		return keystore.NewMemoryStore(), nil
	}
	db, err := a.openSQLite(kc.DSN)
	if err != nil {
		return nil, err
	}
	return keystore.NewSQLStore(db)
}

// NewVerifier builds a credential verifier from the resolver and status
// list settings. Without a resolver base URL only long-form DIDs verify.
func NewVerifier(cfg *config.Config, logger *slog.Logger) *credential.Verifier {
	rc := cfg.Resolver
	var docs did.DocumentResolver
	if rc.BaseURL != "" {
		docs = did.NewCachingResolver(did.NewHTTPResolver(did.HTTPResolverConfig{
			BaseURL: rc.BaseURL,
			Path:    rc.Path,
			Timeout: rc.Timeout,
		}), rc.CacheSize, rc.CacheTTL)
	} else {
		logger.Warn("resolver_not_configured", slog.String("effect", "only long-form DIDs can be verified"))
	}
	return credential.NewVerifier(
		did.NewKeyResolver(docs, logger),
		credential.NewHTTPStatusListFetcher(cfg.StatusList.Timeout),
	)
}

func (a *App) newMailer() notify.Mailer {
	if a.Config.SMTP.Addr == "" {
		return notify.LogMailer{Logger: a.Logger}
	}
	return notify.NewSMTPMailer(a.Config.SMTP)
}

// Run serves HTTP, runs the workers and the scheduler until ctx is
// cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Scheduler.Sync(ctx); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	a.Scheduler.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Worker.Run(ctx, a.Config.Queue.Workers)
	}()
	go func() {
		defer wg.Done()
		a.resyncSchedules(ctx)
	}()

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.Logger.Info("server_started",
		slog.String("addr", a.Config.Server.Addr),
		slog.String("storage", a.Config.Storage.Driver),
		slog.String("queue", a.Config.Queue.Driver),
		slog.Int("workers", a.Config.Queue.Workers),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("server_shutdown_failed", slog.String("error", err.Error()))
	}
	a.Scheduler.Stop(shutdownCtx)
	cancel()
	wg.Wait()
	a.Logger.Info("server_stopped")
	return runErr
}

// resyncSchedules picks up timer workflows saved after startup.
func (a *App) resyncSchedules(ctx context.Context) {
	ticker := time.NewTicker(scheduleSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Scheduler.Sync(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Warn("schedule_sync_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
