// Package server wires the library sync server together: logger, catalog
// database, object store, services, HTTP API and the orphan sweeper. It also
// owns graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/api"
	"github.com/dmitrijs2005/libsync/internal/server/config"
	"github.com/dmitrijs2005/libsync/internal/server/ratelimit"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/libsync/internal/server/services"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

// App wires the HTTP server to its database, object store and sweeper.
type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	router  *echo.Echo
	sweeper *services.Sweeper
}

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}

	newObjectStore = func(ctx context.Context, c *config.Config) (storage.ObjectStore, error) {
		return storage.NewS3Store(ctx, storage.S3Settings{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	}

	newRepositoryManager = repomanager.NewPostgresRepositoryManager
)

// NewApp connects to every backing service and applies migrations. Any
// failure closes what was already opened.
func NewApp(c *config.Config) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	logger := logging.NewJSONLogger(c.LogFile, slog.LevelInfo)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newObjectStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	layout := storage.NewLayout(c.StorageRoot)
	catalog := services.NewCatalog(db, rm, logger.With("module", "catalog"))
	quota := services.NewQuotaPolicy(services.NewPlanLookup(db, rm, c.DefaultPlan), catalog, c.MaxFileSize, c.MaxBatchSize)

	svc := services.NewLibraryService(services.LibraryServiceDeps{
		Catalog:     catalog,
		Quota:       quota,
		Store:       store,
		Layout:      layout,
		Signer:      services.NewSignedAccessIssuer(store, layout, c.SignedURLTTL),
		Documents:   services.NewNoteCatalog(db, rm),
		MaxParallel: c.MaxParallelTransfers,
		Log:         logger.With("module", "sync_engine"),
	})

	app.sweeper = services.NewSweeper(catalog, store, layout, logger.With("module", "sweeper"))

	handler := api.NewHandler(svc, db, c.MaxBatchSize, logger)
	app.router = api.NewRouter(handler, app.newLimiter(), []byte(c.SecretKey), logger)

	return app, nil
}

// newLimiter picks the shared Redis counter when an address is configured.
func (app *App) newLimiter() ratelimit.Limiter {
	if app.config.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(app.config.RateLimitPerMinute)
	}
	app.redis = ratelimit.NewRedisClient(app.config.RedisAddr)
	return ratelimit.NewRedisLimiter(app.redis, app.config.RateLimitPerMinute)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.router.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := app.router.Start(app.config.EndpointAddrHTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startSweeper(ctx context.Context) {
	if err := app.sweeper.Start(ctx, app.config.SweepSchedule); err != nil {
		// Deletes still purge inline; only retries of failed purges are lost.
		app.logger.Error(ctx, "sweeper not started", "schedule", app.config.SweepSchedule, "error", err)
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// drains in-flight requests and releases the database and Redis clients.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.startSweeper(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()
	wg.Wait()

	app.sweeper.Stop()
	app.close()
}

func (app *App) close() {
	ctx := context.Background()
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
