package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/blob"
	httpapi "github.com/taskdeck/taskdeck/internal/taskdeck/http"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
	"github.com/taskdeck/taskdeck/internal/taskdeck/session"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store/drivers/sqlite"
	"github.com/taskdeck/taskdeck/pkg/jwtx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the taskdeck service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	records    *records.Store
	localStore *records.LocalStore
	blobs      *blob.Store
	signer     *jwtx.EdDSASigner
	verifier   jwtx.Verifier

	// Identity and session resolution
	identityProvider *identity.Provider
	resolver         *session.Resolver
	resolverCancel   context.CancelFunc
	unsubscribe      func()

	// Services
	inviteService       *service.InviteService
	taskService         *service.TaskService
	accountService      *service.AccountService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "taskdeck",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStorage(); err != nil {
		return nil, err
	}

	// Session tokens are signed with an in-process key; restarting the
	// service signs everyone out.
	signer, err := jwtx.GenerateEdDSASigner(cfg.KeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	app.signer = signer
	app.verifier = signer.Verifier(cfg.Issuer)

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	// Feed the identity provider's auth state stream into the resolver.
	resolverCtx, cancel := context.WithCancel(context.Background())
	app.resolverCancel = cancel
	changes, unsubscribe := app.identityProvider.StateChanges()
	app.unsubscribe = unsubscribe
	go app.resolver.Run(resolverCtx, changes)

	app.logger.Info("taskdeck starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down taskdeck...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the resolver stream and the housekeeping service
	if app.resolverCancel != nil {
		app.resolverCancel()
	}
	if app.unsubscribe != nil {
		app.unsubscribe()
	}
	app.housekeepingService.Stop()

	// Close storage
	if err := app.localStore.Close(); err != nil {
		app.logger.Error("error closing local store", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("taskdeck stopped")
	return nil
}

// initStorage initializes the database, record cache, durable KV and
// blob store
func (app *Application) initStorage() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully")

	app.records = records.NewStore(db.Handle(), records.Tables())

	local, err := records.NewLocalStore(app.cfg.LocalStoreFile)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize local store: %w", err)
	}
	app.localStore = local

	blobs, err := blob.NewStore(app.cfg.BlobDir, app.cfg.FilesBaseURL, local)
	if err != nil {
		_ = local.Close()
		_ = db.Close()
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	app.blobs = blobs

	return nil
}

// initServices initializes identity, session resolution and all business
// logic services
func (app *Application) initServices() {
	app.identityProvider = identity.NewProvider(
		app.db,
		app.signer,
		app.verifier,
		app.cfg.Issuer,
		app.cfg.SessionTTL,
	)
	app.resolver = session.NewResolver(app.db, app.logger, app.cfg.ResolveDebounce)

	app.inviteService = &service.InviteService{Store: app.db, Records: app.records}
	app.taskService = &service.TaskService{Store: app.db, Records: app.records}
	app.accountService = &service.AccountService{Store: app.db, Records: app.records}
	app.userService = &service.UserService{Store: app.db, Records: app.records}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.verifier,
		BuildVersion,
		app.db,
		app.records,
		app.resolver,
		app.logger,
	)

	// Wire services to router
	router.Identity = app.identityProvider
	router.InviteService = app.inviteService
	router.TaskService = app.taskService
	router.AccountService = app.accountService
	router.UserService = app.userService
	router.Blob = app.blobs
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
