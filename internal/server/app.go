// Package server composes the crawl engine, its stores, and the HTTP API
// from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecal-crawler/internal/api"
	"github.com/JakeFAU/racecal-crawler/internal/clock/system"
	"github.com/JakeFAU/racecal-crawler/internal/config"
	"github.com/JakeFAU/racecal-crawler/internal/crawler"
	"github.com/JakeFAU/racecal-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/racecal-crawler/internal/fetcher/colly"
	idgen "github.com/JakeFAU/racecal-crawler/internal/id/uuid"
	"github.com/JakeFAU/racecal-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/racecal-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/racecal-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/racecal-crawler/internal/resolver"
	gcsstorage "github.com/JakeFAU/racecal-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/racecal-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/racecal-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/racecal-crawler/internal/storage/postgres"
)

// eventStore is what the engine and API need from the database layer.
type eventStore interface {
	crawler.Store
	crawler.RunStore
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	store        eventStore
	pg           *pgstore.Store
	archive      crawler.BlobStore
	notifier     crawler.Publisher
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	engine       *crawler.Engine
	apiServer    *api.Server
}

// Build creates the application's dependencies. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)

	if err := app.setupStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupArchive(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupNotifier(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupEngine(); err != nil {
		app.Close()
		return nil, err
	}

	var ready api.Pinger
	if app.pg != nil {
		ready = app.pg
	}
	app.apiServer = api.NewServer(app.engine, app.store, ready, cfg, logger.Named("api"))
	return app, nil
}

// Engine returns the crawl engine.
func (a *App) Engine() *crawler.Engine { return a.engine }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Sleep pauses on the wall clock.
func (a *App) Sleep(ctx context.Context, d time.Duration) error { return a.clock.Sleep(ctx, d) }

// Serve runs the HTTP server until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases clients and pools.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	a.logger.Info("shutdown complete")
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.DB.Provider {
	case config.ProviderPostgres:
		if a.cfg.DB.AutoMigrate {
			if err := pgstore.MigrateUp(a.cfg.DB.DSN); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			a.logger.Info("database migrations applied")
		}
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pg, a.store = pg, pg
		a.logger.Info("using postgres event store")
	default:
		a.store = memorystorage.NewEventStore()
		a.logger.Warn("using in-memory event store; data is lost on exit")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case config.ProviderMemory:
		a.archive = memorystorage.NewBlobStore()
	case config.ProviderLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = store
		a.logger.Debug("local page archive", zap.String("path", a.cfg.Archive.BaseDir))
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		if err := store.Check(ctx); err != nil {
			return fmt.Errorf("gcs archive check failed: %w", err)
		}
		a.archive = store
		a.logger.Debug("gcs page archive", zap.String("bucket", a.cfg.Archive.Bucket))
	default:
		a.logger.Info("page archive disabled")
	}
	return nil
}

func (a *App) setupNotifier(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case config.ProviderMemory:
		a.notifier = memorypublisher.New()
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.publisher = gcppublisher.New(client)
		a.notifier = a.publisher
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	default:
		a.logger.Info("edition notices disabled")
	}
	return nil
}

func (a *App) setupEngine() error {
	cfg := a.cfg
	detailBase := cfg.Source.DetailBase
	if detailBase == "" {
		detailBase = cfg.Source.ListURL
	}
	ex := extract.New(extract.WithDetailBase(detailBase))
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
	})
	a.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Crawler.UserAgent))

	deps := crawler.Deps{
		Fetcher:   fetcher,
		Extractor: ex,
		Details:   ex,
		Resolver: resolver.New(a.store, resolver.Config{
			SlugWithCity:    cfg.Crawler.SlugWithCity,
			MaxSlugAttempts: cfg.Crawler.MaxSlugAttempts,
		}, a.logger.Named("resolver")),
		PagePacer:   ratelimit.New(ratelimit.Config{MinDelay: cfg.Crawler.PageDelay}),
		DetailPacer: ratelimit.New(ratelimit.Config{MinDelay: cfg.Crawler.DetailDelay}),
		Clock:       a.clock,
		IDs:         idgen.New(),
		Runs:        a.store,
		Logger:      a.logger.Named("crawler"),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.notifier != nil {
		deps.Notifier = a.notifier
	}

	engine, err := crawler.NewEngine(crawler.Options{
		ListURL:           cfg.Source.ListURL,
		CursorUnit:        cfg.Source.CursorUnit,
		PageStep:          cfg.Source.PageStep,
		DefaultBudget:     cfg.Crawler.DefaultBudget,
		MaxPagesPerChunk:  cfg.Crawler.MaxPagesPerChunk,
		ResumeBeforePages: cfg.Crawler.ResumeBeforePages,
		CountryCode:       cfg.Crawler.CountryCode,
		SportType:         cfg.Crawler.SportType,
		ArchivePrefix:     cfg.Archive.Prefix,
		NotifyTopic:       cfg.Notify.Topic,
	}, deps)
	if err != nil {
		return fmt.Errorf("crawl engine init failed: %w", err)
	}
	a.engine = engine
	return nil
}
