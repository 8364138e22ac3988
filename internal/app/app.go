// Package app wires configuration into a running content feed service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/enrich"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/feedclient"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/googlenews"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/instagram"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/nitter"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/rss"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/youtube"
	"github.com/JakeFAU/realtime-content-feed/internal/api"
	"github.com/JakeFAU/realtime-content-feed/internal/auth"
	"github.com/JakeFAU/realtime-content-feed/internal/classify"
	"github.com/JakeFAU/realtime-content-feed/internal/clock/system"
	"github.com/JakeFAU/realtime-content-feed/internal/config"
	"github.com/JakeFAU/realtime-content-feed/internal/engine"
	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/geo"
	"github.com/JakeFAU/realtime-content-feed/internal/hash/sha256"
	"github.com/JakeFAU/realtime-content-feed/internal/id/uuid"
	"github.com/JakeFAU/realtime-content-feed/internal/logging"
	"github.com/JakeFAU/realtime-content-feed/internal/normalize"
	"github.com/JakeFAU/realtime-content-feed/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-content-feed/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-content-feed/internal/query"
	gcsstorage "github.com/JakeFAU/realtime-content-feed/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-content-feed/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-content-feed/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-content-feed/internal/storage/postgres"
	"github.com/JakeFAU/realtime-content-feed/internal/store"
	"github.com/JakeFAU/realtime-content-feed/internal/telemetry"
)

// App contains the service's long-lived dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     store.Store
	ready     api.Pinger
	engine    *engine.Engine
	runs      *runTracker
	guard     *auth.Guard
	apiServer *api.Server
	browser   *instagram.Chromedp
	closers   []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. The caller owns the returned
// App and must Close it.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with an externally owned logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("taxonomy", cfg.Classifier.Taxonomy),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.closers = append(app.closers, namedCloser{"tracer", func() error {
			return tp.Shutdown(context.Background())
		}})
		logger.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Tracing.SampleRatio))
	}

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}

	taxonomy, err := classify.ForName(cfg.Classifier.Taxonomy)
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	classifier := classify.New(taxonomy)

	resolver, err := setupResolver(cfg.Geo, logger)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	normalizer := normalize.New(classifier, resolver, ids, clock)

	opts, err := app.setupEngineOptions(ctx)
	if err != nil {
		return nil, err
	}
	app.engine = engine.New(app.store, normalizer, ids, clock, engine.Config{
		Concurrency:    cfg.Engine.Concurrency,
		AdapterTimeout: config.Seconds(cfg.Engine.AdapterTimeoutSeconds),
		ArchivePrefix:  cfg.Archive.Prefix,
		NotifyTopic:    cfg.PubSub.TopicName,
	}, logger, opts...)

	adapters, err := app.setupAdapters(classifier, clock)
	if err != nil {
		return nil, err
	}
	app.engine.Register(adapters...)
	app.runs = newRunTracker(app.engine)
	logger.Info("adapters registered", zap.Strings("adapters", app.engine.Adapters()))

	app.guard = auth.NewGuard(app.store, ids, clock, auth.Config{CounterBuffer: cfg.Auth.CounterBuffer}, logger)
	app.closers = append(app.closers, namedCloser{"auth guard", func() error {
		app.guard.Close()
		return nil
	}})

	app.apiServer = api.NewServer(api.Deps{
		Runner:  app.runs,
		Query:   query.New(app.store, clock),
		Keys:    app.guard,
		RunLogs: app.store,
		Ready:   app.ready,
	}, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		RequestTimeout: config.Seconds(cfg.Server.RequestTimeoutSeconds),
		Taxonomy:       taxonomy.Name,
		Categories:     taxonomy.Names(),
	}, logger)

	ok = true
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		st, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
			Migrate:         a.cfg.DB.Migrate,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.store = st
		a.ready = st
		a.logger.Info("using postgres record store", zap.Bool("migrate", a.cfg.DB.Migrate))
	default:
		a.store = memorystorage.NewStore()
		a.logger.Info("using in-memory record store")
	}
	return nil
}

func setupResolver(cfg config.GeoConfig, logger *zap.Logger) (*geo.Resolver, error) {
	if cfg.GazetteerFile == "" {
		return geo.NewResolver(nil), nil
	}
	places, err := geo.LoadGazetteer(cfg.GazetteerFile)
	if err != nil {
		return nil, fmt.Errorf("gazetteer load failed: %w", err)
	}
	logger.Info("gazetteer loaded", zap.String("file", cfg.GazetteerFile), zap.Int("places", len(places)))
	return geo.NewResolver(places), nil
}

func (a *App) setupEngineOptions(ctx context.Context) ([]engine.Option, error) {
	var opts []engine.Option
	if a.cfg.Archive.Enabled {
		blobs, err := a.setupArchive(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithArchive(blobs, sha256.New()))
	}
	if a.cfg.PubSub.TopicName != "" {
		pub, closeFn, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"pubsub", closeFn})
		opts = append(opts, engine.WithPublisher(pub))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	} else {
		a.logger.Info("no Pub/Sub topic configured; ingest notifications disabled")
	}
	return opts, nil
}

func (a *App) setupArchive(ctx context.Context) (feed.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		blobs, closeFn, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"gcs client", closeFn})
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("path", a.cfg.Archive.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory archive")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupAdapters(classifier *classify.Classifier, clock feed.Clock) ([]feed.Adapter, error) {
	cfg := a.cfg
	httpTimeout := config.Seconds(cfg.HTTP.TimeoutSeconds)
	client := feedclient.New(feedclient.Config{
		Timeout:   httpTimeout,
		UserAgent: cfg.HTTP.UserAgent,
	}, nil)

	var adapters []feed.Adapter
	if gn := cfg.Adapters.GoogleNews; gn.Enabled {
		var enricher googlenews.Enricher
		if gn.Enrich {
			limiter := ratelimit.New(ratelimit.Config{PerHostRPS: cfg.HTTP.PerHostRPS, Burst: cfg.HTTP.Burst})
			enricher = enrich.New(enrich.Config{
				Timeout:       config.Seconds(cfg.HTTP.EnrichTimeoutSeconds),
				UserAgent:     cfg.HTTP.UserAgent,
				RespectRobots: cfg.HTTP.RespectRobots,
			}, limiter, a.logger)
		}
		adapters = append(adapters, googlenews.New(googlenews.Config{
			Queries:       gn.Queries,
			ItemsPerQuery: gn.ItemsPerQuery,
			FeedTimeout:   httpTimeout,
			Enrich:        gn.Enrich,
		}, client, enricher, a.logger))
	}
	if yt := cfg.Adapters.YouTube; yt.Enabled {
		adapters = append(adapters, youtube.New(youtube.Config{
			Channels:        yt.Channels,
			ItemsPerChannel: yt.ItemsPerChannel,
			FeedTimeout:     httpTimeout,
		}, client, a.logger))
	}
	if nt := cfg.Adapters.Nitter; nt.Enabled {
		adapters = append(adapters, nitter.New(nitter.Config{
			Instances:       nt.Instances,
			Accounts:        nt.Accounts,
			ItemsPerAccount: nt.ItemsPerAccount,
			ProbeTimeout:    config.Seconds(nt.ProbeTimeoutSeconds),
			FeedTimeout:     config.Seconds(nt.FeedTimeoutSeconds),
		}, client, classifier, a.logger))
	}
	if ig := cfg.Adapters.Instagram; ig.Enabled {
		browser, err := instagram.NewChromedp(instagram.BrowserConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: config.Seconds(cfg.Headless.NavTimeoutSeconds),
			WaitTimeout:       config.Seconds(cfg.Headless.WaitTimeoutSeconds),
		})
		if err != nil {
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		a.browser = browser
		adapters = append(adapters, instagram.New(instagram.Config{
			Page:     ig.Page,
			MaxPosts: ig.MaxPosts,
		}, browser, clock, a.logger))
		a.logger.Info("using headless browser", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}
	if rs := cfg.Adapters.RSS; rs.Enabled {
		adapter, err := rss.New(rss.Config{
			Sources:        rs.Sources,
			ItemsPerSource: rs.ItemsPerSource,
			FeedTimeout:    httpTimeout,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("rss adapter init failed: %w", err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunOnce triggers one aggregation run. Close waits for it to finish.
func (a *App) RunOnce(ctx context.Context) (engine.Report, error) {
	return a.runs.RunAll(ctx)
}

// Engine returns the aggregation engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Keys returns the API key guard.
func (a *App) Keys() *auth.Guard {
	return a.guard
}

// Run serves HTTP and, when an interval is configured, triggers runs
// periodically. It blocks until ctx is canceled or a termination signal
// arrives, then shuts down and closes the App.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if interval := a.cfg.Interval(); interval > 0 {
		go a.schedule(ctx, interval)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

func (a *App) shutdownTimeout() time.Duration {
	if timeout := config.Seconds(a.cfg.Server.ShutdownTimeoutSeconds); timeout > 0 {
		return timeout
	}
	return 10 * time.Second
}

// schedule runs the engine every interval until ctx ends. Ticks that land
// while a run is active are skipped.
func (a *App) schedule(ctx context.Context, interval time.Duration) {
	a.logger.Info("scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.runs.RunAll(ctx)
			switch {
			case errors.Is(err, engine.ErrRunInProgress):
				a.logger.Debug("scheduled run skipped; run in progress")
			case errors.Is(err, errShuttingDown):
				return
			case err != nil:
				a.logger.Error("scheduled run failed", zap.Error(err))
			default:
				a.logger.Info("scheduled run finished", zap.Int("ingested", report.Ingested))
			}
		}
	}
}

// Close waits for in-flight runs, up to the shutdown timeout, and then
// releases every resource acquired by Build.
func (a *App) Close() error {
	if a.runs != nil && !a.runs.drain(a.shutdownTimeout()) {
		a.logger.Warn("closing with a run still active", zap.Duration("waited", a.shutdownTimeout()))
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
