// Package app initializes and holds the long-lived services of one archiver
// run, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/api"
	"github.com/JakeFAU/qa-archiver/internal/clock/system"
	"github.com/JakeFAU/qa-archiver/internal/config"
	"github.com/JakeFAU/qa-archiver/internal/contentstore"
	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/dispatcher"
	"github.com/JakeFAU/qa-archiver/internal/export"
	collyfetcher "github.com/JakeFAU/qa-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/qa-archiver/internal/hash/sha256"
	iduuid "github.com/JakeFAU/qa-archiver/internal/id/uuid"
	"github.com/JakeFAU/qa-archiver/internal/listing"
	"github.com/JakeFAU/qa-archiver/internal/logging"
	"github.com/JakeFAU/qa-archiver/internal/normalize"
	"github.com/JakeFAU/qa-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/qa-archiver/internal/progress"
	"github.com/JakeFAU/qa-archiver/internal/progress/sinks"
	"github.com/JakeFAU/qa-archiver/internal/resolve"
	"github.com/JakeFAU/qa-archiver/internal/storage/gcs"
	"github.com/JakeFAU/qa-archiver/internal/storage/local"
	"github.com/JakeFAU/qa-archiver/internal/storage/memory"
	"github.com/JakeFAU/qa-archiver/internal/storage/postgres"
	"github.com/JakeFAU/qa-archiver/internal/storage/sqlite"
	"github.com/JakeFAU/qa-archiver/internal/worker"
)

// ErrNoSeeds is returned by Run when there is nothing to crawl.
var ErrNoSeeds = errors.New("no seeds given and resume_pending is off")

const statusReadHeaderTimeout = 5 * time.Second

// Options wires an App.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Fetcher replaces the HTTP fetcher for both API and media requests.
	Fetcher crawler.Fetcher
	// IDs names the run; nil uses time-ordered UUIDs.
	IDs crawler.IDGenerator
	// Registry receives archiver metrics and backs /metrics; nil creates a
	// private registry.
	Registry *prometheus.Registry
}

// blobBackend is what every storage backend provides.
type blobBackend interface {
	contentstore.Backend
	contentstore.Lister
}

// App holds the services of one run. Build it with New and release it with Close.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    uuid.UUID
	registry *prometheus.Registry

	blobs      blobBackend
	media      *contentstore.Store
	items      crawler.ItemStore
	hub        *progress.Hub
	tally      *sinks.TallySink
	dispatcher *dispatcher.Dispatcher
	exporter   *export.Writer
	status     *http.Server

	closers []func(context.Context) error
}

// New builds every service from configuration. It fails fast when a backend
// cannot be opened; anything opened before the failure is released.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := opts.IDs
	if ids == nil {
		ids = iduuid.New()
	}
	rawID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	runID, err := iduuid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	logger = logging.ForRun(logger, runID.String())

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	a := &App{cfg: cfg, logger: logger, runID: runID, registry: registry}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := a.initProgress(); err != nil {
		return nil, err
	}
	reporter := progress.NewReporter(a.hub, runID, nil)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = newFetcher(cfg, logger)
	}

	if a.blobs, err = openBlobs(ctx, cfg.Storage, logger); err != nil {
		return nil, err
	}
	if c, ok := a.blobs.(interface{ Close() error }); ok {
		a.addCloser(func(context.Context) error { return c.Close() })
	}
	a.media, err = contentstore.New(ctx, contentstore.Options{
		Backend:       a.blobs,
		Hasher:        sha256.New(),
		Fetcher:       fetcher,
		Reporter:      reporter,
		Logger:        logger.Named("contentstore"),
		MaxMediaBytes: cfg.Fetch.MaxMediaBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}

	if err := a.openItems(ctx); err != nil {
		return nil, err
	}

	endpoints, err := crawler.NewEndpoints(cfg.Fetch.APIBase)
	if err != nil {
		return nil, err
	}
	var lister crawler.Lister
	if cfg.Crawler.ListMembers {
		lister, err = listing.New(listing.Options{
			Fetcher:   fetcher,
			Endpoints: endpoints,
			MaxPages:  cfg.Crawler.MaxPages,
			Logger:    logger.Named("listing"),
		})
		if err != nil {
			return nil, fmt.Errorf("init lister: %w", err)
		}
	}
	clock := system.New()
	pipeline, err := worker.New(worker.Options{
		Fetcher:    fetcher,
		Endpoints:  endpoints,
		Normalizer: normalize.New(normalize.Options{Media: a.media, Logger: logger.Named("normalize")}),
		Resolver:   resolve.New(),
		Lister:     lister,
		Items:      a.items,
		Clock:      clock,
		Reporter:   reporter,
		Logger:     logger.Named("worker"),
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	a.dispatcher, err = dispatcher.New(dispatcher.Options{
		Config:        cfg.CrawlConfig(),
		Processor:     pipeline,
		Items:         a.items,
		Media:         a.media,
		Reporter:      reporter,
		Clock:         clock,
		Logger:        logger.Named("dispatcher"),
		ResumePending: cfg.Crawler.ResumePending,
	})
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}

	if cfg.Output.Enabled {
		a.exporter, err = export.New(export.Options{
			Backend:  a.blobs,
			WriteRaw: cfg.Output.WriteRaw,
			Logger:   logger.Named("export"),
		})
		if err != nil {
			return nil, fmt.Errorf("init exporter: %w", err)
		}
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("items", cfg.Items.Backend),
		zap.Bool("export", cfg.Output.Enabled),
		zap.Bool("list_members", cfg.Crawler.ListMembers),
	)
	return a, nil
}

func (a *App) initProgress() error {
	a.tally = sinks.NewTallySink()
	eventSinks := []progress.Sink{a.tally}
	if a.cfg.Progress.LogEvents {
		eventSinks = append(eventSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	if a.cfg.Progress.MetricsEnabled {
		ps, err := sinks.NewPrometheusSink(a.registry)
		if err != nil {
			return fmt.Errorf("init prometheus sink: %w", err)
		}
		eventSinks = append(eventSinks, ps)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize: a.cfg.Progress.BufferSize,
		Logger:     a.logger.Named("progress"),
	}, eventSinks...)
	a.addCloser(a.hub.Close)
	return nil
}

func newFetcher(cfg config.Config, logger *zap.Logger) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		Session:        cfg.CrawlSession(),
		Timeout:        cfg.Fetch.Timeout,
		MaxOutstanding: int64(cfg.Fetch.MaxOutstanding),
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		Retry: crawler.NewExponentialRetryPolicy(
			cfg.Fetch.RetryLimit,
			cfg.Fetch.BackoffBase,
			cfg.Fetch.BackoffMax,
		),
		Limiter: ratelimit.New(ratelimit.Config{
			MinInterval: cfg.Fetch.MinInterval,
			Burst:       cfg.Fetch.Burst,
			Logger:      logger.Named("ratelimit"),
		}),
		Logger: logger.Named("fetcher"),
	})
}

func openBlobs(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (blobBackend, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		logger.Info("using local storage", zap.String("base_dir", cfg.BaseDir))
		return store, nil
	case config.StorageGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket}, logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		logger.Info("using gcs storage", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case config.StorageMemory:
		logger.Info("using in-memory storage; media is discarded on exit")
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func (a *App) openItems(ctx context.Context) error {
	cfg := a.cfg.Items
	switch cfg.Backend {
	case config.ItemsSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("init sqlite item table: %w", err)
		}
		a.items = store
		a.addCloser(func(context.Context) error { return store.Close() })
	case config.ItemsPostgres:
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.PostgresDSN,
			Table:           cfg.PostgresTable,
			MaxConns:        cfg.PostgresMaxConns,
			MaxConnLifetime: cfg.PostgresLifetime,
		})
		if err != nil {
			return fmt.Errorf("init postgres item table: %w", err)
		}
		a.items = store
		a.addCloser(func(context.Context) error {
			store.Close()
			return nil
		})
	case config.ItemsMemory:
		a.items = memory.NewItemStore()
	default:
		return fmt.Errorf("unknown items backend: %s", cfg.Backend)
	}
	a.logger.Info("item table ready", zap.String("backend", cfg.Backend))
	return nil
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// RunID identifies this run in events, logs and the export manifest.
func (a *App) RunID() string { return a.runID.String() }

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Media returns the content store.
func (a *App) Media() *contentstore.Store { return a.media }

// Items returns the item table.
func (a *App) Items() crawler.ItemStore { return a.items }

// Tally returns the in-process progress tally.
func (a *App) Tally() *sinks.TallySink { return a.tally }

// Seeds parses raw seeds, or the configured seeds when raw is empty.
func (a *App) Seeds(raw []string) ([]crawler.ItemID, error) {
	if len(raw) == 0 {
		raw = a.cfg.Crawler.Seeds
	}
	ids := make([]crawler.ItemID, 0, len(raw))
	for _, s := range raw {
		id, err := resolve.ParseSeed(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Run crawls from seeds and then exports the item table when output is
// enabled. The export runs even when the crawl was aborted so finished items
// are never lost. The crawl error takes precedence over an export error.
func (a *App) Run(ctx context.Context, rawSeeds []string) (dispatcher.Report, error) {
	seeds, err := a.Seeds(rawSeeds)
	if err != nil {
		return dispatcher.Report{}, err
	}
	if len(seeds) == 0 && !a.cfg.Crawler.ResumePending {
		return dispatcher.Report{}, ErrNoSeeds
	}

	report, runErr := a.dispatcher.Run(ctx, seeds)
	for _, soft := range report.SoftStops() {
		a.logger.Info("crawl bound reached", zap.Error(soft))
	}
	for _, f := range report.Failures() {
		a.logger.Warn("item failed", zap.String("item", f.ID.String()), zap.String("reason", f.Reason))
	}

	if a.exporter != nil {
		summary, err := a.exporter.WriteAll(context.WithoutCancel(ctx), a.RunID(), report.Items, report.Media, time.Now().UTC())
		if err != nil {
			a.logger.Error("export failed", zap.Error(err))
			if runErr == nil {
				runErr = fmt.Errorf("export: %w", err)
			}
		} else {
			a.logger.Info("export written",
				zap.Int("written", summary.Written),
				zap.Int("skipped", summary.Skipped),
			)
		}
	}
	return report, runErr
}

// StatusHandler builds the read-only status API over this app's stores.
func (a *App) StatusHandler() (http.Handler, error) {
	server, err := api.NewServer(api.Options{
		Items:      a.items,
		Media:      a.media,
		Tally:      a.tally,
		Gatherer:   a.registry,
		Registerer: a.registry,
		Logger:     a.logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("init status server: %w", err)
	}
	return server.Handler(), nil
}

// StartStatus serves the status API on progress.status_addr until Close. It
// returns the bound address, or "" when no address is configured.
func (a *App) StartStatus(ctx context.Context) (string, error) {
	addr := a.cfg.Progress.StatusAddr
	if addr == "" {
		return "", nil
	}
	handler, err := a.StatusHandler()
	if err != nil {
		return "", err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	a.status = &http.Server{Handler: handler, ReadHeaderTimeout: statusReadHeaderTimeout}
	go func() {
		if err := a.status.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	a.logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Close gracefully shuts down all services in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown status server: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	// Sync fails on stderr ttys; best-effort only.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
