// Package app wires configuration into a running engine: session, scrape
// coordinator, reconciler, state store, status monitor, event pipeline,
// persistence, and the optional debug server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marketglass/marketglass/internal/api"
	"github.com/marketglass/marketglass/internal/automation"
	"github.com/marketglass/marketglass/internal/clock/system"
	"github.com/marketglass/marketglass/internal/config"
	"github.com/marketglass/marketglass/internal/extract"
	"github.com/marketglass/marketglass/internal/hash/sha256"
	"github.com/marketglass/marketglass/internal/id/uuid"
	"github.com/marketglass/marketglass/internal/logging"
	"github.com/marketglass/marketglass/internal/metrics"
	"github.com/marketglass/marketglass/internal/persist"
	"github.com/marketglass/marketglass/internal/progress"
	"github.com/marketglass/marketglass/internal/progress/sinks"
	"github.com/marketglass/marketglass/internal/reconcile"
	"github.com/marketglass/marketglass/internal/scrape"
	"github.com/marketglass/marketglass/internal/state"
	"github.com/marketglass/marketglass/internal/status"
	"github.com/marketglass/marketglass/internal/store"
)

const eventJournalCapacity = 256

// App holds the wired engine. Build constructs it, Run drives it until the
// context is cancelled, Close releases external resources.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	logPath string

	session     scrape.Session
	gateway     *persist.Gateway
	state       *state.Store
	monitor     *status.Monitor
	journal     *store.Journal
	hub         *progress.Hub
	coordinator *scrape.Coordinator
	saver       *persist.Saver
	apiServer   *api.Server
}

// Build constructs every component from the configuration and opens the
// automation session. The returned app is ready for Run.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	metrics.Init()

	logger, logPath, err := logging.NewFile(
		filepath.Join(cfg.DataDir, "logs"),
		cfg.LogDevelopment,
		cfg.LogRetentionDays,
	)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	a := &App{cfg: cfg, logger: logger, logPath: logPath}
	logger.Info("building engine",
		zap.String("seller", cfg.Seller),
		zap.String("base_url", cfg.BaseURL),
		zap.String("session_provider", cfg.SessionProvider),
		zap.String("data_dir", cfg.DataDir),
		zap.String("log_file", logPath),
	)

	urls, err := scrape.NewURLs(cfg.BaseURL, cfg.Seller)
	if err != nil {
		return nil, err
	}

	a.gateway, err = persist.New(cfg.DataDir, logger.Named("persist"))
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}

	a.state = state.NewStore(logger.Named("state"))
	if err := a.seedFromDisk(); err != nil {
		return nil, err
	}

	clk := system.New()
	a.monitor = status.NewMonitor(status.Config{
		WindowSize:    cfg.HealthWindow,
		DegradedRatio: cfg.HealthDegradedRatio,
		PoorRatio:     cfg.HealthPoorRatio,
		Hold:          cfg.ActivityHold,
	}, a.state, clk, logger.Named("status"))

	a.journal = store.NewJournal(eventJournalCapacity)
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("event metrics init failed: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger.Named("events")},
		sinks.NewLogSink(logger.Named("events")),
		sinks.NewJournalSink(a.journal),
		promSink,
	)

	switch cfg.SessionProvider {
	case config.SessionChromedp:
		a.session = automation.NewBrowserSession(automation.BrowserConfig{}, logger.Named("browser"))
	case config.SessionHTTP:
		a.session = automation.NewHTTPSession(automation.HTTPConfig{
			Timeout: cfg.RequestTimeout,
		}, logger.Named("http"))
	default:
		return nil, fmt.Errorf("unknown session provider %q", cfg.SessionProvider)
	}

	executor := scrape.NewExecutor(
		a.session,
		urls,
		scrape.NewDefaultPatternDetector(),
		sha256.New(),
		clk,
		scrape.ExecutorConfig{
			Timeout:    cfg.RequestTimeout,
			RatePerSec: cfg.FetchRatePerSec,
		},
		logger.Named("fetch"),
	)

	a.coordinator, err = scrape.NewCoordinator(scrape.CoordinatorConfig{
		MaxConcurrent: cfg.MaxConcurrentRequests,
		Interval:      cfg.ScrapeInterval,
		Schedule:      cfg.RefreshSchedule,
	}, scrape.CoordinatorDeps{
		Fetcher:   executor,
		Extractor: extract.NewExtractor(),
		Merger: reconcile.New(reconcile.Config{
			GraceRefreshes: cfg.EndedGraceRefreshes,
		}, logger.Named("reconcile")),
		Store:  a.state,
		Status: scrape.FanoutStatusSink{a.monitor, progress.NewEngineSink(a.hub, clk)},
		Retry:  scrape.NewRetryPolicy(cfg.RetryAttempts, cfg.BackoffBase, cfg.BackoffMax),
		IDs:    uuid.New(),
		Clock:  clk,
		Logger: logger.Named("engine"),
	})
	if err != nil {
		return nil, err
	}

	a.saver = persist.NewSaver(a.gateway, a.state, cfg.PersistInterval, logger.Named("persist"))
	a.apiServer = api.NewServer(a.state, a.journal, logger.Named("api"))

	if err := a.session.Open(ctx); err != nil {
		_ = a.hub.Close(ctx)
		return nil, fmt.Errorf("open %s session: %w", cfg.SessionProvider, err)
	}
	return a, nil
}

// seedFromDisk loads the persisted store into the state store. Corrupt
// files are archived and the engine cold-starts; only structural problems
// abort the build.
func (a *App) seedFromDisk() error {
	seed, err := a.gateway.Load()
	switch {
	case err == nil:
	case persist.IsCorrupt(err):
		a.logger.Warn("store files corrupt, recreating", zap.Error(err))
		if rerr := a.gateway.Recreate(); rerr != nil {
			return fmt.Errorf("recreate store: %w", rerr)
		}
		return nil
	default:
		return fmt.Errorf("load store: %w", err)
	}
	if a.state.Seed(seed) {
		a.logger.Info("store loaded", zap.Int("listings", len(seed.Listings)))
	}
	return nil
}

// Run starts the engine goroutines and blocks until the context is
// cancelled or a signal arrives, then drains and closes everything.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.logger.Info("engine started", zap.String("seller", a.cfg.Seller))

	runErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.coordinator.Run(ctx); err != nil {
			select {
			case runErr <- err:
			default:
			}
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	// The saver outlives the engine context so the last drained merge
	// still reaches disk.
	saverCtx, saverCancel := context.WithCancel(context.Background())
	defer saverCancel()
	var saverWg sync.WaitGroup
	saverWg.Add(1)
	go func() {
		defer saverWg.Done()
		a.saver.Run(saverCtx)
	}()

	var srv *http.Server
	if a.cfg.DebugListen != "" {
		srv = &http.Server{
			Addr:              a.cfg.DebugListen,
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("debug server started", zap.String("addr", a.cfg.DebugListen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("debug server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("debug server shutdown error", zap.Error(err))
		}
	}
	wg.Wait()
	saverCancel()
	saverWg.Wait()

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-runErr:
		return err
	default:
	}
	return closeErr
}

// Close releases the session and flushes the event pipeline. Safe to call
// after Run returns; Run calls it itself on the way out.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			a.logger.Warn("session close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the app-wide logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// LogPath returns the active log file path.
func (a *App) LogPath() string {
	return a.logPath
}

// State returns the published-state store.
func (a *App) State() *state.Store {
	return a.state
}

// Monitor returns the status monitor.
func (a *App) Monitor() *status.Monitor {
	return a.monitor
}

// Coordinator returns the scrape coordinator for submitting refreshes and
// resolving captcha gates.
func (a *App) Coordinator() *scrape.Coordinator {
	return a.coordinator
}

// Gateway returns the persistence gateway.
func (a *App) Gateway() *persist.Gateway {
	return a.gateway
}
