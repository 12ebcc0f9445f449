package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/vmunix/wantarr/internal/adapters/plex"
	"github.com/vmunix/wantarr/internal/adminapi"
	"github.com/vmunix/wantarr/internal/config"
	"github.com/vmunix/wantarr/internal/contentsource"
	"github.com/vmunix/wantarr/internal/downloader"
	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/hashcache"
	"github.com/vmunix/wantarr/internal/importer"
	"github.com/vmunix/wantarr/internal/indexer"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/migrations"
	"github.com/vmunix/wantarr/internal/providers"
	"github.com/vmunix/wantarr/internal/runner"
	"github.com/vmunix/wantarr/internal/scheduler"
	"github.com/vmunix/wantarr/internal/scrape"
	"github.com/vmunix/wantarr/internal/selector"
	"github.com/vmunix/wantarr/internal/store"
	"github.com/vmunix/wantarr/internal/symlink"
	"github.com/vmunix/wantarr/internal/tmdb"
	"github.com/vmunix/wantarr/internal/transition"
	"github.com/vmunix/wantarr/internal/watcher"
	"github.com/vmunix/wantarr/internal/worker"
	"github.com/vmunix/wantarr/pkg/tvdb"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 200 { // Only capture first WriteHeader call
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func runServer(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if dbDir := filepath.Dir(cfg.Database.Path); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// === Core domain objects, always created ===
	st := store.NewStore(db)
	hc := hashcache.New(db)
	eventLog := events.NewEventLog(db)
	bus := events.NewBus(st)
	pools := worker.NewManager(logger.With("component", "worker"))
	seedWorkerEnv(cfg.Workers)

	deps := transitionDeps(scrape.DefaultThresholds)

	services := map[providers.Name]providers.Service{}

	// === Metadata indexer (TraktIndexer role) ===
	if cfg.Metadata.TMDBAPIKey != "" || cfg.Metadata.TVDBAPIKey != "" {
		var movies indexer.MovieClient
		var shows indexer.ShowClient
		if cfg.Metadata.TMDBAPIKey != "" {
			movies = tmdb.NewClient(cfg.Metadata.TMDBAPIKey, tmdb.WithLogger(logger))
		}
		if cfg.Metadata.TVDBAPIKey != "" {
			shows = tvdb.New(cfg.Metadata.TVDBAPIKey, tvdb.WithLogger(logger))
		}
		services[providers.NameTraktIndexer] = indexer.New(movies, shows, logger.With("component", "indexer"))
	}

	// === Scraper: Jackett preferred, Torrentio as the zero-indexer fallback ===
	scraperProfile := buildScrapeProfile(cfg.Quality.Profiles[cfg.Quality.Default])
	switch {
	case cfg.Scrapers.Jackett != nil:
		var idxs []scrape.JackettIndexer
		for _, i := range cfg.Scrapers.Jackett.Indexers {
			idxs = append(idxs, scrape.JackettIndexer{Name: i.Name, BaseURL: i.BaseURL, APIKey: i.APIKey})
		}
		services[providers.NameScraping] = scrape.NewJackettScraper(scrape.JackettConfig{
			Indexers:   idxs,
			Profile:    scraperProfile,
			RPS:        cfg.Scrapers.Jackett.RequestsPerSecond,
			Burst:      cfg.Scrapers.Jackett.Burst,
			Thresholds: scrape.DefaultThresholds,
			Categories: scrape.DefaultCategories,
		}, hc, logger.With("component", "scrape", "backend", "jackett"))
	case cfg.Scrapers.Torrentio != nil:
		services[providers.NameScraping] = scrape.NewTorrentioScraper(scrape.TorrentioConfig{
			BaseURL:    cfg.Scrapers.Torrentio.BaseURL,
			Profile:    scraperProfile,
			RPS:        cfg.Scrapers.Torrentio.RequestsPerSecond,
			Burst:      cfg.Scrapers.Torrentio.Burst,
			Thresholds: scrape.DefaultThresholds,
		}, hc, logger.With("component", "scrape", "backend", "torrentio"))
	}

	// === Downloader (Real-Debrid, the only debrid backend wired so far) ===
	if cfg.Debrid.RealDebrid != nil {
		rd := downloader.NewRealDebridClient("https://api.real-debrid.com", cfg.Debrid.RealDebrid.APIKey, logger)
		services[providers.NameDownloader] = downloader.NewService(rd, hc, selector.DefaultConfig(), logger.With("component", "downloader"), downloader.WithEventLog(eventLog))
	}

	// === Symlinker ===
	var materializer *symlink.Materializer
	if cfg.Symlink.RclonePath != "" {
		materializer, err = symlink.New(symlink.Config{
			RclonePath:  cfg.Symlink.RclonePath,
			LibraryPath: cfg.Symlink.LibraryPath,
		}, hc, logger.With("component", "symlink"), symlink.WithEventLog(eventLog))
		if err != nil {
			return fmt.Errorf("symlink: %w", err)
		}
		services[providers.NameSymlinker] = materializer
	}

	// === Library Updater (Plex) ===
	var plexClient *importer.PlexClient
	if cfg.Notifications.Plex != nil && cfg.Notifications.Plex.URL != "" {
		plexClient = importer.NewPlexClientWithPathMapping(
			cfg.Notifications.Plex.URL,
			cfg.Notifications.Plex.Token,
			cfg.Notifications.Plex.LocalPath,
			cfg.Notifications.Plex.RemotePath,
			logger,
		)
	}
	services[providers.NameUpdater] = plex.NewUpdater(plexClient, plexClient != nil, logger.With("component", "updater"))

	// === Content sources, polled by the scheduler ===
	var contentSources []scheduler.ContentSourceConfig
	if cfg.Overseerr.Enabled {
		src := contentsource.NewOverseerr(contentsource.OverseerrConfig{
			URL:    cfg.Overseerr.URL,
			APIKey: cfg.Overseerr.APIKey,
		}, st, logger.With("component", "contentsource", "source", "overseerr"))
		contentSources = append(contentSources, scheduler.ContentSourceConfig{
			Source: src, Name: providers.NameOverseerr, Interval: cfg.Overseerr.SyncInterval,
		})
	}
	if cfg.ContentSources.PlexWatchlist != nil && cfg.ContentSources.PlexWatchlist.Enabled {
		src := contentsource.NewPlexWatchlist(
			cfg.ContentSources.PlexWatchlist.Token, true, st,
			logger.With("component", "contentsource", "source", "plexwatchlist"),
		)
		contentSources = append(contentSources, scheduler.ContentSourceConfig{
			Source: src, Name: providers.NamePlexWatchlist, Interval: cfg.ContentSources.PlexWatchlist.PollInterval,
		})
	}

	// === Admin API ===
	adminSrv := adminapi.New(eventLog, bus, st, logger.With("component", "adminapi"))

	// === Scheduler: content-source polling + retry sweep ===
	sched, err := scheduler.New(scheduler.Config{
		ContentSources:     contentSources,
		RetrySweepInterval: cfg.Scheduler.RetrySweepInterval,
		RetryBatchSize:     cfg.Scheduler.RetryBatchSize,
		OnContentItem: func(ctx context.Context, source providers.Name, it *item.MediaItem) {
			if err := st.UpsertTree(it); err != nil {
				logger.Error("persist content-source item failed", "source", source, "error", err)
				return
			}
			if _, err := bus.Add(events.Event{EmittedBy: source, ItemID: it.ID, RunAt: time.Now()}); err != nil {
				logger.Warn("admit content-source item failed", "source", source, "item_id", it.ID, "error", err)
			}
		},
	}, st, bus, logger.With("component", "scheduler"))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// === Dispatch loop ===
	run := runner.New(st, bus, pools, runner.Config{Services: services, Deps: deps, Log: eventLog}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fsWatcher *watcher.Watcher
	if materializer != nil {
		fsWatcher, err = watcher.New(watcher.Config{LibraryPath: cfg.Symlink.LibraryPath}, st, logger.With("component", "watcher"))
		if err != nil {
			logger.Warn("filesystem watcher disabled", "error", err)
		} else {
			defer func() { _ = fsWatcher.Close() }()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run.Run(gctx) })
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", "error", err)
		}
	}()
	if fsWatcher != nil {
		g.Go(func() error { fsWatcher.Run(gctx); return nil })
	}

	mux := http.NewServeMux()
	adminSrv.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("server starting",
		"addr", addr,
		"database", cfg.Database.Path,
		"scraper", services[providers.NameScraping] != nil,
		"downloader", services[providers.NameDownloader] != nil,
		"symlinker", materializer != nil,
		"plex", plexClient != nil,
		"content_sources", len(contentSources),
		"log_level", cfg.Server.LogLevel,
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("component shutdown error", "error", err)
	}
	pools.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// transitionDeps builds the pure predicates internal/transition.Process
// consults. No PostProcessor adapter is wired (no Subliminal-equivalent
// exists in this build), so SubliminalEnabled stays false and
// PostProcessShouldSubmit stays nil, which transition.Process treats as
// "skip post-processing entirely".
//
// CanScrape mirrors Scraping.can_we_scrape (_is_released and
// should_submit both true), not just the release gate: scrape.ShouldScrape
// enforces the attempt-tiered backoff ladder (spec.md §4.4) so the retry
// sweep doesn't resubmit a released-but-recently-scraped item to every
// configured indexer on every sweep.
func transitionDeps(thresholds scrape.Thresholds) transition.Deps {
	return transition.Deps{
		IndexerShouldSubmit: func(existing *item.MediaItem) bool {
			return existing.IndexedAt == nil
		},
		CanScrape: func(it *item.MediaItem) bool {
			return scrape.ShouldScrape(it, thresholds, time.Now())
		},
	}
}

// seedWorkerEnv sets each service's <SERVICE>_MAX_WORKERS environment
// variable from cfg.Workers, the only channel internal/worker.Manager
// reads pool sizing from (worker.MaxWorkersFromEnv). A variable the
// operator already set in the process environment wins.
func seedWorkerEnv(w config.WorkersConfig) {
	for _, svc := range []providers.Name{
		providers.NameScraping, providers.NameDownloader, providers.NameSymlinker,
		providers.NameUpdater, providers.NamePostProcessing, providers.NameTraktIndexer,
	} {
		n := w.For(string(svc))
		envVar := strings.ToUpper(string(svc)) + "_MAX_WORKERS"
		if _, set := os.LookupEnv(envVar); !set {
			os.Setenv(envVar, strconv.Itoa(n))
		}
	}
}
