// Command tunehunt is the main entry point for the tunehunt game server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/catalog/spotify"
	"github.com/pshemk/tunehunt/internal/catalog/video"
	"github.com/pshemk/tunehunt/internal/config"
	"github.com/pshemk/tunehunt/internal/gateway"
	"github.com/pshemk/tunehunt/internal/health"
	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/playback"
	"github.com/pshemk/tunehunt/internal/resilience"
	"github.com/pshemk/tunehunt/internal/room"
	"github.com/pshemk/tunehunt/internal/store"
	"github.com/pshemk/tunehunt/internal/store/memstore"
	"github.com/pshemk/tunehunt/internal/store/postgres"
)

const defaultListenAddr = ":8080"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "tunehunt.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can change it without
	// swapping the handler.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tunehunt: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tunehunt: %v\n", err)
		}
		return 1
	}
	level.Set(cfg.Server.LogLevel.SlogLevel())

	slog.Info("tunehunt starting",
		"config", *configPath,
		"listen_addr", listenAddr(cfg),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Catalog providers ─────────────────────────────────────────────────────
	videoProvider := video.New(cfg.Catalog.Video.APIKey)

	var providers []catalog.Provider
	if cfg.Catalog.Spotify.ClientID != "" {
		sp, err := spotify.New(cfg.Catalog.Spotify.ClientID, cfg.Catalog.Spotify.ClientSecret)
		if err != nil {
			slog.Error("failed to create spotify provider", "err", err)
			return 1
		}
		providers = append(providers, sp)
		slog.Info("catalog provider ready", "source", sp.Source())
	}
	providers = append(providers, videoProvider)
	slog.Info("catalog provider ready", "source", videoProvider.Source())

	breaker := resilience.NewDeadlineBreaker(resilience.BreakerConfig{
		Name: "video-search",
		Hold: cfg.Catalog.Video.BreakerHold.Std(),
	})

	// ── Snapshot store ────────────────────────────────────────────────────────
	var (
		st store.Store
		pg *postgres.Store
	)
	if cfg.Store.PostgresDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		st = pg
		slog.Info("snapshot store ready", "backend", "postgres")
	} else {
		st = memstore.New()
		slog.Info("snapshot store ready", "backend", "memory")
	}

	// ── Token verifier ────────────────────────────────────────────────────────
	var verifier auth.Verifier
	if cfg.Auth.VerifyEndpoint != "" {
		v, err := auth.NewHTTPVerifier(cfg.Auth.VerifyEndpoint)
		if err != nil {
			slog.Error("failed to create token verifier", "err", err)
			return 1
		}
		verifier = v
	}

	// ── Engine and gateway ────────────────────────────────────────────────────
	svc := room.NewService(room.ServiceConfig{
		Store:     st,
		Resolver:  playback.NewResolver(videoProvider, breaker),
		Verifier:  verifier,
		MinTracks: cfg.Game.MinTracks,
	})

	gw := gateway.New(gateway.Config{
		Service:        svc,
		Catalog:        catalog.NewResolver(providers...),
		Store:          st,
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	mux := http.NewServeMux()
	gw.Routes(mux)

	var checks []health.Check
	if pg != nil {
		checks = append(checks, health.Check{Name: "postgres", Probe: pg.Ping})
	}
	health.New(svc.Registry().Count, checks...).Register(mux)

	// ── Hot reload ────────────────────────────────────────────────────────────
	// The watcher starts after the service exists so the callback never sees
	// a half-built server.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(level, svc, config.Diff(old, new))
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    listenAddr(cfg),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyConfigChange applies the hot-reloadable subset of a config change.
func applyConfigChange(level *slog.LevelVar, svc *room.Service, d config.ChangeSet) {
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MinTracksChanged && svc != nil {
		svc.SetMinTracks(d.NewMinTracks)
		slog.Info("minimum track count changed", "min_tracks", d.NewMinTracks)
	}
	if d.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
}

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return defaultListenAddr
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        tunehunt — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Listen addr", listenAddr(cfg))
	printEntry("Spotify", configured(cfg.Catalog.Spotify.ClientID != ""))
	printEntry("Video API", configured(cfg.Catalog.Video.APIKey != ""))
	printEntry("Auth", configured(cfg.Auth.VerifyEndpoint != ""))
	if cfg.Store.PostgresDSN != "" {
		printEntry("Store", "postgres")
	} else {
		printEntry("Store", "memory")
	}
	printEntry("TLS", configured(cfg.Server.TLS != nil))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "(disabled)"
}
