package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/photoquest/internal/ai"
	"github.com/playperu/photoquest/internal/config"
	"github.com/playperu/photoquest/internal/database"
	"github.com/playperu/photoquest/internal/geo"
	"github.com/playperu/photoquest/internal/handler/health"
	"github.com/playperu/photoquest/internal/metrics"
	"github.com/playperu/photoquest/internal/migrations"
	"github.com/playperu/photoquest/internal/server"
	"github.com/playperu/photoquest/internal/session"
	"github.com/playperu/photoquest/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Providers ---
	m := metrics.New()

	prompts, err := ai.LoadPrompts(cfg.PromptDir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; generation and verification will fail")
	}
	aiClient := ai.NewClient(ai.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		VisionModel: cfg.AI.VisionModel,
		Temperature: cfg.GenerationTemp,
	}, &http.Client{Timeout: cfg.AIRequestTimeout}, prompts, logger, m)
	logger.Info("prompts loaded", "version", prompts.Version)

	geoClient := &http.Client{Timeout: 30 * time.Second}
	overpass := geo.NewOverpass(geo.OverpassConfig{
		Endpoint:      cfg.OverpassURL,
		Timeout:       cfg.POI.Timeout,
		Limit:         cfg.POI.Limit,
		DefaultRadius: cfg.POI.Radius,
		UserAgent:     cfg.UserAgent,
	}, geoClient, logger, m)
	nominatim := geo.NewNominatim(geo.NominatimConfig{
		Endpoint:          cfg.Geocoder.URL,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.Geocoder.RPS,
	}, geoClient, logger)

	// --- Sessions ---
	sessionStore := store.New(db)
	broker := server.NewBroker()
	sessions := session.NewManager(session.Dependencies{
		Resolver:  overpass,
		Generator: aiClient,
		Verifier:  aiClient,
		Store:     sessionStore,
		Notifier:  broker,
	}, logger)
	defer sessions.Close()

	// --- HTTP Server ---
	deps := server.Deps{
		Logger:   logger,
		Sessions: sessions,
		Broker:   broker,
		Geocoder: nominatim,
		POIs:     overpass,
		AI:       aiClient,
		Health: map[string]health.Checker{
			"sqlite": health.DB(db),
			"schema": health.CheckerFunc(func(ctx context.Context) error {
				v, err := migrations.Version(db)
				if err != nil {
					return err
				}
				if v < 1 {
					return errors.New("schema not migrated")
				}
				return nil
			}),
		},
		AIRatePerMinute: cfg.AIRatePerMinute,
		AIRateBurst:     cfg.AIRateBurst,
		WebDir:          cfg.WebDir,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = m
	}
	srv := server.New(cfg.HTTPAddr, deps)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		return sweepSessions(gctx, sessions, sessionStore, cfg.SessionTTL, cfg.SessionSweepInterval, logger)
	})

	return g.Wait()
}

// sweepSessions evicts cached sessions and deletes stored ones idle for
// longer than ttl.
func sweepSessions(ctx context.Context, sessions *session.Manager, st *store.SessionStore, ttl, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().Add(-ttl)
			evicted := sessions.Sweep(cutoff)
			n, err := st.PurgeBefore(ctx, cutoff)
			if err != nil {
				logger.Error("purging sessions", "error", err)
				continue
			}
			counts, err := st.CountByStatus(ctx)
			if err != nil {
				logger.Error("counting sessions", "error", err)
				continue
			}
			logger.Info("session sweep", "evicted", evicted, "purged", n, "cached", sessions.Len(), "remaining", counts)
		}
	}
}
