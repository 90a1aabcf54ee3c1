// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/hiertree/internal/api"
	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/live"
	"github.com/starford/hiertree/internal/mcpserver"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/snapshot"
	"github.com/starford/hiertree/internal/sse"
	"github.com/starford/hiertree/internal/store"
	"github.com/starford/hiertree/internal/treeservice"
)

// components are the pieces shared by the HTTP and MCP entry points.
type components struct {
	logger *slog.Logger
	db     *store.DB
	snaps  *snapshot.FS
	svc    *treeservice.Service
}

func setup(ctx context.Context, opts []Option) (*components, *Config, error) {
	app := &application{logWriter: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(app.logWriter, cfg.App)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("seed", cfg.Seed.Dir+"/"+cfg.Seed.File),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	snaps, err := snapshot.NewFS(cfg.Seed.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("init snapshots: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	svc := treeservice.NewService(db, snaps, cfg.Seed.File,
		treeservice.WithLayout(cfg.Overlay.Layout),
		treeservice.WithGap(cfg.Overlay.Gap),
	)

	seeded, err := svc.EnsureSeeded(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load seed: %w", err)
	}
	if seeded {
		logger.Info("Store seeded", slog.String("seed", cfg.Seed.File))
	}

	return &components{logger: logger, db: db, snaps: snaps, svc: svc}, cfg, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, cfg, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	broker := sse.NewBroker(cfg.Overlay.Throttle)
	defer broker.Close()

	session := live.NewSession(broker, live.Config{
		Width:        cfg.Overlay.Width,
		Height:       cfg.Overlay.Height,
		Gap:          cfg.Overlay.Gap,
		Layout:       cfg.Overlay.Layout,
		Frames:       connector.TickerFrames{Interval: cfg.Overlay.FrameInterval},
		HighlightTTL: cfg.Overlay.HighlightTTL,
	})
	defer session.Close()

	if nodes, _, err := c.svc.List(ctx); err == nil {
		session.Update(nodes)
	} else {
		logger.Warn("initial view failed", slog.String("error", err.Error()))
	}

	c.svc.SetOnChange(func(kind string, id int64, nodes []models.Node) {
		broker.PublishTreeEvent(kind, id)
		session.Update(nodes)
		if kind == treeservice.KindCreated {
			session.Highlight(id)
		}
	})

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, session)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.CORSMiddleware(cfg.App.HTTP.CORSOrigins))

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.db.Count(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Watch the seed file so clients can offer a reset to the new seed.
	if cfg.Seed.Watch {
		g.Go(func() error {
			err := snapshot.Watch(gCtx, c.snaps.Root(), cfg.Seed.File, logger, func(kind, path string) {
				broker.Publish(sse.Event{Type: sse.TypeSeedUpdated, Data: map[string]string{
					"path": path,
					"op":   kind,
				}})
			})
			if err != nil {
				logger.Warn("seed watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// SSE streams only end when their clients go away.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the tree tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogWriter(os.Stderr)}, opts...)
	c, _, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer c.db.Close()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.svc).ServeStdio()
}
