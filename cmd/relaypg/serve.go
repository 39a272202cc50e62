package relaypg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/relaypg/relaypg/config"
	"github.com/relaypg/relaypg/graph"
	"github.com/relaypg/relaypg/handler"
	"github.com/relaypg/relaypg/schema"
	"github.com/relaypg/relaypg/store"
)

// RunServe starts the GraphQL server.
func RunServe() error {
	// Best effort, a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	reg, err := LoadModels(cfg.Models)
	if err != nil {
		return err
	}
	sc, err := schema.Load(reg)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	logger.Info("schema loaded", "models", len(reg.Models()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.New(pool, sc, logger)

	executor := graph.NewExecutor(sc)
	graph.Bind(executor, st)

	srv := handler.NewWithConfig(executor, st, logger, handler.Config{
		RequestTimeout:   cfg.GraphQL.RequestTimeout,
		EnablePlayground: cfg.GraphQL.PlaygroundEnabled,
		PlaygroundPath:   "/playground",
	})
	srv.AddTransport(handler.NewOPTIONS())
	srv.AddTransport(handler.NewGET())
	srv.AddTransport(handler.NewPOST())

	srv.Use(handler.NewErrorLogger(logger))
	srv.Use(handler.NewRequestLogger(logger))
	if !cfg.GraphQL.IntrospectionEnabled {
		srv.Use(handler.NewIntrospectionDisabler())
	}
	if cfg.GraphQL.ComplexityLimit > 0 {
		srv.Use(handler.NewComplexityLimit(cfg.GraphQL.ComplexityLimit))
	}
	if cfg.GraphQL.PersistedQueries {
		srv.Use(handler.NewAPQ())
	}
	if cfg.GraphQL.Tracing {
		srv.Use(handler.NewTracing())
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.GraphQL.Path, srv)
	if cfg.GraphQL.PlaygroundEnabled {
		mux.Handle("/playground", srv)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "path", cfg.GraphQL.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
