package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/snapshot-analysis/internal/application"
	appanalysis "github.com/bryanwahyu/snapshot-analysis/internal/application/analysis"
	"github.com/bryanwahyu/snapshot-analysis/internal/config"
	"github.com/bryanwahyu/snapshot-analysis/internal/infra/httpserver"
	"github.com/bryanwahyu/snapshot-analysis/internal/infra/memstore"
	archive "github.com/bryanwahyu/snapshot-analysis/internal/infra/storage"
	"github.com/bryanwahyu/snapshot-analysis/internal/middleware"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}

	ctx := context.Background()

	// the store is built once and handed to the request handlers; it is
	// seeded so a fresh process has non-empty output
	store := memstore.New(application.SystemClock{})

	svc := &appanalysis.Service{
		Repo:  store,
		Clock: application.SystemClock{},
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.New(ctx,
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
			cfg.Archive.BucketName,
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			cfg.Archive.UseSSL,
		)
		if err != nil {
			logger.Fatal("archive storage init error", zap.Error(err))
		}
		svc.Archiver = archiver
	}

	checkers := map[string]middleware.HealthChecker{
		"store": middleware.HealthCheckerFunc(func(ctx context.Context) error {
			_, err := store.List(ctx, nil)
			return err
		}),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: true,
	}))
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(limiter.RateLimit)
	mux.Mount("/", httpserver.NewRouter(svc, logger, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
