// Package main запускает HTTP-сервер сервиса стриков.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/streak-tracker/internal/config"
	"github.com/mmeshcher/streak-tracker/internal/handler"
	"github.com/mmeshcher/streak-tracker/internal/jobs"
	"github.com/mmeshcher/streak-tracker/internal/metrics"
	"github.com/mmeshcher/streak-tracker/internal/middleware"
	"github.com/mmeshcher/streak-tracker/internal/repository"
	"github.com/mmeshcher/streak-tracker/internal/rpc"
	"github.com/mmeshcher/streak-tracker/internal/service"
)

const (
	freezeRPS   = 1
	freezeBurst = 5
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	backend, err := newBackend(cfg)
	if err != nil {
		sugar.Fatalw("backend initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.NewService(backend, logger, m, loc)
	defer svc.Close()

	limiter := middleware.NewRateLimiter(freezeRPS, freezeBurst)
	scheduler := jobs.NewScheduler(svc, cfg.SessionTTL, loc, logger, limiter)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if cfg.AuthSecret == "" {
		sugar.Warn("auth secret is not set, issued tokens will not survive a restart")
	}
	h := handler.NewHandler(svc, logger, authMiddleware, limiter, m)

	r := h.SetupRouter(reg)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Полуночный пересчёт статусов и очистка простаивающих сессий
	g.Go(func() error {
		if err := scheduler.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting streak server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newBackend выбирает хостинговый бэкенд, если задан его адрес, иначе PostgreSQL.
func newBackend(cfg *config.Config) (service.Backend, error) {
	if cfg.BackendURL != "" {
		return rpc.NewClient(cfg.BackendURL, cfg.BackendKey), nil
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
