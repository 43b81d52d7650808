package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-vault/config"
	"token-vault/internal/api"
	"token-vault/internal/secrets"
	"token-vault/lifecycle"
	"token-vault/observability"
	"token-vault/repository"
	"token-vault/scheduler"
	"token-vault/services"

	"github.com/joho/godotenv"
)

func main() {
	observability.InitLogger(true)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		observability.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	observability.SetMetrics(observability.NewMetrics(nil))

	ctx := context.Background()

	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		observability.Fatal("failed to connect to database", "error", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		observability.Fatal("failed to run migrations", "error", err)
	}
	observability.Info("database ready")

	cipher, err := secrets.New(cfg.Encryption.Key)
	if err != nil {
		observability.Fatal("failed to initialize cipher", "error", err)
	}

	kite := services.NewKiteService(cfg.Kite.BaseURL, cfg.Kite.Timeout)

	cutoff := lifecycle.Cutoff{Hour: cfg.Scheduler.CutoffHour, Minute: cfg.Scheduler.CutoffMinute}
	manager := lifecycle.NewManager(repo, cipher, kite, cutoff)

	sched := scheduler.New(repo, cutoff, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReportOffset)
	schedCtx, stopScheduler := context.WithCancel(ctx)
	sched.Start(schedCtx)

	handler := api.NewHandler(manager, sched, repo)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		observability.Info("starting server", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down...")

	stopScheduler()
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}
	observability.Info("server stopped")
}
