// Command paygate runs the payment verification, settlement and
// entitlement service. Every dependency is constructed here once and
// injected; nothing below this file reads the environment.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/modulo-ai/paygate/agentpay"
	handler "github.com/modulo-ai/paygate/api"
	"github.com/modulo-ai/paygate/auth"
	"github.com/modulo-ai/paygate/config"
	"github.com/modulo-ai/paygate/entitlement"
	"github.com/modulo-ai/paygate/facilitator"
	"github.com/modulo-ai/paygate/reconcile"
	"github.com/modulo-ai/paygate/vault"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	counterStore, closeStore := newCounterStore(ctx, cfg, logger)
	defer closeStore()

	keyVault := vault.New(cfg.MasterKey)
	reconciler := reconcile.New(cfg, logger)

	var backend facilitator.PaymentBackend
	switch cfg.FacilitatorMode {
	case config.FacilitatorModeRemote:
		backend, err = facilitator.NewRemoteBackend(cfg.FacilitatorBaseURL, logger)
		if err != nil {
			return err
		}
	default:
		logger.Warn("using mock payment backend; settlements are fabricated")
		backend = facilitator.NewMockBackend()
	}

	adapter := facilitator.New(backend, reconciler, facilitator.Options{
		Network: cfg.DefaultNetwork,
		Asset:   cfg.AssetContract,
	})

	walletStore := agentpay.NewWalletStore(db, keyVault)

	h := &handler.Handler{
		Cfg:      cfg,
		Auth:     auth.New(cfg.StaticAPIKey, db),
		Adapter:  adapter,
		TryOnce:  entitlement.NewTryOnce(counterStore),
		Sessions: entitlement.NewSessions(counterStore, cfg.SessionSecret),
		Builder:  agentpay.NewBuilder(walletStore, keyVault, cfg),
		Logger:   logger,
	}

	mux := http.NewServeMux()
	h.Routes(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "facilitatorMode", cfg.FacilitatorMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCounterStore connects to redis when configured, falling back to the
// in-memory store otherwise. The fallback is single-instance only; credit
// accounting across replicas requires redis.
func newCounterStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (entitlement.CounterStore, func()) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; using in-memory entitlement store")
		return entitlement.NewMemoryStore(), func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, falling back to in-memory entitlement store", "error", err)
		return entitlement.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory entitlement store", "error", err)
		_ = client.Close()
		return entitlement.NewMemoryStore(), func() {}
	}

	return entitlement.NewRedisStore(client), func() { _ = client.Close() }
}
