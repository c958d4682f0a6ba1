package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/socialfi/market-ledger/internal/api"
	"github.com/socialfi/market-ledger/internal/config"
	"github.com/socialfi/market-ledger/internal/curve"
	"github.com/socialfi/market-ledger/internal/events"
	"github.com/socialfi/market-ledger/internal/executor"
	"github.com/socialfi/market-ledger/internal/fees"
	"github.com/socialfi/market-ledger/internal/ledger"
	"github.com/socialfi/market-ledger/internal/metrics"
	"github.com/socialfi/market-ledger/internal/quote"
	"github.com/socialfi/market-ledger/internal/risk"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	params, err := curve.NewParams(cfg.CurveBase, cfg.CurveExponent, cfg.FeeRate)
	if err != nil {
		slog.Error("invalid curve parameters", "err", err)
		os.Exit(1)
	}
	splitter, err := fees.NewSplitter(cfg.FeeCreatorPct, cfg.FeePlatformPct, cfg.FeeLiquidityPct)
	if err != nil {
		slog.Error("invalid fee split", "err", err)
		os.Exit(1)
	}
	quote.MinTradeSize = cfg.MinTradeShares

	// --- Initialize stores ---
	// The executor commits against the primary store; the cached store, if
	// Redis is configured, serves only the read-only query endpoints.
	var primary ledger.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		primary = ledger.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		primary = ledger.NewMemoryStore()
	}

	queries := primary
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		queries = ledger.NewCachedStore(primary, rdb, 30*time.Second)
		slog.Info("Redis cache enabled for query paths")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if markets, err := primary.ListMarkets(context.Background()); err == nil {
		metrics.ActiveMarkets.Set(float64(len(markets)))
	}

	// --- Event bus and WebSocket hub ---
	bus := events.NewBus(256)
	wsHub := api.NewWSHub(bus)
	go wsHub.Run()

	// --- Trade executor ---
	var limiter *risk.ExposureLimiter
	if cfg.MaxPositionShares.IsPositive() || cfg.MaxNetworkShares.IsPositive() {
		limiter = risk.NewExposureLimiter(cfg.MaxPositionShares, cfg.MaxNetworkShares)
		slog.Info("exposure limits enabled",
			"max_position_shares", cfg.MaxPositionShares,
			"max_network_shares", cfg.MaxNetworkShares)
	}
	exec := executor.New(primary, quote.NewBuilder(params), splitter, limiter, executor.Config{
		MaxRetries:        cfg.MaxCommitRetries,
		StartingBalance:   cfg.StartingBalance,
		SeedSupply:        cfg.MarketSeedSupply,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		CreatorFeeAccount: cfg.CreatorFeeAccount,
	}, bus)

	apiSvc := api.NewService(exec, queries, cfg.TradeThrottleLimit)

	// --- Idempotency sweeper ---
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		if _, err := exec.PurgeExpiredIdempotency(context.Background()); err != nil {
			slog.Error("idempotency sweep failed", "err", err)
		}
	}); err != nil {
		slog.Error("failed to schedule idempotency sweep", "err", err)
		os.Exit(1)
	}
	sweeper.Start()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-ledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time market activity.
		r.Get("/ws", wsHub.HandleWS)

		apiSvc.Mount(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-ledger listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-ledger...")
	sweeper.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-ledger stopped")
}
