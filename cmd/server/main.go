package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Bikorwhat/ecommerce/internal/audit"
	"github.com/Bikorwhat/ecommerce/internal/auth"
	"github.com/Bikorwhat/ecommerce/internal/auth/jwks"
	authstore "github.com/Bikorwhat/ecommerce/internal/auth/store"
	paymenthandler "github.com/Bikorwhat/ecommerce/internal/payment/handler"
	"github.com/Bikorwhat/ecommerce/internal/payment/khalti"
	"github.com/Bikorwhat/ecommerce/internal/payment/service"
	paymentstore "github.com/Bikorwhat/ecommerce/internal/payment/store"
	"github.com/Bikorwhat/ecommerce/internal/platform/config"
	"github.com/Bikorwhat/ecommerce/internal/platform/httpserver"
	"github.com/Bikorwhat/ecommerce/internal/platform/logger"
	"github.com/Bikorwhat/ecommerce/internal/platform/metrics"
	httptransport "github.com/Bikorwhat/ecommerce/internal/transport/http"
)

const auditQueueSize = 256

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal services.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	m := metrics.New()

	users, purchases, closeStores, err := buildStores(cfg)
	if err != nil {
		log.Error("store setup failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	auditInbox := make(chan audit.Event, auditQueueSize)
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(auditInbox, log)
	worker := audit.NewWorker(auditStore, auditInbox)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = worker.Run(workerCtx)
	}()

	keyCache := jwks.New(cfg.JWKSURL(), cfg.JWKSCacheTTL, jwks.WithRefreshMetrics(m.KeyRingRefreshes))
	resolver := authstore.NewResolver(users, m, publisher)
	authenticator := auth.NewAuthenticator(keyCache, resolver, cfg.Auth0Audience, cfg.Auth0Issuer, m)

	gateway := khalti.NewClient(cfg.KhaltiBaseURL, cfg.KhaltiSecretKey)
	payments := service.New(gateway, purchases, cfg.FrontendURL, m, publisher, log)
	handler := paymenthandler.New(log, payments)

	router := httptransport.NewRouter(log, handler, authenticator)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting server",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"store_backend", cfg.StoreBackend,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopWorker()
	<-workerDone
}

// buildStores selects the user and ledger backends from configuration.
func buildStores(cfg *config.Config) (authstore.UserStore, paymentstore.PurchaseStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		closer := func() { _ = db.Close() }
		return authstore.NewPostgresUserStore(db), paymentstore.NewPostgresStore(db), closer, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		closer := func() { _ = client.Close() }
		// Local users stay in memory under the redis backend; they are
		// re-created on first sight after a restart.
		return authstore.NewInMemoryUserStore(), paymentstore.NewRedisStore(client), closer, nil

	default:
		return authstore.NewInMemoryUserStore(), paymentstore.NewInMemoryStore(), func() {}, nil
	}
}
