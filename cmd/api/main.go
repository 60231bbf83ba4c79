package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marketplace-checkout/internal/config"
	"marketplace-checkout/internal/db"
	"marketplace-checkout/internal/fulfillment"
	"marketplace-checkout/internal/httpserver"
	"marketplace-checkout/internal/lock"
	"marketplace-checkout/internal/logger"
	"marketplace-checkout/internal/metrics"
	"marketplace-checkout/internal/promotion"
	cartrepo "marketplace-checkout/internal/repository/cart"
	checkoutsvc "marketplace-checkout/internal/service/checkout"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("api")

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, db.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		log.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckout(reg)

	readyChecks := map[string]httpserver.Pinger{"db": dbpool}
	opts := checkoutsvc.Options{
		AbortOnUnstructuredCreateFailure: cfg.Fulfillment.AbortOnUnstructuredCreateFailure,
		Metrics:                          checkoutMetrics,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		locker := lock.NewRedis(rdb, cfg.CheckoutLockTTL)
		opts.Locker = locker
		readyChecks["redis"] = locker
	} else {
		log.Warn("REDIS_ADDR not set, concurrent checkouts of one cart are not guarded")
	}

	cartRepo := cartrepo.NewPostgres(dbpool)
	gateway := promotion.NewGateway(promotion.GatewayConfig{
		BaseURL: cfg.Promo.BaseURL,
		Token:   cfg.Promo.Token,
		Timeout: cfg.Promo.Timeout,
	}, log)
	client := fulfillment.NewClient(fulfillment.Config{
		BaseURL: cfg.Fulfillment.BaseURL,
		Token:   cfg.Fulfillment.Token,
		Timeout: cfg.Fulfillment.CallTimeout,
	}, log)
	checkoutService := checkoutsvc.New(cartRepo, gateway, client, log, opts)

	srv := httpserver.New(cfg.HTTPAddr, log, httpserver.Deps{
		CheckoutSvc:      checkoutService,
		Metrics:          metrics.Handler(reg),
		ReadyChecks:      readyChecks,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("server stopped")
	}
}
