package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hqtran/inventory-core/internal/adapter/handler"
	"github.com/hqtran/inventory-core/internal/adapter/storage"
	"github.com/hqtran/inventory-core/internal/config"
	"github.com/hqtran/inventory-core/internal/core/domain"
	"github.com/hqtran/inventory-core/internal/core/service"
	"github.com/hqtran/inventory-core/internal/port"
)

const serviceName = "inventory-core"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", serviceName).Logger()
	logger := zlog.Logger

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MySQL ledger
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}
	logger.Info().Msg("connected to mysql")

	// Redis mirror
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	logger.Info().Msg("connected to redis")

	ledger := storage.NewMySQLLedger(db, cfg.Reservation.MaxRetries, cfg.Reservation.MutationTimeout)
	cache := storage.NewRedisCache(rdb)

	reservations := service.NewReservationService(ledger, cache, logger, cfg.Reservation.QueueSize)

	// Movement journal workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.Reservation.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			journalLoop(id, reservations.MovementQueue(), ledger, logger)
		}(i)
	}
	logger.Info().Int("workers", cfg.Reservation.WorkerCount).Msg("started journal workers")

	httpHandler := handler.NewHTTPHandler(reservations, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/reserve", httpHandler.Reserve)
	mux.HandleFunc("/api/restock", httpHandler.Restock)
	mux.HandleFunc("/api/availability", httpHandler.Availability)

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	logger.Info().Msg("servers stopped")

	// Drain the journal before closing connections.
	reservations.Close()
	wg.Wait()
	logger.Info().Msg("journal workers stopped")

	rdb.Close()
	db.Close()
	logger.Info().Msg("connections closed")
}

func journalLoop(id int, queue <-chan domain.Movement, ledger port.StockLedger, logger zerolog.Logger) {
	for m := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := ledger.RecordMovement(ctx, m); err != nil {
			// Audit only: the counter mutation already committed, so the
			// entry is logged and dropped rather than retried forever.
			logger.Error().
				Int("worker", id).
				Str("movement_id", m.ID).
				Str("order_id", m.OrderID).
				Str("resource", domain.ResourceKey(m.ProductID, m.VariantKey)).
				Err(err).
				Msg("failed to record stock movement")
		}

		cancel()
	}
}
