package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/roza-in/client-sub001/internal/api"
	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/booking"
	"github.com/roza-in/client-sub001/internal/config"
	"github.com/roza-in/client-sub001/internal/db"
	"github.com/roza-in/client-sub001/internal/logging"
	"github.com/roza-in/client-sub001/internal/notify"
	"github.com/roza-in/client-sub001/internal/payment"
	"github.com/roza-in/client-sub001/internal/redisclient"
	"github.com/roza-in/client-sub001/internal/schedule"
	"github.com/roza-in/client-sub001/internal/slotlock"

	"github.com/hibiken/asynq"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.New(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	bookingRepo := booking.NewPgRepository(pgPool)

	dispatcher := notify.NewDispatcher(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}, logger)
	defer func() { _ = dispatcher.Close() }()

	gateway := payment.NewRazorpayGateway(cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayBaseURL)

	// The calculator reads active holds through the lock reader; the lock
	// manager validates slots against the calculator and checks occupancy
	// against the appointment store.
	calculator := availability.NewCalculator(scheduleRepo, bookingRepo, slotlock.NewReader(rdb), cfg.MaxRangeDays)
	locker := slotlock.NewRedisManager(rdb, cfg.LockTTL, calculator, bookingRepo)

	svc := booking.NewService(bookingRepo, scheduleRepo, locker, gateway, dispatcher, booking.FeePolicy{
		PlatformPctOnline:   cfg.PlatformFeePctOnline,
		PlatformPctInPerson: cfg.PlatformFeePctInPerson,
	}, logger)

	router := api.NewRouter(api.RouterConfig{
		Bookings:     svc,
		Availability: calculator,
		Locker:       locker,
		PgPool:       pgPool,
		Redis:        rdb,
		Log:          logger,
		Env:          cfg.Env,
		Version:      version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
