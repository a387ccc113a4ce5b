package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

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
)

// The reconciler does two jobs: it periodically cancels abandoned
// pending_payment appointments so their slots free up, and it consumes the
// notification queue.
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

	logger.Info("reconciler starting up",
		zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

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

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}

	dispatcher := notify.NewDispatcher(redisOpt, logger)
	defer func() { _ = dispatcher.Close() }()

	calculator := availability.NewCalculator(scheduleRepo, bookingRepo, slotlock.NewReader(rdb), cfg.MaxRangeDays)
	locker := slotlock.NewRedisManager(rdb, cfg.LockTTL, calculator, bookingRepo)
	gateway := payment.NewRazorpayGateway(cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayBaseURL)

	svc := booking.NewService(bookingRepo, scheduleRepo, locker, gateway, dispatcher, booking.FeePolicy{
		PlatformPctOnline:   cfg.PlatformFeePctOnline,
		PlatformPctInPerson: cfg.PlatformFeePctInPerson,
	}, logger)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues:      notify.Queues(),
	})

	go func() {
		if err := srv.Run(notify.NewServeMux(logger)); err != nil {
			logger.Fatal("notification worker error", zap.Error(err))
		}
	}()

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconciler")
			srv.Shutdown()
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ReconcileAbandoned(runCtx); err != nil {
		logger.Error("reconcile run error", zap.Error(err))
		return
	}
	logger.Info("reconcile run complete", zap.Duration("took", time.Since(start)))
}
