package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Bookings     BookingService
	Availability AvailabilityService
	Locker       SlotLocker
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/doctors/{id}/availability", getAvailabilityHandler(cfg.Availability))

	r.Post("/slots/lock", lockSlotHandler(cfg.Locker))

	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/check-in", transitionHandler(cfg.Bookings.CheckIn))
	r.Post("/bookings/{id}/start", transitionHandler(cfg.Bookings.Start))
	r.Post("/bookings/{id}/complete", transitionHandler(cfg.Bookings.Complete))
	r.Post("/bookings/{id}/no-show", transitionHandler(cfg.Bookings.MarkNoShow))

	r.Post("/payments/verify", verifyPaymentHandler(cfg.Bookings))

	return r
}
