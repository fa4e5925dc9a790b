package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/appointment"
)

// ReservationService is the part of appointment.Service the transport needs.
type ReservationService interface {
	CreateAvailability(ctx context.Context, providerID uuid.UUID, ranges []appointment.TimeRange) ([]appointment.Slot, error)
	ListAvailability(ctx context.Context, providerID uuid.UUID) ([]appointment.Slot, error)
	MakeReservation(ctx context.Context, slotID, clientID uuid.UUID) (*appointment.AppointmentDetail, error)
	ConfirmReservation(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
}

type RouterConfig struct {
	Service ReservationService
	Logger  *zap.Logger
	Limiter Limiter // nil disables rate limiting
	Checks  []DependencyCheck
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(logger))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(RateLimitMiddleware(cfg.Limiter, logger))
		}

		r.Post("/availability", createAvailabilityHandler(cfg.Service, logger))
		r.Get("/providers/{id}/availability", listAvailabilityHandler(cfg.Service, logger))

		r.Post("/appointments", createReservationHandler(cfg.Service, logger))
		r.Get("/appointments/{id}", getReservationHandler(cfg.Service, logger))
		r.Post("/appointments/{id}/confirm", confirmReservationHandler(cfg.Service, logger))
		r.Patch("/appointments/{id}", confirmReservationHandler(cfg.Service, logger))
	})

	return r
}
