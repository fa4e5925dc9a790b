package appointment

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/weili-projects/reservation-api/internal/redis"
)

const (
	EventSlotsCreated         = "SLOTS_CREATED"
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	clock  Clock
	logger *zap.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLocker(l redisclient.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		locker: redisclient.NopLocker(),
		clock:  RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetReservation retrieves an appointment with its slot and client.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) recordEvent(ctx context.Context, tx Tx, appointmentID *uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("event payload marshal failed", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	return tx.InsertEvent(ctx, EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	})
}

// logOutcome logs caller-correctable failures at warn and everything else at error.
func (s *Service) logOutcome(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch KindOf(err) {
	case KindNotFound, KindBusinessRule, KindInvalidInput:
		s.logger.Warn("request rejected", append(fields, zap.Stringer("kind", KindOf(err)), zap.String("rule", string(RuleOf(err))))...)
	default:
		s.logger.Error("request failed", fields...)
	}
}
