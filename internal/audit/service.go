package audit

import (
	"context"
	"fmt"
	"log/slog"

	"rentalplatform/internal/common/events"
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Service records audit events and notifies downstream consumers.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
}

// NewService creates an audit service.
func NewService(store Store, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger}
}

// Record appends an audit event. The integrity hash is computed here, before
// the write, so the stored hash always covers exactly what was stored.
func (s *Service) Record(ctx context.Context, bookingID, eventType, userEmail string, details map[string]any) (*Event, error) {
	e := New(bookingID, eventType, userEmail, details)

	if err := s.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending audit event: %w", err)
	}

	s.logger.Info("audit event recorded",
		"audit_id", e.ID,
		"booking_id", e.BookingID,
		"event_type", e.EventType,
	)

	payload := events.AuditRecorded{
		AuditID:   e.ID,
		BookingID: e.BookingID,
		EventType: e.EventType,
		UserEmail: e.UserEmail,
		Hash:      e.Hash,
	}
	if v, ok := e.Details["rate_cents"].(int64); ok {
		payload.RateCents = v
	}
	if v, ok := e.Details["late_fee_cents"].(int64); ok {
		payload.LateFeeCents = v
	}

	if env, err := events.NewEnvelope(events.TypeAuditRecorded, e.BookingID, payload); err == nil {
		if pubErr := s.publisher.Publish(ctx, env); pubErr != nil {
			// The record itself is durable; notification is best-effort.
			s.logger.Error("failed to publish audit event", "error", pubErr, "audit_id", e.ID)
		}
	}

	return e, nil
}

// Get returns a single audit record.
func (s *Service) Get(ctx context.Context, auditID string) (*Event, error) {
	return s.store.Get(ctx, auditID)
}

// Trail returns the audit trail for a booking.
func (s *Service) Trail(ctx context.Context, bookingID string, limit, offset int) ([]*Event, error) {
	return s.store.ListByBooking(ctx, bookingID, limit, offset)
}
