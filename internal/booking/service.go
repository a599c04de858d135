package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"rentalplatform/internal/audit"
	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/events"
	"rentalplatform/internal/common/money"
	"rentalplatform/internal/fees"
	"rentalplatform/internal/member"
	"rentalplatform/internal/metrics"
	"rentalplatform/internal/vehicle"
)

// Service errors.
var (
	ErrVehicleUnavailable = errors.New("vehicle is not available")
	ErrInvalidTransition  = errors.New("transition not allowed from current status")
	ErrNotLate            = errors.New("booking is not overdue")
	ErrNoSavedCard        = errors.New("no saved card for off-session charge")
)

// authenticationRequirer is implemented by processor errors that are
// recoverable by the customer completing authentication interactively.
type authenticationRequirer interface {
	AuthenticationRequired() bool
}

// IsAuthenticationRequired reports whether an off-session charge failed
// because the processor demands strong customer authentication.
func IsAuthenticationRequired(err error) bool {
	var ar authenticationRequirer
	return errors.As(err, &ar) && ar.AuthenticationRequired()
}

// Charger performs an off-session charge against a saved card.
type Charger interface {
	ChargeOffSession(ctx context.Context, customerID, paymentMethodID string, amount money.Money, metadata map[string]string) (intentID string, err error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Service implements booking lifecycle operations and payment reconciliation.
type Service struct {
	store     Store
	vehicles  vehicle.Store
	members   member.Store
	auditor   *audit.Service
	charger   Charger
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a booking service.
func NewService(store Store, vehicles vehicle.Store, members member.Store, auditor *audit.Service, charger Charger, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		vehicles:  vehicles,
		members:   members,
		auditor:   auditor,
		charger:   charger,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest holds the booking-submit input.
type CreateRequest struct {
	VehicleID        string           `json:"vehicle_id" validate:"required"`
	UserEmail        string           `json:"user_email" validate:"required,email"`
	PickupDate       string           `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	Weeks            int              `json:"weeks" validate:"required,min=1,max=52"`
	Customer         CustomerSnapshot `json:"customer"`
	AgreementVersion string           `json:"agreement_version"`
}

// Create submits a new booking in pending status. The return date is derived
// from the pickup date at weekly granularity and the vehicle's weekly rate is
// frozen onto the booking.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	v, err := s.vehicles.Get(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Available || v.PendingBooking {
		return nil, ErrVehicleUnavailable
	}

	pickup, ok := fees.ParseReturnDate(req.PickupDate)
	if !ok {
		return nil, fmt.Errorf("invalid pickup date %q", req.PickupDate)
	}
	returnDate := pickup.AddDate(0, 0, 7*req.Weeks)

	m, err := s.members.Ensure(ctx, req.UserEmail, req.Customer.Name, req.Customer.Phone)
	if err != nil {
		return nil, fmt.Errorf("ensuring member: %w", err)
	}
	if req.Customer.Name == "" {
		req.Customer.Name = m.Name
	}
	if req.Customer.Phone == "" {
		req.Customer.Phone = m.Phone
	}

	b := &Booking{
		ID:               ulid.Make().String(),
		VehicleID:        v.ID,
		UserEmail:        req.UserEmail,
		PickupDate:       pickup.Format(fees.ReturnDateLayout),
		ReturnDate:       returnDate.Format(fees.ReturnDateLayout),
		Weeks:            req.Weeks,
		Status:           StatusPending,
		RateCents:        v.WeeklyRateCents,
		Customer:         req.Customer,
		AgreementVersion: req.AgreementVersion,
	}

	if err := s.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("creating booking: %w", err)
	}

	metrics.IncBookingCreated()
	s.logger.Info("booking created",
		"booking_id", b.ID,
		"vehicle_id", b.VehicleID,
		"user_email", b.UserEmail,
		"weeks", b.Weeks,
	)

	s.recordAudit(ctx, b.ID, "created", b.UserEmail, map[string]any{
		"vehicle_id":        b.VehicleID,
		"weeks":             b.Weeks,
		"rate_cents":        b.RateCents,
		"pickup_date":       b.PickupDate,
		"return_date":       b.ReturnDate,
		"agreement_version": b.AgreementVersion,
	})
	s.publish(ctx, events.TypeBookingCreated, b.ID, events.BookingCreated{
		BookingID:  b.ID,
		VehicleID:  b.VehicleID,
		UserEmail:  b.UserEmail,
		PickupDate: b.PickupDate,
		ReturnDate: b.ReturnDate,
		Weeks:      b.Weeks,
		RateCents:  b.RateCents,
	})

	return b, nil
}

// Get returns a booking by primary or custom ID.
func (s *Service) Get(ctx context.Context, ref string) (*Booking, error) {
	return s.store.Resolve(ctx, ref)
}

// ListByUser returns a member's bookings.
func (s *Service) ListByUser(ctx context.Context, email string, limit, offset int) ([]*Booking, error) {
	return s.store.ListByUser(ctx, email, limit, offset)
}

// ListByStatus returns bookings in a status.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Booking, error) {
	return s.store.ListByStatus(ctx, NormalizeStatus(status), limit, offset)
}

// Accept moves a pending booking to accepted. The vehicle is frozen for the
// renter but still listed, shown as pending.
func (s *Service) Accept(ctx context.Context, id, actor string) (*Booking, error) {
	return s.transition(ctx, id, actor, StatusPending, StatusAccepted, func(b *Booking) error {
		return s.vehicles.SetFlags(ctx, b.VehicleID, true, true)
	})
}

// Reject declines a booking and releases the vehicle.
func (s *Service) Reject(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, ErrInvalidTransition
	}
	return s.transition(ctx, b.ID, actor, b.Status, StatusRejected, func(b *Booking) error {
		return s.vehicles.SetFlags(ctx, b.VehicleID, false, true)
	})
}

// Cancel cancels a booking on behalf of the renter or an admin and releases
// the vehicle.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, ErrInvalidTransition
	}
	return s.transition(ctx, b.ID, actor, b.Status, StatusCancelled, func(b *Booking) error {
		return s.vehicles.SetFlags(ctx, b.VehicleID, false, true)
	})
}

// MarkRented records the vehicle handover. rented_at is stamped exactly once
// and the vehicle leaves the listing.
func (s *Service) MarkRented(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkRented(ctx, b.ID); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	if err := s.vehicles.SetFlags(ctx, b.VehicleID, false, false); err != nil {
		s.logger.Error("failed to update vehicle flags", "error", err, "vehicle_id", b.VehicleID)
	}

	metrics.IncBookingTransition(string(StatusRented))
	s.recordAudit(ctx, b.ID, "rented", b.UserEmail, map[string]any{"actor": actor})
	s.publish(ctx, events.TypeBookingStatus, b.ID, events.BookingStatusChanged{
		BookingID: b.ID,
		UserEmail: b.UserEmail,
		From:      string(b.Status),
		To:        string(StatusRented),
		Actor:     actor,
	})

	return s.store.Get(ctx, b.ID)
}

// Delete removes a booking. Admins may delete any booking; renters only
// bookings that are not an active rental.
func (s *Service) Delete(ctx context.Context, id, actor string, isAdmin bool) error {
	b, err := s.store.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if !isAdmin {
		if b.UserEmail != actor {
			return database.ErrNotFound
		}
		if NormalizeStatus(b.Status) == StatusRented || NormalizeStatus(b.Status) == StatusExtended {
			return ErrInvalidTransition
		}
	}

	if err := s.store.Delete(ctx, b.ID); err != nil {
		return err
	}
	if err := s.vehicles.SetFlags(ctx, b.VehicleID, false, true); err != nil {
		s.logger.Error("failed to release vehicle", "error", err, "vehicle_id", b.VehicleID)
	}
	s.recordAudit(ctx, b.ID, "deleted", b.UserEmail, map[string]any{"actor": actor})
	return nil
}

func (s *Service) transition(ctx context.Context, id, actor string, from, to Status, sideEffect func(*Booking) error) (*Booking, error) {
	b, err := s.store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidTransition
	}

	if err := s.store.Transition(ctx, b.ID, from, to); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	if sideEffect != nil {
		if err := sideEffect(b); err != nil {
			// The status write is the source of truth; a failed vehicle flag
			// update is logged, not rolled back.
			s.logger.Error("transition side effect failed", "error", err, "booking_id", b.ID, "to", to)
		}
	}

	metrics.IncBookingTransition(string(to))
	s.recordAudit(ctx, b.ID, string(to), b.UserEmail, map[string]any{"actor": actor, "from": string(b.Status)})
	s.publish(ctx, events.TypeBookingStatus, b.ID, events.BookingStatusChanged{
		BookingID: b.ID,
		UserEmail: b.UserEmail,
		From:      string(b.Status),
		To:        string(to),
		Actor:     actor,
	})

	return s.store.Get(ctx, b.ID)
}

// recordAudit appends an audit event; failures are logged only, never allowed
// to undo or block a booking mutation.
func (s *Service) recordAudit(ctx context.Context, bookingID, eventType, userEmail string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	if _, err := s.auditor.Record(ctx, bookingID, eventType, userEmail, details); err != nil {
		s.logger.Error("audit write failed", "error", err, "booking_id", bookingID, "event_type", eventType)
	}
}

func (s *Service) publish(ctx context.Context, eventType, aggregateID string, payload any) {
	if s.publisher == nil {
		return
	}
	env, err := events.NewEnvelope(eventType, aggregateID, payload)
	if err != nil {
		s.logger.Error("event marshal failed", "error", err, "type", eventType)
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Error("event publish failed", "error", err, "type", eventType)
	}
}
