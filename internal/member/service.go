package member

import (
	"context"
	"fmt"
	"log/slog"

	"rentalplatform/internal/common/events"
)

// DebtChecker reports whether a member currently owes money (an overdue
// rental with an accrued late fee counts as debt).
type DebtChecker interface {
	HasOutstandingDebt(ctx context.Context, email string) (bool, error)
}

// CardDetacher detaches the saved payment method at the processor.
type CardDetacher interface {
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Service implements member card and waiver operations.
type Service struct {
	store     Store
	debts     DebtChecker
	detacher  CardDetacher
	publisher EventPublisher
	logger    *slog.Logger
}

// NewService creates a member service.
func NewService(store Store, debts DebtChecker, detacher CardDetacher, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		debts:     debts,
		detacher:  detacher,
		publisher: publisher,
		logger:    logger,
	}
}

// Get returns the member record.
func (s *Service) Get(ctx context.Context, email string) (*Member, error) {
	return s.store.Get(ctx, email)
}

// LinkCard records a saved card after a completed setup session.
func (s *Service) LinkCard(ctx context.Context, email, customerID, paymentMethodID string) error {
	if _, err := s.store.Ensure(ctx, email, "", ""); err != nil {
		return fmt.Errorf("ensuring member: %w", err)
	}
	if err := s.store.LinkCard(ctx, email, customerID, paymentMethodID); err != nil {
		return fmt.Errorf("linking card: %w", err)
	}

	s.logger.Info("saved card linked", "email", email, "customer_id", customerID)

	if env, err := events.NewEnvelope(events.TypeCardSaved, email, events.CardSaved{
		UserEmail:  email,
		CustomerID: customerID,
	}); err == nil {
		if pubErr := s.publisher.Publish(ctx, env); pubErr != nil {
			s.logger.Error("failed to publish card saved event", "error", pubErr)
		}
	}
	return nil
}

// RemoveCard removes the saved card. Members with outstanding debt are
// blocked unless an admin granted a removal waiver; a waiver is consumed by
// the removal.
func (s *Service) RemoveCard(ctx context.Context, email string) error {
	m, err := s.store.Get(ctx, email)
	if err != nil {
		return err
	}
	if !m.CardOnFile || m.DefaultPaymentMethodID == "" {
		return ErrNoSavedCard
	}

	if !m.RemovalWaiver {
		inDebt, err := s.debts.HasOutstandingDebt(ctx, email)
		if err != nil {
			return fmt.Errorf("checking debt: %w", err)
		}
		if inDebt {
			return ErrOutstandingDebt
		}
	}

	if err := s.detacher.DetachPaymentMethod(ctx, m.DefaultPaymentMethodID); err != nil {
		return fmt.Errorf("detaching payment method: %w", err)
	}

	if err := s.store.UnlinkCard(ctx, email); err != nil {
		return fmt.Errorf("unlinking card: %w", err)
	}

	s.logger.Info("saved card removed", "email", email, "waiver_used", m.RemovalWaiver)

	if env, err := events.NewEnvelope(events.TypeCardRemoved, email, events.CardSaved{
		UserEmail:  email,
		CustomerID: m.ProcessorCustomerID,
	}); err == nil {
		if pubErr := s.publisher.Publish(ctx, env); pubErr != nil {
			s.logger.Error("failed to publish card removed event", "error", pubErr)
		}
	}
	return nil
}

// GrantWaiver lets an admin allow one card removal despite outstanding debt.
func (s *Service) GrantWaiver(ctx context.Context, email, grantedBy string) error {
	return s.store.SetWaiver(ctx, email, true, grantedBy)
}

// RevokeWaiver withdraws a previously granted waiver.
func (s *Service) RevokeWaiver(ctx context.Context, email string) error {
	return s.store.SetWaiver(ctx, email, false, "")
}

// AcceptTerms records agreement to the rental terms.
func (s *Service) AcceptTerms(ctx context.Context, email, version, ip string) error {
	if _, err := s.store.Ensure(ctx, email, "", ""); err != nil {
		return fmt.Errorf("ensuring member: %w", err)
	}
	if err := s.store.AcceptTerms(ctx, email, version); err != nil {
		return err
	}

	if env, err := events.NewEnvelope(events.TypeTermsAccepted, email, events.TermsAccepted{
		UserEmail: email,
		Version:   version,
		IP:        ip,
	}); err == nil {
		if pubErr := s.publisher.Publish(ctx, env); pubErr != nil {
			s.logger.Error("failed to publish terms accepted event", "error", pubErr)
		}
	}
	return nil
}
