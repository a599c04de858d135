package booking

import (
	"context"
	"fmt"
	"time"

	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/events"
	"rentalplatform/internal/common/money"
	"rentalplatform/internal/fees"
	"rentalplatform/internal/metrics"
)

// PaymentEvent is a confirmed processor outcome handed to the reconciler by a
// webhook handler. Ref may carry the extension suffix; amounts come from the
// processor's own records, never from the paying client.
type PaymentEvent struct {
	Ref          string // booking reference as embedded in processor metadata
	EventID      string // processor's event or intent id, the idempotency key
	IntentID     string
	Provider     string
	AmountCents  int64
	LateFeeCents int64
	WeeklyCents  int64
	UserEmail    string
	OccurredAt   time.Time
}

// PaymentSucceeded applies a confirmed payment. Extensions move the return
// date exactly once per processor event; plain payments are idempotent by
// construction. A booking an admin already cancelled keeps its terminal
// status; only the payment linkage fields are stamped.
func (s *Service) PaymentSucceeded(ctx context.Context, ev PaymentEvent) error {
	ref, isExtension := SplitExtensionID(ev.Ref)

	b, err := s.store.Resolve(ctx, ref)
	if err != nil {
		if database.IsNotFound(err) {
			// The processor cannot fix a missing local record by retrying.
			s.logger.Warn("payment for unknown booking dropped",
				"ref", ev.Ref, "provider", ev.Provider, "event_id", ev.EventID)
			metrics.IncPaymentEvent(ev.Provider, "unknown_booking")
			return nil
		}
		return err
	}

	if isExtension {
		return s.applyExtension(ctx, b, ev)
	}

	if err := s.store.ApplyPaymentSucceeded(ctx, b.ID, ev.IntentID, ev.AmountCents, ev.OccurredAt); err != nil {
		return fmt.Errorf("applying payment: %w", err)
	}

	metrics.IncPaymentEvent(ev.Provider, "succeeded")
	s.logger.Info("payment reconciled",
		"booking_id", b.ID,
		"provider", ev.Provider,
		"intent_id", ev.IntentID,
		"amount_cents", ev.AmountCents,
	)

	// A rented car is out of the lot; a late or duplicate payment event must
	// not flip its flags back to the accepted (pending) state.
	switch NormalizeStatus(b.Status) {
	case StatusPending, StatusAccepted:
		if err := s.vehicles.SetFlags(ctx, b.VehicleID, true, true); err != nil {
			s.logger.Error("failed to update vehicle flags", "error", err, "vehicle_id", b.VehicleID)
		}
	}

	s.recordAudit(ctx, b.ID, "payment", b.UserEmail, map[string]any{
		"provider":       ev.Provider,
		"intent_id":      ev.IntentID,
		"amount_cents":   ev.AmountCents,
		"late_fee_cents": ev.LateFeeCents,
	})
	s.publish(ctx, events.TypePaymentRecorded, b.ID, events.PaymentRecorded{
		BookingID:    b.ID,
		UserEmail:    b.UserEmail,
		Provider:     ev.Provider,
		ProviderRef:  ev.IntentID,
		Amount:       money.USDCents(ev.AmountCents),
		LateFeeCents: ev.LateFeeCents,
	})
	return nil
}

func (s *Service) applyExtension(ctx context.Context, b *Booking, ev PaymentEvent) error {
	applied, err := s.store.ApplyExtension(ctx, b.ID, ev.EventID, ev.IntentID,
		ev.AmountCents, ev.LateFeeCents, ev.WeeklyCents, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("applying extension: %w", err)
	}
	if !applied {
		metrics.IncDuplicateEvent()
		s.logger.Info("extension event already applied or booking terminal",
			"booking_id", b.ID, "event_id", ev.EventID)
		return nil
	}

	updated, err := s.store.Get(ctx, b.ID)
	if err != nil {
		return err
	}

	metrics.IncPaymentEvent(ev.Provider, "extension")
	s.logger.Info("booking extended",
		"booking_id", b.ID,
		"new_return_date", updated.ReturnDate,
		"extensions_count", updated.ExtensionsCount,
		"late_fee_cents", ev.LateFeeCents,
	)

	s.recordAudit(ctx, b.ID, "extended", b.UserEmail, map[string]any{
		"provider":        ev.Provider,
		"intent_id":       ev.IntentID,
		"amount_cents":    ev.AmountCents,
		"late_fee_cents":  ev.LateFeeCents,
		"weekly_cents":    ev.WeeklyCents,
		"new_return_date": updated.ReturnDate,
	})
	s.publish(ctx, events.TypeBookingExtended, b.ID, events.BookingExtended{
		BookingID:       b.ID,
		UserEmail:       b.UserEmail,
		NewReturnDate:   updated.ReturnDate,
		ExtensionsCount: updated.ExtensionsCount,
		LateFeeCents:    ev.LateFeeCents,
		WeeklyCents:     ev.WeeklyCents,
		Provider:        ev.Provider,
		ProviderRef:     ev.IntentID,
	})
	return nil
}

// PaymentFailed stamps the failed attempt. A failed payment never moves a
// booking's status.
func (s *Service) PaymentFailed(ctx context.Context, ev PaymentEvent) error {
	ref, _ := SplitExtensionID(ev.Ref)

	b, err := s.store.Resolve(ctx, ref)
	if err != nil {
		if database.IsNotFound(err) {
			s.logger.Warn("failed payment for unknown booking dropped",
				"ref", ev.Ref, "provider", ev.Provider)
			metrics.IncPaymentEvent(ev.Provider, "unknown_booking")
			return nil
		}
		return err
	}

	if err := s.store.ApplyPaymentFailed(ctx, b.ID, ev.IntentID, ev.OccurredAt); err != nil {
		return fmt.Errorf("applying failed payment: %w", err)
	}

	metrics.IncPaymentEvent(ev.Provider, "failed")
	s.recordAudit(ctx, b.ID, "payment_failed", b.UserEmail, map[string]any{
		"provider":  ev.Provider,
		"intent_id": ev.IntentID,
	})
	s.publish(ctx, events.TypePaymentFailed, b.ID, events.PaymentFailed{
		BookingID:   b.ID,
		UserEmail:   b.UserEmail,
		Provider:    ev.Provider,
		ProviderRef: ev.IntentID,
	})
	return nil
}

// RecordWalletCapture stamps the wallet processor's order linkage on the
// booking after a server-side capture.
func (s *Service) RecordWalletCapture(ctx context.Context, ref, orderID, captureID, status string, amountCents int64) error {
	b, err := s.store.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	return s.store.SetWalletLinkage(ctx, b.ID, orderID, captureID, status, amountCents)
}

// ChargeResult is the outcome of an off-session late fee charge.
type ChargeResult struct {
	Charged         bool   `json:"charged"`
	Reason          string `json:"reason,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	LateFeeCents    int64  `json:"lateFeeCents,omitempty"`
}

// Charge result reasons.
const (
	ReasonNotLate      = "not_late"
	ReasonNoSavedCard  = "no_saved_card"
	ReasonAuthRequired = "authentication_required"
)

// ChargeLateFee charges exactly the accrued late fee against the renter's
// saved card. The fee is recomputed here from the booking's current return
// date; estimated processor surcharges are never added, so the card holder is
// charged exactly what they were shown.
func (s *Service) ChargeLateFee(ctx context.Context, ref string) (*ChargeResult, error) {
	b, err := s.store.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	fee := fees.LateFeeFromReturnDate(s.now(), b.ReturnDate)
	if fee == 0 {
		metrics.IncLateFeeCharge("not_late")
		return &ChargeResult{Charged: false, Reason: ReasonNotLate}, nil
	}

	m, err := s.members.Get(ctx, b.UserEmail)
	if err != nil {
		if database.IsNotFound(err) {
			metrics.IncLateFeeCharge("no_saved_card")
			return &ChargeResult{Charged: false, Reason: ReasonNoSavedCard}, nil
		}
		return nil, err
	}
	if !m.CardOnFile || m.ProcessorCustomerID == "" || m.DefaultPaymentMethodID == "" {
		metrics.IncLateFeeCharge("no_saved_card")
		return &ChargeResult{Charged: false, Reason: ReasonNoSavedCard}, nil
	}

	intentID, err := s.charger.ChargeOffSession(ctx, m.ProcessorCustomerID, m.DefaultPaymentMethodID,
		money.USDCents(fee), map[string]string{
			"bookingId": b.ID,
			"userEmail": b.UserEmail,
			"kind":      "late_fee",
		})
	if err != nil {
		if IsAuthenticationRequired(err) {
			metrics.IncLateFeeCharge("authentication_required")
			return &ChargeResult{Charged: false, Reason: ReasonAuthRequired, LateFeeCents: fee}, nil
		}
		metrics.IncLateFeeCharge("error")
		return nil, fmt.Errorf("off-session charge: %w", err)
	}

	if err := s.store.MarkLateFeePaid(ctx, b.ID, intentID, fee, s.now()); err != nil {
		// The processor charge went through; surface the store failure so the
		// caller can retry the bookkeeping.
		return nil, fmt.Errorf("marking late fee paid: %w", err)
	}

	metrics.IncLateFeeCharge("charged")
	s.logger.Info("late fee charged",
		"booking_id", b.ID,
		"late_fee_cents", fee,
		"intent_id", intentID,
	)

	s.recordAudit(ctx, b.ID, "late_fee_charged", b.UserEmail, map[string]any{
		"late_fee_cents": fee,
		"intent_id":      intentID,
	})
	s.publish(ctx, events.TypeLateFeeCharged, b.ID, events.LateFeeCharged{
		BookingID:    b.ID,
		UserEmail:    b.UserEmail,
		LateFeeCents: fee,
		ProviderRef:  intentID,
	})

	return &ChargeResult{Charged: true, PaymentIntentID: intentID, LateFeeCents: fee}, nil
}
