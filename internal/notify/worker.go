package notify

import (
	"context"
	"fmt"
	"log/slog"

	"rentalplatform/internal/common/events"
	"rentalplatform/internal/common/money"
)

// Worker consumes domain events and sends the matching notifications.
type Worker struct {
	notifier   Notifier
	ownerEmail string
	logger     *slog.Logger
}

// NewWorker creates a notification worker.
func NewWorker(notifier Notifier, ownerEmail string, logger *slog.Logger) *Worker {
	return &Worker{
		notifier:   notifier,
		ownerEmail: ownerEmail,
		logger:     logger,
	}
}

// Handle renders and sends notifications for one event. It always returns
// nil: a notification that cannot be rendered or delivered is logged and the
// event is acknowledged, never redelivered for the email's sake.
func (w *Worker) Handle(ctx context.Context, env *events.Envelope) error {
	msgs, err := w.render(env)
	if err != nil {
		w.logger.Error("failed to render notification", "error", err, "type", env.Type, "event_id", env.ID)
		return nil
	}

	for _, msg := range msgs {
		if msg.To == "" {
			continue
		}
		if err := w.notifier.Send(ctx, msg); err != nil {
			w.logger.Error("failed to send notification",
				"error", err,
				"to", msg.To,
				"type", env.Type,
			)
		}
	}
	return nil
}

func (w *Worker) render(env *events.Envelope) ([]Message, error) {
	switch env.Type {
	case events.TypeBookingCreated:
		var ev events.BookingCreated
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		renter := Message{
			To:      ev.UserEmail,
			Subject: "Booking request received",
			Body: fmt.Sprintf(
				"We received your rental request for %d week(s), pickup %s, return %s.\nWe will confirm shortly.",
				ev.Weeks, ev.PickupDate, ev.ReturnDate),
		}
		owner := Message{
			To:      w.ownerEmail,
			Subject: fmt.Sprintf("New booking request %s", ev.BookingID),
			Body: fmt.Sprintf("Vehicle %s requested by %s for %d week(s), pickup %s.",
				ev.VehicleID, ev.UserEmail, ev.Weeks, ev.PickupDate),
		}
		return []Message{renter, owner}, nil

	case events.TypePaymentRecorded:
		var ev events.PaymentRecorded
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		receipt := Message{
			To:      ev.UserEmail,
			Subject: "Payment receipt",
			Body: fmt.Sprintf("We received your payment of %s (ref %s).\nThank you!",
				ev.Amount, ev.ProviderRef),
		}
		owner := Message{
			To:      w.ownerEmail,
			Subject: fmt.Sprintf("Payment received for booking %s", ev.BookingID),
			Body: fmt.Sprintf("%s paid %s via %s (ref %s).",
				ev.UserEmail, ev.Amount, ev.Provider, ev.ProviderRef),
		}
		return []Message{receipt, owner}, nil

	case events.TypeBookingExtended:
		var ev events.BookingExtended
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		body := fmt.Sprintf("Your rental has been extended one week. New return date: %s.", ev.NewReturnDate)
		if ev.LateFeeCents > 0 {
			body += fmt.Sprintf("\nA late fee of %s was included.", money.USDCents(ev.LateFeeCents))
		}
		renter := Message{To: ev.UserEmail, Subject: "Rental extended", Body: body}
		owner := Message{
			To:      w.ownerEmail,
			Subject: fmt.Sprintf("Booking %s extended", ev.BookingID),
			Body: fmt.Sprintf("%s extended to %s (extension #%d).",
				ev.UserEmail, ev.NewReturnDate, ev.ExtensionsCount),
		}
		return []Message{renter, owner}, nil

	case events.TypeLateFeeCharged:
		var ev events.LateFeeCharged
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		return []Message{{
			To:      ev.UserEmail,
			Subject: "Late fee charged",
			Body: fmt.Sprintf("A late fee of %s was charged to your saved card (ref %s).",
				money.USDCents(ev.LateFeeCents), ev.ProviderRef),
		}}, nil

	case events.TypePaymentFailed:
		var ev events.PaymentFailed
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		return []Message{{
			To:      ev.UserEmail,
			Subject: "Payment failed",
			Body:    "Your recent payment attempt failed. Please try again from your bookings page.",
		}}, nil

	case events.TypeBookingStatus:
		var ev events.BookingStatusChanged
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		switch ev.To {
		case "accepted":
			return []Message{{
				To:      ev.UserEmail,
				Subject: "Booking accepted",
				Body:    "Your booking was accepted. You can now complete payment.",
			}}, nil
		case "rejected":
			return []Message{{
				To:      ev.UserEmail,
				Subject: "Booking declined",
				Body:    "Unfortunately your booking request was declined.",
			}}, nil
		case "cancelled":
			return []Message{{
				To:      w.ownerEmail,
				Subject: fmt.Sprintf("Booking %s cancelled", ev.BookingID),
				Body:    fmt.Sprintf("Booking %s was cancelled by %s.", ev.BookingID, ev.Actor),
			}}, nil
		}
		return nil, nil

	case events.TypeCardSaved:
		var ev events.CardSaved
		if err := env.DecodeData(&ev); err != nil {
			return nil, err
		}
		return []Message{{
			To:      ev.UserEmail,
			Subject: "Card saved",
			Body:    "Your card was saved for future charges. You can remove it any time from your account.",
		}}, nil

	default:
		return nil, nil
	}
}
