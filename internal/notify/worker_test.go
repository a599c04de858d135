package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"rentalplatform/internal/common/events"
)

type captureNotifier struct {
	sent []Message
	err  error
}

func (c *captureNotifier) Send(_ context.Context, msg Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func mustEnvelope(t *testing.T, eventType string, data any) *events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, "bk_1", data)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestPaymentRecordedSendsReceiptAndOwnerMail(t *testing.T) {
	n := &captureNotifier{}
	w := NewWorker(n, "owner@example.com", slog.Default())

	env := mustEnvelope(t, events.TypePaymentRecorded, events.PaymentRecorded{
		BookingID:   "bk_1",
		UserEmail:   "renter@example.com",
		Provider:    "card",
		ProviderRef: "pi_1",
	})
	if err := w.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(n.sent) != 2 {
		t.Fatalf("sent %d messages, want renter receipt + owner mail", len(n.sent))
	}
	if n.sent[0].To != "renter@example.com" || n.sent[1].To != "owner@example.com" {
		t.Errorf("recipients = %s, %s", n.sent[0].To, n.sent[1].To)
	}
}

func TestExtensionMailMentionsLateFee(t *testing.T) {
	n := &captureNotifier{}
	w := NewWorker(n, "owner@example.com", slog.Default())

	env := mustEnvelope(t, events.TypeBookingExtended, events.BookingExtended{
		BookingID:     "bk_1",
		UserEmail:     "renter@example.com",
		NewReturnDate: "2025-02-08",
		LateFeeCents:  3000,
	})
	if err := w.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(n.sent) == 0 || !strings.Contains(n.sent[0].Body, "2025-02-08") {
		t.Fatalf("renter mail missing new return date: %+v", n.sent)
	}
	if !strings.Contains(n.sent[0].Body, "30.00") {
		t.Errorf("renter mail should mention the $30.00 late fee: %s", n.sent[0].Body)
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	n := &captureNotifier{err: errors.New("smtp down")}
	w := NewWorker(n, "owner@example.com", slog.Default())

	env := mustEnvelope(t, events.TypeLateFeeCharged, events.LateFeeCharged{
		UserEmail:    "renter@example.com",
		LateFeeCents: 6000,
	})
	if err := w.Handle(context.Background(), env); err != nil {
		t.Errorf("delivery failures must not propagate, got %v", err)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	n := &captureNotifier{}
	w := NewWorker(n, "owner@example.com", slog.Default())

	env := mustEnvelope(t, "something.else", map[string]string{})
	if err := w.Handle(context.Background(), env); err != nil {
		t.Errorf("unknown events must be ignored, got %v", err)
	}
	if len(n.sent) != 0 {
		t.Errorf("sent %d messages for unknown event", len(n.sent))
	}
}
