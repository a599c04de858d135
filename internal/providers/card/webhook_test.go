package card

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rentalplatform/internal/booking"
)

type fakeReconciler struct {
	succeeded []booking.PaymentEvent
	failed    []booking.PaymentEvent
	err       error
}

func (f *fakeReconciler) PaymentSucceeded(_ context.Context, ev booking.PaymentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.succeeded = append(f.succeeded, ev)
	return nil
}

func (f *fakeReconciler) PaymentFailed(_ context.Context, ev booking.PaymentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.failed = append(f.failed, ev)
	return nil
}

type fakeLinker struct {
	email, customerID, pmID string
	err                     error
}

func (f *fakeLinker) LinkCard(_ context.Context, email, customerID, pmID string) error {
	if f.err != nil {
		return f.err
	}
	f.email, f.customerID, f.pmID = email, customerID, pmID
	return nil
}

const testSecret = "whsec_test"

func newTestHandler(rec *fakeReconciler, linker *fakeLinker) *WebhookHandler {
	h := NewWebhookHandler(testSecret, rec, linker, slog.Default())
	return h
}

func deliver(t *testing.T, h *WebhookHandler, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(body))
	if sign {
		req.Header.Set(SignatureHeader, Sign(testSecret, time.Now(), []byte(body)))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const succeededIntent = `{
	"id": "evt_1",
	"type": "payment_intent.succeeded",
	"data": {"object": {
		"id": "pi_1",
		"amount_cents": 31000,
		"metadata": {
			"bookingId": "b3_extend1w",
			"userEmail": "renter@example.com",
			"isExtension": "true",
			"lateFeeCents": "3000",
			"weeklyPriceCents": "28000"
		}
	}}
}`

func TestWebhookRejectsMissingSignature(t *testing.T) {
	rec := &fakeReconciler{}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), succeededIntent, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(rec.succeeded) != 0 {
		t.Error("no mutation may happen before signature verification")
	}
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	rec := &fakeReconciler{}
	h := newTestHandler(rec, &fakeLinker{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(succeededIntent))
	tampered := strings.Replace(succeededIntent, "31000", "1", 1)
	req.Header.Set(SignatureHeader, Sign(testSecret, time.Now(), []byte(tampered)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	rec := &fakeReconciler{}
	h := newTestHandler(rec, &fakeLinker{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(succeededIntent))
	req.Header.Set(SignatureHeader, Sign(testSecret, time.Now().Add(-time.Hour), []byte(succeededIntent)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhookPaymentSucceededDispatch(t *testing.T) {
	rec := &fakeReconciler{}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), succeededIntent, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.succeeded) != 1 {
		t.Fatalf("expected 1 succeeded event, got %d", len(rec.succeeded))
	}
	ev := rec.succeeded[0]
	if ev.Ref != "b3_extend1w" {
		t.Errorf("ref = %s, want b3_extend1w", ev.Ref)
	}
	if ev.EventID != "evt_1" || ev.IntentID != "pi_1" {
		t.Errorf("ids = %s/%s, want evt_1/pi_1", ev.EventID, ev.IntentID)
	}
	if ev.AmountCents != 31000 || ev.LateFeeCents != 3000 || ev.WeeklyCents != 28000 {
		t.Errorf("amounts = %d/%d/%d, want 31000/3000/28000", ev.AmountCents, ev.LateFeeCents, ev.WeeklyCents)
	}
}

func TestWebhookPaymentFailedDispatch(t *testing.T) {
	body := `{
		"id": "evt_2",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_2",
			"amount_cents": 28000,
			"metadata": {"bookingId": "b1", "userEmail": "renter@example.com"}
		}}
	}`
	rec := &fakeReconciler{}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), body, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.failed) != 1 || rec.failed[0].Ref != "b1" {
		t.Fatalf("expected failed event for b1, got %+v", rec.failed)
	}
}

func TestWebhookSetupSessionLinksCard(t *testing.T) {
	body := `{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"mode": "setup",
			"customer": "cus_9",
			"payment_method": "pm_9",
			"metadata": {"userEmail": "renter@example.com"}
		}}
	}`
	linker := &fakeLinker{}
	w := deliver(t, newTestHandler(&fakeReconciler{}, linker), body, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if linker.email != "renter@example.com" || linker.customerID != "cus_9" || linker.pmID != "pm_9" {
		t.Errorf("linked %s/%s/%s, want renter@example.com/cus_9/pm_9", linker.email, linker.customerID, linker.pmID)
	}
}

func TestWebhookPaymentSessionDispatch(t *testing.T) {
	body := `{
		"id": "evt_4",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_2",
			"mode": "payment",
			"payment_intent": "pi_4",
			"amount_total_cents": 28000,
			"metadata": {"bookingId": "b2", "userEmail": "renter@example.com"}
		}}
	}`
	rec := &fakeReconciler{}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), body, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(rec.succeeded) != 1 || rec.succeeded[0].Ref != "b2" || rec.succeeded[0].IntentID != "pi_4" {
		t.Fatalf("expected succeeded event for b2/pi_4, got %+v", rec.succeeded)
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	body := `{"id": "evt_5", "type": "customer.updated", "data": {"object": {}}}`
	w := deliver(t, newTestHandler(&fakeReconciler{}, &fakeLinker{}), body, true)
	if w.Code != http.StatusOK {
		t.Errorf("unknown events must still be acknowledged, got %d", w.Code)
	}
}

func TestWebhookCoreMutationFailureReturns5xx(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("store unreachable")}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), succeededIntent, true)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the processor retries", w.Code)
	}
}

func TestWebhookMissingMetadataDropped(t *testing.T) {
	body := `{
		"id": "evt_6",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_6", "amount_cents": 28000, "metadata": {}}}
	}`
	rec := &fakeReconciler{}
	w := deliver(t, newTestHandler(rec, &fakeLinker{}), body, true)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (drop, do not retry)", w.Code)
	}
	if len(rec.succeeded) != 0 {
		t.Error("event without booking metadata must not reach the reconciler")
	}
}
