package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentalplatform/internal/booking"
	"rentalplatform/internal/metrics"
)

// SignatureHeader carries the processor's webhook signature in the form
// "t=<unix>,v1=<hex hmac>" computed over "<t>.<raw body>".
const SignatureHeader = "Card-Signature"

// signatureTolerance bounds how stale a signed timestamp may be.
const signatureTolerance = 5 * time.Minute

// Reconciler applies confirmed payment outcomes to bookings.
type Reconciler interface {
	PaymentSucceeded(ctx context.Context, ev booking.PaymentEvent) error
	PaymentFailed(ctx context.Context, ev booking.PaymentEvent) error
}

// CardLinker links a saved card to a member after a setup-mode completion.
type CardLinker interface {
	LinkCard(ctx context.Context, email, customerID, paymentMethodID string) error
}

// WebhookHandler verifies and dispatches card processor callbacks.
type WebhookHandler struct {
	secret     string
	reconciler Reconciler
	linker     CardLinker
	logger     *slog.Logger
	now        func() time.Time
}

// NewWebhookHandler creates a card webhook handler.
func NewWebhookHandler(secret string, reconciler Reconciler, linker CardLinker, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		reconciler: reconciler,
		linker:     linker,
		logger:     logger,
		now:        time.Now,
	}
}

// webhookEvent is the processor's event envelope.
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// paymentIntent is the object carried by payment_intent.* events.
type paymentIntent struct {
	ID          string            `json:"id"`
	AmountCents int64             `json:"amount_cents"`
	Metadata    map[string]string `json:"metadata"`
	CreatedUnix int64             `json:"created"`
}

// checkoutSession is the object carried by checkout.session.completed.
type checkoutSession struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"` // payment or setup
	PaymentIntent string            `json:"payment_intent"`
	Customer      string            `json:"customer"`
	PaymentMethod string            `json:"payment_method"`
	CustomerEmail string            `json:"customer_email"`
	AmountCents   int64             `json:"amount_total_cents"`
	Metadata      map[string]string `json:"metadata"`
}

// ServeHTTP handles a webhook delivery. Signature verification runs against
// the raw body before any parsing; once the event is classified, the delivery
// is acknowledged with a 2xx even when non-critical side effects fail, so the
// processor does not endlessly retry something already processed. Only a
// failed core mutation returns a 5xx.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.verifySignature(r.Header.Get(SignatureHeader), body); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		metrics.IncWebhookRejected("card", "bad_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.IncWebhookRejected("card", "bad_payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	h.logger.Info("card webhook received", "event_id", event.ID, "type", event.Type)

	var coreErr error
	switch event.Type {
	case "payment_intent.succeeded":
		coreErr = h.handleIntentOutcome(r.Context(), event, true)
	case "payment_intent.payment_failed":
		coreErr = h.handleIntentOutcome(r.Context(), event, false)
	case "checkout.session.completed":
		coreErr = h.handleSessionCompleted(r.Context(), event)
	default:
		h.logger.Debug("ignoring card event", "type", event.Type)
	}

	if coreErr != nil {
		// Surface a 5xx so the processor redelivers; the mutation is
		// idempotent or deduplicated, so a retry is safe.
		h.logger.Error("core mutation failed", "error", coreErr, "event_id", event.ID)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (h *WebhookHandler) handleIntentOutcome(ctx context.Context, event webhookEvent, succeeded bool) error {
	var intent paymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		h.logger.Error("malformed payment intent object", "error", err, "event_id", event.ID)
		return nil // the processor cannot fix a malformed body by retrying
	}

	ev := h.paymentEvent(event.ID, intent.ID, intent.AmountCents, intent.Metadata)
	if ev.Ref == "" {
		h.logger.Warn("payment intent without booking metadata dropped", "intent_id", intent.ID)
		return nil
	}

	if succeeded {
		return h.reconciler.PaymentSucceeded(ctx, ev)
	}
	return h.reconciler.PaymentFailed(ctx, ev)
}

func (h *WebhookHandler) handleSessionCompleted(ctx context.Context, event webhookEvent) error {
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		h.logger.Error("malformed checkout session object", "error", err, "event_id", event.ID)
		return nil
	}

	switch session.Mode {
	case "setup":
		email := session.Metadata["userEmail"]
		if email == "" {
			email = session.CustomerEmail
		}
		if email == "" || session.Customer == "" {
			h.logger.Warn("setup session without customer identity dropped", "session_id", session.ID)
			return nil
		}
		// Last completed setup session wins.
		if err := h.linker.LinkCard(ctx, email, session.Customer, session.PaymentMethod); err != nil {
			return fmt.Errorf("linking card: %w", err)
		}
		return nil

	case "payment":
		ev := h.paymentEvent(event.ID, session.PaymentIntent, session.AmountCents, session.Metadata)
		if ev.Ref == "" {
			h.logger.Warn("payment session without booking metadata dropped", "session_id", session.ID)
			return nil
		}
		return h.reconciler.PaymentSucceeded(ctx, ev)

	default:
		h.logger.Warn("unknown checkout session mode", "mode", session.Mode, "session_id", session.ID)
		return nil
	}
}

// paymentEvent rebuilds reconciliation input from processor metadata. Amounts
// and fees come from the processor's records, never from the paying client.
func (h *WebhookHandler) paymentEvent(eventID, intentID string, amountCents int64, metadata map[string]string) booking.PaymentEvent {
	lateFee, _ := strconv.ParseInt(metadata["lateFeeCents"], 10, 64)
	weekly, _ := strconv.ParseInt(metadata["weeklyPriceCents"], 10, 64)
	return booking.PaymentEvent{
		Ref:          metadata["bookingId"],
		EventID:      eventID,
		IntentID:     intentID,
		Provider:     "card",
		AmountCents:  amountCents,
		LateFeeCents: lateFee,
		WeeklyCents:  weekly,
		UserEmail:    metadata["userEmail"],
		OccurredAt:   h.now().UTC(),
	}
}

// verifySignature checks the HMAC over the raw body. It must run before JSON
// parsing so the verified bytes are exactly what the processor signed.
func (h *WebhookHandler) verifySignature(header string, body []byte) error {
	if h.secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("malformed signature header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp: %w", err)
	}
	if age := h.now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign computes the signature header value for a payload. Shared with tests
// and the local development event generator.
func Sign(secret string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
