// Package card integrates the card processor: hosted checkout sessions for
// rental and extension payments, setup sessions for saving a card, and
// off-session charges against a saved card. The processor confirms outcomes
// asynchronously through the webhook in this package; nothing here mutates a
// booking directly.
package card

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"rentalplatform/internal/booking"
	"rentalplatform/internal/common/money"
	"rentalplatform/internal/fees"
)

// Adapter errors.
var (
	ErrNotConfigured   = errors.New("card processor credentials not configured")
	ErrUnauthenticated = errors.New("caller identity required")
	ErrInvalidArgument = errors.New("invalid argument")
)

// MinChargeCents is the processor's minimum charge.
const MinChargeCents = 50

// AuthenticationRequiredError is returned when the processor demands strong
// customer authentication for an off-session charge. The charge is
// recoverable by the customer retrying interactively.
type AuthenticationRequiredError struct {
	IntentID string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("card charge %s requires customer authentication", e.IntentID)
}

// AuthenticationRequired marks the error as recoverable by the customer.
func (e *AuthenticationRequiredError) AuthenticationRequired() bool { return true }

// Config holds card processor configuration.
type Config struct {
	APIBase       string        `envconfig:"CARD_API_BASE" default:"https://api.cardprocessor.example"`
	SecretKey     string        `envconfig:"CARD_SECRET_KEY"`
	WebhookSecret string        `envconfig:"CARD_WEBHOOK_SECRET"`
	SuccessURL    string        `envconfig:"CARD_SUCCESS_URL" default:"https://rentals.example/payment/success"`
	CancelURL     string        `envconfig:"CARD_CANCEL_URL" default:"https://rentals.example/payment/cancel"`
	Timeout       time.Duration `envconfig:"CARD_TIMEOUT" default:"30s"`
}

// Adapter is the card processor client.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewAdapter creates a card adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// CheckoutParams describes a payment-mode checkout session. BookingRef may
// carry the extension suffix; it is embedded verbatim in the session metadata
// so the webhook can reconstruct intent without trusting the paying client.
type CheckoutParams struct {
	BookingRef       string
	UserEmail        string
	AmountCents      int64
	VehicleName      string
	LateFeeCents     int64
	WeeklyPriceCents int64
}

// CheckoutSession is the processor-side session handed back to the payer.
type CheckoutSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ClientRef string `json:"client_secret,omitempty"`

	// EstimatedTotalCents is the display-only amount including the card
	// surcharge estimate. The processor charges AmountCents; the estimate
	// exists so the payer is not surprised by their statement.
	EstimatedTotalCents int64 `json:"-"`
}

// CreateCheckoutSession creates a payment-mode session for a rental or
// extension payment. The booking is not touched here: it is only mutated once
// the processor confirms payment through the webhook.
func (a *Adapter) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if a.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if p.UserEmail == "" {
		return nil, ErrUnauthenticated
	}
	if p.BookingRef == "" {
		return nil, fmt.Errorf("%w: booking reference is required", ErrInvalidArgument)
	}
	if p.AmountCents < MinChargeCents {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", ErrInvalidArgument, p.AmountCents, MinChargeCents)
	}

	_, isExtension := booking.SplitExtensionID(p.BookingRef)

	req := map[string]any{
		"mode":           "payment",
		"customer_email": p.UserEmail,
		"success_url":    a.cfg.SuccessURL,
		"cancel_url":     a.cfg.CancelURL,
		"line_items": []map[string]any{{
			"name":         p.VehicleName,
			"amount_cents": p.AmountCents,
			"currency":     "usd",
			"quantity":     1,
		}},
		"metadata": map[string]string{
			"bookingId":        p.BookingRef,
			"userEmail":        p.UserEmail,
			"isExtension":      strconv.FormatBool(isExtension),
			"lateFeeCents":     strconv.FormatInt(p.LateFeeCents, 10),
			"weeklyPriceCents": strconv.FormatInt(p.WeeklyPriceCents, 10),
		},
	}

	var session CheckoutSession
	if err := a.post(ctx, "/v1/checkout/sessions", req, &session); err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	session.EstimatedTotalCents = fees.CardSurchargeTotal(p.AmountCents)

	a.logger.Info("checkout session created",
		"session_id", session.ID,
		"booking_ref", p.BookingRef,
		"amount_cents", p.AmountCents,
		"is_extension", isExtension,
	)
	return &session, nil
}

// CreateSetupSession creates a setup-mode session that saves a card without
// charging it. Completion arrives through the webhook and links the card to
// the member.
func (a *Adapter) CreateSetupSession(ctx context.Context, userEmail string) (*CheckoutSession, error) {
	if a.cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if userEmail == "" {
		return nil, ErrUnauthenticated
	}

	req := map[string]any{
		"mode":           "setup",
		"customer_email": userEmail,
		"success_url":    a.cfg.SuccessURL,
		"cancel_url":     a.cfg.CancelURL,
		"metadata": map[string]string{
			"userEmail": userEmail,
		},
	}

	var session CheckoutSession
	if err := a.post(ctx, "/v1/checkout/sessions", req, &session); err != nil {
		return nil, fmt.Errorf("creating setup session: %w", err)
	}

	a.logger.Info("setup session created", "session_id", session.ID, "user_email", userEmail)
	return &session, nil
}

// ChargeOffSession charges a saved card without the customer present. The
// amount is charged exactly as given.
func (a *Adapter) ChargeOffSession(ctx context.Context, customerID, paymentMethodID string, amount money.Money, metadata map[string]string) (string, error) {
	if a.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}
	if customerID == "" || paymentMethodID == "" {
		return "", fmt.Errorf("%w: customer and payment method are required", ErrInvalidArgument)
	}
	if amount.AmountMinor < MinChargeCents {
		return "", fmt.Errorf("%w: amount %d below minimum %d", ErrInvalidArgument, amount.AmountMinor, MinChargeCents)
	}

	req := map[string]any{
		"amount_cents":   amount.AmountMinor,
		"currency":       "usd",
		"customer":       customerID,
		"payment_method": paymentMethodID,
		"off_session":    true,
		"confirm":        true,
		"metadata":       metadata,
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := a.post(ctx, "/v1/payment_intents", req, &intent); err != nil {
		var pe *processorError
		if errors.As(err, &pe) && pe.Code == "authentication_required" {
			return "", &AuthenticationRequiredError{IntentID: pe.IntentID}
		}
		return "", fmt.Errorf("creating off-session intent: %w", err)
	}
	if intent.Status != "succeeded" {
		if intent.Error.Code == "authentication_required" {
			return "", &AuthenticationRequiredError{IntentID: intent.ID}
		}
		return "", fmt.Errorf("off-session charge %s ended in status %s", intent.ID, intent.Status)
	}

	a.logger.Info("off-session charge succeeded",
		"intent_id", intent.ID,
		"customer_id", customerID,
		"amount_cents", amount.AmountMinor,
	)
	return intent.ID, nil
}

// DetachPaymentMethod removes a saved payment method at the processor.
func (a *Adapter) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	if a.cfg.SecretKey == "" {
		return ErrNotConfigured
	}
	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/v1/payment_methods/%s/detach", paymentMethodID)
	if err := a.post(ctx, path, map[string]any{}, &out); err != nil {
		return fmt.Errorf("detaching payment method: %w", err)
	}
	return nil
}

// processorError carries the processor's structured error body.
type processorError struct {
	StatusCode int
	Code       string
	Message    string
	IntentID   string
}

func (e *processorError) Error() string {
	return fmt.Sprintf("card processor error %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

func (a *Adapter) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling processor: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error struct {
				Code          string `json:"code"`
				Message       string `json:"message"`
				PaymentIntent string `json:"payment_intent"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		return &processorError{
			StatusCode: resp.StatusCode,
			Code:       errBody.Error.Code,
			Message:    errBody.Error.Message,
			IntentID:   errBody.Error.PaymentIntent,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
