// Package wallet integrates the wallet processor (redirect-based orders).
// The client creates and approves an order out-of-band; confirmation always
// re-fetches the order server-side so client-supplied amounts are never
// trusted.
package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rentalplatform/internal/common/money"
)

// Order statuses as reported by the processor.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

// Adapter errors.
var (
	ErrNotConfigured   = errors.New("wallet processor credentials not configured")
	ErrUnauthenticated = errors.New("caller identity required")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotApproved     = errors.New("order has not been approved by the payer")
)

// MinChargeCents is the processor's minimum charge.
const MinChargeCents = 50

// Config holds wallet processor configuration.
type Config struct {
	APIBase      string        `envconfig:"WALLET_API_BASE" default:"https://api.wallet.example"`
	ClientID     string        `envconfig:"WALLET_CLIENT_ID"`
	ClientSecret string        `envconfig:"WALLET_CLIENT_SECRET"`
	ReturnURL    string        `envconfig:"WALLET_RETURN_URL" default:"https://rentals.example/payment/wallet/return"`
	CancelURL    string        `envconfig:"WALLET_CANCEL_URL" default:"https://rentals.example/payment/wallet/cancel"`
	Timeout      time.Duration `envconfig:"WALLET_TIMEOUT" default:"30s"`
}

// Adapter is the wallet processor client.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewAdapter creates a wallet adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Order is the processor-side order.
type Order struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amount_cents"`
	ApproveURL  string            `json:"approve_url,omitempty"`
	CaptureID   string            `json:"capture_id,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

// OrderParams describes a new order. BookingRef may carry the extension
// suffix and is embedded in the order metadata.
type OrderParams struct {
	BookingRef       string
	UserEmail        string
	AmountCents      int64
	VehicleName      string
	LateFeeCents     int64
	WeeklyPriceCents int64
}

// CreateOrder creates an order for the payer to approve. The booking is not
// touched; it is only mutated once the capture is confirmed.
func (a *Adapter) CreateOrder(ctx context.Context, p OrderParams) (*Order, error) {
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
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

	req := map[string]any{
		"intent": "CAPTURE",
		"amount": map[string]any{
			"currency_code": string(money.USD),
			"value":         money.USDCents(p.AmountCents).DecimalString(),
		},
		"description": p.VehicleName,
		"return_url":  a.cfg.ReturnURL,
		"cancel_url":  a.cfg.CancelURL,
		"metadata": map[string]string{
			"bookingId":        p.BookingRef,
			"userEmail":        p.UserEmail,
			"lateFeeCents":     strconv.FormatInt(p.LateFeeCents, 10),
			"weeklyPriceCents": strconv.FormatInt(p.WeeklyPriceCents, 10),
		},
	}

	var order Order
	if err := a.call(ctx, http.MethodPost, "/v2/orders", req, &order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	a.logger.Info("wallet order created",
		"order_id", order.ID,
		"booking_ref", p.BookingRef,
		"amount_cents", p.AmountCents,
	)
	return &order, nil
}

// GetOrder re-fetches an order from the processor.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	var order Order
	if err := a.call(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, &order); err != nil {
		return nil, fmt.Errorf("fetching order: %w", err)
	}
	return &order, nil
}

// CaptureOrder captures an approved order.
func (a *Adapter) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	var order Order
	if err := a.call(ctx, http.MethodPost, "/v2/orders/"+orderID+"/capture", map[string]any{}, &order); err != nil {
		return nil, fmt.Errorf("capturing order: %w", err)
	}

	a.logger.Info("wallet order captured",
		"order_id", order.ID,
		"capture_id", order.CaptureID,
		"amount_cents", order.AmountCents,
	)
	return &order, nil
}

// token fetches or reuses a client-credentials access token.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	body := bytes.NewBufferString("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase+"/v1/oauth2/token", body)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed with %d: %s", resp.StatusCode, raw)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}

	a.accessToken = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return a.accessToken, nil
}

func (a *Adapter) call(ctx context.Context, method, path string, body, out any) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.APIBase+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
		return fmt.Errorf("wallet processor error %d: %s", resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
