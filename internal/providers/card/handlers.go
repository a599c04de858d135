package card

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/middleware"
)

// Handlers exposes the card payment factory endpoints.
type Handlers struct {
	adapter *Adapter
}

// NewHandlers creates card handlers.
func NewHandlers(adapter *Adapter) *Handlers {
	return &Handlers{adapter: adapter}
}

// Routes mounts the card endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/payments/card/checkout-session", h.createCheckoutSession)
	r.Post("/payments/card/setup-session", h.createSetupSession)
}

type checkoutRequest struct {
	BookingRef       string `json:"booking_ref" validate:"required"`
	AmountCents      int64  `json:"amount_cents" validate:"required,gte=50"`
	VehicleName      string `json:"vehicle_name"`
	LateFeeCents     int64  `json:"late_fee_cents" validate:"gte=0"`
	WeeklyPriceCents int64  `json:"weekly_price_cents" validate:"gte=0"`
}

type checkoutResponse struct {
	SessionID           string `json:"session_id"`
	URL                 string `json:"url"`
	EstimatedTotalCents int64  `json:"estimated_total_cents"`
}

func (h *Handlers) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	session, err := h.adapter.CreateCheckoutSession(r.Context(), CheckoutParams{
		BookingRef:       req.BookingRef,
		UserEmail:        email,
		AmountCents:      req.AmountCents,
		VehicleName:      req.VehicleName,
		LateFeeCents:     req.LateFeeCents,
		WeeklyPriceCents: req.WeeklyPriceCents,
	})
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, checkoutResponse{
		SessionID:           session.ID,
		URL:                 session.URL,
		EstimatedTotalCents: session.EstimatedTotalCents,
	})
}

func (h *Handlers) createSetupSession(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	session, err := h.adapter.CreateSetupSession(r.Context(), email)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, checkoutResponse{
		SessionID: session.ID,
		URL:       session.URL,
	})
}

func writeAdapterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		api.WriteError(w, http.StatusConflict, api.ErrCodeFailedPrecondition, "Card processor not configured")
	case errors.Is(err, ErrUnauthenticated):
		api.Unauthorized(w, "Caller identity required")
	case errors.Is(err, ErrInvalidArgument):
		api.BadRequest(w, err.Error())
	default:
		api.InternalError(w, "Card processor call failed")
	}
}
