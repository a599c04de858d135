package wallet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/booking"
	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/middleware"
	"rentalplatform/internal/fees"
)

// Reconciler applies confirmed payment outcomes to bookings.
type Reconciler interface {
	PaymentSucceeded(ctx context.Context, ev booking.PaymentEvent) error
	RecordWalletCapture(ctx context.Context, ref, orderID, captureID, status string, amountCents int64) error
}

// Handlers exposes the wallet payment endpoints.
type Handlers struct {
	adapter    *Adapter
	reconciler Reconciler
	logger     *slog.Logger
}

// NewHandlers creates wallet handlers.
func NewHandlers(adapter *Adapter, reconciler Reconciler, logger *slog.Logger) *Handlers {
	return &Handlers{adapter: adapter, reconciler: reconciler, logger: logger}
}

// Routes mounts the wallet endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/payments/wallet/orders", h.createOrder)
	r.Post("/payments/wallet/confirm", h.confirm)
}

type createOrderRequest struct {
	BookingRef       string `json:"booking_ref" validate:"required"`
	AmountCents      int64  `json:"amount_cents" validate:"required,gte=50"`
	VehicleName      string `json:"vehicle_name"`
	LateFeeCents     int64  `json:"late_fee_cents" validate:"gte=0"`
	WeeklyPriceCents int64  `json:"weekly_price_cents" validate:"gte=0"`
}

type createOrderResponse struct {
	OrderID             string `json:"order_id"`
	ApproveURL          string `json:"approve_url"`
	EstimatedTotalCents int64  `json:"estimated_total_cents"`
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	order, err := h.adapter.CreateOrder(r.Context(), OrderParams{
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

	api.WriteData(w, http.StatusCreated, createOrderResponse{
		OrderID:    order.ID,
		ApproveURL: order.ApproveURL,
		// Display-only estimate including the wallet surcharge.
		EstimatedTotalCents: fees.WalletSurchargeTotal(req.AmountCents),
	})
}

type confirmRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

type confirmResponse struct {
	Captured  bool   `json:"captured"`
	OrderID   string `json:"order_id"`
	CaptureID string `json:"capture_id,omitempty"`
	Status    string `json:"status"`
}

// confirm captures an approved order. The order is re-fetched from the
// processor first: the booking reference and amount come from the processor's
// own record, never from the confirming client.
func (h *Handlers) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	order, err := h.adapter.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	switch order.Status {
	case StatusApproved:
		// fall through to capture
	case StatusCompleted:
		// Re-confirming an already captured order is a no-op ack.
		api.WriteData(w, http.StatusOK, confirmResponse{
			Captured:  true,
			OrderID:   order.ID,
			CaptureID: order.CaptureID,
			Status:    order.Status,
		})
		return
	default:
		api.FailedPrecondition(w, "Order has not been approved by the payer")
		return
	}

	captured, err := h.adapter.CaptureOrder(r.Context(), order.ID)
	if err != nil {
		api.InternalError(w, "Failed to capture order")
		return
	}

	ref := captured.Metadata["bookingId"]
	if ref == "" {
		ref = order.Metadata["bookingId"]
	}
	lateFee, _ := strconv.ParseInt(order.Metadata["lateFeeCents"], 10, 64)
	weekly, _ := strconv.ParseInt(order.Metadata["weeklyPriceCents"], 10, 64)

	if ref != "" {
		ev := booking.PaymentEvent{
			Ref:          ref,
			EventID:      captured.CaptureID,
			IntentID:     captured.CaptureID,
			Provider:     "wallet",
			AmountCents:  captured.AmountCents,
			LateFeeCents: lateFee,
			WeeklyCents:  weekly,
			UserEmail:    order.Metadata["userEmail"],
			OccurredAt:   time.Now().UTC(),
		}
		if err := h.reconciler.PaymentSucceeded(r.Context(), ev); err != nil {
			api.InternalError(w, "Payment captured but booking update failed")
			return
		}
		if err := h.reconciler.RecordWalletCapture(r.Context(), ref, captured.ID, captured.CaptureID, captured.Status, captured.AmountCents); err != nil {
			// Linkage is bookkeeping; the capture and reconciliation stand.
			h.logger.Error("failed to record wallet capture linkage",
				"error", err, "booking_ref", ref, "order_id", captured.ID)
		}
	}

	api.WriteData(w, http.StatusOK, confirmResponse{
		Captured:  true,
		OrderID:   captured.ID,
		CaptureID: captured.CaptureID,
		Status:    captured.Status,
	})
}

func writeAdapterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		api.WriteError(w, http.StatusConflict, api.ErrCodeFailedPrecondition, "Wallet processor not configured")
	case errors.Is(err, ErrUnauthenticated):
		api.Unauthorized(w, "Caller identity required")
	case errors.Is(err, ErrInvalidArgument):
		api.BadRequest(w, err.Error())
	default:
		api.InternalError(w, "Wallet processor call failed")
	}
}
