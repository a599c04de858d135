package booking

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/middleware"
)

// Handlers exposes the booking HTTP surface.
type Handlers struct {
	service *Service
}

// NewHandlers creates booking handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Routes mounts the member-facing booking endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/bookings", h.create)
	r.Get("/bookings", h.listMine)
	r.Get("/bookings/{ref}", h.get)
	r.Delete("/bookings/{ref}", h.delete)
	r.Post("/bookings/{ref}/cancel", h.cancel)
}

// AdminRoutes mounts the admin transition endpoints.
func (h *Handlers) AdminRoutes(r chi.Router) {
	r.Get("/bookings", h.listByStatus)
	r.Post("/bookings/{ref}/accept", h.accept)
	r.Post("/bookings/{ref}/reject", h.reject)
	r.Post("/bookings/{ref}/mark-rented", h.markRented)
	r.Post("/bookings/{ref}/charge-late-fee", h.chargeLateFee)
	r.Delete("/bookings/{ref}", h.adminDelete)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}
	if email := middleware.GetUserEmail(r.Context()); email != "" {
		req.UserEmail = email
	}
	if req.UserEmail == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	b, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrVehicleUnavailable):
			api.Conflict(w, "Vehicle is not available")
		case database.IsNotFound(err):
			api.NotFound(w, "Vehicle not found")
		default:
			api.InternalError(w, "Failed to create booking")
		}
		return
	}
	api.WriteData(w, http.StatusCreated, b)
}

func (h *Handlers) listMine(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}
	p := api.GetPaginationParams(r, 20, 100)
	bookings, err := h.service.ListByUser(r.Context(), email, p.Limit, p.Offset)
	if err != nil {
		api.InternalError(w, "Failed to list bookings")
		return
	}
	api.WritePaginated(w, bookings, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   int64(len(bookings)),
		HasMore: len(bookings) == p.Limit,
	})
}

func (h *Handlers) listByStatus(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusPending
	}
	p := api.GetPaginationParams(r, 20, 100)
	bookings, err := h.service.ListByStatus(r.Context(), status, p.Limit, p.Offset)
	if err != nil {
		api.InternalError(w, "Failed to list bookings")
		return
	}
	api.WritePaginated(w, bookings, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   int64(len(bookings)),
		HasMore: len(bookings) == p.Limit,
	})
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Booking not found")
			return
		}
		api.InternalError(w, "Failed to load booking")
		return
	}
	if email := middleware.GetUserEmail(r.Context()); email != "" && b.UserEmail != email {
		api.NotFound(w, "Booking not found")
		return
	}
	api.WriteData(w, http.StatusOK, b)
}

func (h *Handlers) cancel(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserEmail(r.Context())
	b, err := h.service.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Booking not found")
			return
		}
		api.InternalError(w, "Failed to load booking")
		return
	}
	if actor == "" || b.UserEmail != actor {
		api.Forbidden(w, "Not the booking owner")
		return
	}

	updated, err := h.service.Cancel(r.Context(), b.ID, actor)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, updated)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserEmail(r.Context())
	if actor == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "ref"), actor, false); err != nil {
		switch {
		case database.IsNotFound(err):
			api.NotFound(w, "Booking not found")
		case errors.Is(err, ErrInvalidTransition):
			api.FailedPrecondition(w, "Active rentals cannot be deleted")
		default:
			api.InternalError(w, "Failed to delete booking")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) accept(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.service.Accept)
}

func (h *Handlers) reject(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.service.Reject)
}

func (h *Handlers) markRented(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.service.MarkRented)
}

func (h *Handlers) adminTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor string) (*Booking, error)) {
	b, err := fn(r.Context(), chi.URLParam(r, "ref"), "admin")
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, b)
}

func (h *Handlers) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case database.IsNotFound(err):
		api.NotFound(w, "Booking not found")
	case errors.Is(err, ErrInvalidTransition):
		api.FailedPrecondition(w, "Transition not allowed from current status")
	default:
		api.InternalError(w, "Failed to update booking")
	}
}

func (h *Handlers) adminDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "ref"), "admin", true); err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Booking not found")
			return
		}
		api.InternalError(w, "Failed to delete booking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) chargeLateFee(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ChargeLateFee(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Booking not found")
			return
		}
		api.InternalError(w, "Failed to charge late fee")
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}
