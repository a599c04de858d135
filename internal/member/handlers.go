package member

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/database"
	"rentalplatform/internal/common/middleware"
)

// Handlers exposes the member HTTP surface.
type Handlers struct {
	service *Service
}

// NewHandlers creates member handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Routes mounts the member-facing endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/members/me", h.me)
	r.Delete("/members/me/card", h.removeCard)
	r.Post("/members/me/terms", h.acceptTerms)
}

// AdminRoutes mounts the waiver endpoints.
func (h *Handlers) AdminRoutes(r chi.Router) {
	r.Post("/members/{email}/waiver", h.grantWaiver)
	r.Delete("/members/{email}/waiver", h.revokeWaiver)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}
	m, err := h.service.Get(r.Context(), email)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Member not found")
			return
		}
		api.InternalError(w, "Failed to load member")
		return
	}
	api.WriteData(w, http.StatusOK, m)
}

func (h *Handlers) removeCard(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	if err := h.service.RemoveCard(r.Context(), email); err != nil {
		switch {
		case errors.Is(err, ErrNoSavedCard):
			api.BadRequest(w, "No saved card on file")
		case errors.Is(err, ErrOutstandingDebt):
			api.FailedPrecondition(w, "Outstanding rental debt must be settled before removing the card")
		case database.IsNotFound(err):
			api.NotFound(w, "Member not found")
		default:
			api.InternalError(w, "Failed to remove card")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acceptTermsRequest struct {
	Version string `json:"version" validate:"required"`
}

func (h *Handlers) acceptTerms(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if email == "" {
		api.Unauthorized(w, "Caller identity required")
		return
	}

	var req acceptTermsRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	if err := h.service.AcceptTerms(r.Context(), email, req.Version, r.RemoteAddr); err != nil {
		api.InternalError(w, "Failed to record terms acceptance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) grantWaiver(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.service.GrantWaiver(r.Context(), email, "admin"); err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Member not found")
			return
		}
		api.InternalError(w, "Failed to grant waiver")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) revokeWaiver(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.service.RevokeWaiver(r.Context(), email); err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Member not found")
			return
		}
		api.InternalError(w, "Failed to revoke waiver")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
