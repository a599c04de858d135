package vehicle

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/database"
)

// Handlers serves fleet endpoints. The fleet itself is managed out of band;
// only availability flags change at runtime, driven by booking transitions.
type Handlers struct {
	store  Store
	logger *slog.Logger
}

// NewHandlers creates vehicle handlers.
func NewHandlers(store Store, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// Routes registers the public storefront endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/vehicles", h.List)
	r.Get("/vehicles/{vehicleID}", h.Get)
}

// List returns the fleet. `?available=true` narrows to cars that can be
// booked right now (available and not held by a pending booking).
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	onlyAvailable := strings.EqualFold(r.URL.Query().Get("available"), "true")

	vehicles, err := h.store.List(r.Context(), onlyAvailable)
	if err != nil {
		h.logger.Error("failed to list vehicles", "error", err)
		api.InternalError(w, "Failed to list vehicles")
		return
	}
	if vehicles == nil {
		vehicles = []*Vehicle{}
	}
	api.WriteData(w, http.StatusOK, vehicles)
}

// Get returns a single vehicle.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.Get(r.Context(), chi.URLParam(r, "vehicleID"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Vehicle not found")
			return
		}
		h.logger.Error("failed to get vehicle", "error", err)
		api.InternalError(w, "Failed to get vehicle")
		return
	}
	api.WriteData(w, http.StatusOK, v)
}
