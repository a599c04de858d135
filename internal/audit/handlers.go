package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/api"
	"rentalplatform/internal/common/database"
)

// Handlers exposes the audit HTTP surface.
type Handlers struct {
	service *Service
}

// NewHandlers creates audit handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Routes mounts the audit endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/audit", h.record)
	r.Get("/audit/{auditID}", h.get)
	r.Get("/bookings/{bookingID}/audit", h.trail)
}

type recordRequest struct {
	BookingID        string         `json:"bookingId"`
	EventType        string         `json:"eventType"`
	UserEmail        string         `json:"userEmail"`
	Weeks            int            `json:"weeks"`
	RateCents        int64          `json:"rateCents"`
	ExtensionWeeks   int            `json:"extensionWeeks"`
	ReturnDateISO    string         `json:"returnDateISO"`
	LateFeeCents     int64          `json:"lateFeeCents"`
	PaymentProvider  string         `json:"paymentProvider"`
	PaymentSessionID string         `json:"paymentSessionId"`
	AgreementVersion string         `json:"agreementVersion"`
	Snapshot         map[string]any `json:"snapshot"`
}

// details flattens the optional fields into the hashed detail map, keeping
// only what the caller actually sent.
func (req recordRequest) details() map[string]any {
	d := make(map[string]any)
	if req.Weeks != 0 {
		d["weeks"] = req.Weeks
	}
	if req.RateCents != 0 {
		d["rateCents"] = req.RateCents
	}
	if req.ExtensionWeeks != 0 {
		d["extensionWeeks"] = req.ExtensionWeeks
	}
	if req.ReturnDateISO != "" {
		d["returnDateISO"] = req.ReturnDateISO
	}
	if req.LateFeeCents != 0 {
		d["lateFeeCents"] = req.LateFeeCents
	}
	if req.PaymentProvider != "" {
		d["paymentProvider"] = req.PaymentProvider
	}
	if req.PaymentSessionID != "" {
		d["paymentSessionId"] = req.PaymentSessionID
	}
	if req.AgreementVersion != "" {
		d["agreementVersion"] = req.AgreementVersion
	}
	for k, v := range req.Snapshot {
		d["snapshot."+k] = v
	}
	return d
}

type recordResponse struct {
	OK      bool   `json:"ok"`
	AuditID string `json:"auditId"`
	Hash    string `json:"hash"`
}

func (h *Handlers) record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.BadRequest(w, "Invalid request body")
		return
	}
	if req.BookingID == "" || req.EventType == "" || req.UserEmail == "" {
		api.BadRequest(w, "bookingId, eventType and userEmail are required")
		return
	}

	e, err := h.service.Record(r.Context(), req.BookingID, req.EventType, req.UserEmail, req.details())
	if err != nil {
		api.InternalError(w, "Failed to record audit event")
		return
	}

	api.WriteJSON(w, http.StatusCreated, recordResponse{
		OK:      true,
		AuditID: e.ID,
		Hash:    e.Hash,
	})
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Get(r.Context(), chi.URLParam(r, "auditID"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "Audit event not found")
			return
		}
		api.InternalError(w, "Failed to load audit event")
		return
	}
	api.WriteData(w, http.StatusOK, e)
}

func (h *Handlers) trail(w http.ResponseWriter, r *http.Request) {
	p := api.GetPaginationParams(r, 50, 200)
	trail, err := h.service.Trail(r.Context(), chi.URLParam(r, "bookingID"), p.Limit, p.Offset)
	if err != nil {
		api.InternalError(w, "Failed to load audit trail")
		return
	}
	api.WritePaginated(w, trail, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   int64(len(trail)),
		HasMore: len(trail) == p.Limit,
	})
}
