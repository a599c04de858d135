package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"rentalplatform/internal/common/events"
)

type memStore struct {
	appended []*Event
}

func (m *memStore) Append(_ context.Context, e *Event) error {
	m.appended = append(m.appended, e)
	return nil
}

func (m *memStore) Get(_ context.Context, auditID string) (*Event, error) {
	for _, e := range m.appended {
		if e.ID == auditID {
			return e, nil
		}
	}
	return nil, io.EOF
}

func (m *memStore) ListByBooking(_ context.Context, bookingID string, _, _ int) ([]*Event, error) {
	var out []*Event
	for _, e := range m.appended {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *events.Envelope) error { return nil }

func newTestHandlers(store *memStore) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(NewService(store, noopPublisher{}, logger))
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestRecordRequiresIdentityFields(t *testing.T) {
	handler := newTestHandlers(&memStore{})

	for _, body := range []string{
		`{"eventType":"created","userEmail":"a@b.c"}`,
		`{"bookingId":"bk_1","userEmail":"a@b.c"}`,
		`{"bookingId":"bk_1","eventType":"created"}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/audit", strings.NewReader(body))
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRecordFoldsOptionalFieldsIntoDetails(t *testing.T) {
	store := &memStore{}
	handler := newTestHandlers(store)

	body := `{
		"bookingId": "bk_1",
		"eventType": "extended",
		"userEmail": "renter@example.com",
		"weeks": 2,
		"lateFeeCents": 3000,
		"paymentProvider": "card",
		"snapshot": {"license": "D123"}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/audit", strings.NewReader(body))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OK      bool   `json:"ok"`
		AuditID string `json:"auditId"`
		Hash    string `json:"hash"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.OK || resp.AuditID == "" || resp.Hash == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(store.appended) != 1 {
		t.Fatalf("appended %d events, want 1", len(store.appended))
	}
	e := store.appended[0]
	if e.Hash != resp.Hash {
		t.Errorf("stored hash %s != returned hash %s", e.Hash, resp.Hash)
	}
	for _, key := range []string{"weeks", "lateFeeCents", "paymentProvider", "snapshot.license"} {
		if _, ok := e.Details[key]; !ok {
			t.Errorf("detail %q missing from stored event", key)
		}
	}
	if !e.Verify() {
		t.Error("stored event fails self-verification")
	}
}

func TestTrailReturnsBookingEvents(t *testing.T) {
	store := &memStore{}
	handler := newTestHandlers(store)

	for _, ref := range []string{"bk_1", "bk_1", "bk_2"} {
		store.appended = append(store.appended, New(ref, "created", "a@b.c", nil))
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings/bk_1/audit", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("trail has %d events, want 2", len(resp.Data))
	}
}
