// Package audit keeps the append-only trail of booking lifecycle events.
// Every record carries a SHA-256 integrity hash computed over a canonical
// JSON form so a record can be verified in isolation later.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one audit record.
type Event struct {
	ID         string         `json:"audit_id"`
	BookingID  string         `json:"booking_id"`
	EventType  string         `json:"event_type"`
	UserEmail  string         `json:"user_email"`
	Details    map[string]any `json:"details,omitempty"`
	Hash       string         `json:"hash"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// New builds an audit event with its integrity hash filled in.
func New(bookingID, eventType, userEmail string, details map[string]any) *Event {
	e := &Event{
		ID:         ulid.Make().String(),
		BookingID:  bookingID,
		EventType:  eventType,
		UserEmail:  userEmail,
		Details:    details,
		// TIMESTAMPTZ keeps microseconds; anything finer would change the
		// hash after a storage round-trip.
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	e.Hash = e.ComputeHash()
	return e
}

// ComputeHash returns the SHA-256 of the record's canonical JSON form. Go
// marshals map keys in sorted order, which makes the form canonical without a
// separate sorting pass. The hash field itself is excluded.
func (e *Event) ComputeHash() string {
	canonical := map[string]any{
		"audit_id":    e.ID,
		"booking_id":  e.BookingID,
		"event_type":  e.EventType,
		"user_email":  e.UserEmail,
		"recorded_at": e.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range e.Details {
		canonical["detail."+k] = v
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		// Details came from JSON, so marshaling cannot fail in practice.
		raw = []byte(e.ID)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the hash and reports whether it matches the stored one.
func (e *Event) Verify() bool {
	return e.Hash == e.ComputeHash()
}
