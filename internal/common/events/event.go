// Package events defines the event envelope and domain event types published
// on the internal bus. Side effects of a booking mutation (receipt emails,
// owner notifications) are decoupled from the mutation itself: the core
// publishes an event and the notify worker consumes it.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"rentalplatform/internal/common/money"
)

// Envelope wraps every published event with common metadata.
type Envelope struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates an envelope around an event payload.
func NewEnvelope(eventType, aggregateID string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:          ulid.Make().String(),
		Type:        eventType,
		Version:     1,
		OccurredAt:  time.Now().UTC(),
		AggregateID: aggregateID,
		Data:        raw,
	}, nil
}

// WithCorrelation attaches a correlation ID.
func (e *Envelope) WithCorrelation(correlationID string) *Envelope {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event payload into v.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Event types.
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingExtended  = "booking.extended"
	TypeBookingStatus    = "booking.status.changed"
	TypePaymentRecorded  = "booking.payment.recorded"
	TypePaymentFailed    = "booking.payment.failed"
	TypeLateFeeCharged   = "booking.late_fee.charged"
	TypeCardSaved        = "member.card.saved"
	TypeCardRemoved      = "member.card.removed"
	TypeAuditRecorded    = "audit.recorded"
	TypeTermsAccepted    = "member.terms.accepted"
)

// NATS subjects. Events are published under "rental.events.<type>"; the notify
// worker subscribes to the whole space.
const (
	SubjectPrefix = "rental.events."
	SubjectAll    = "rental.events.>"
)

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// BookingCreated is published when a booking document is first written.
type BookingCreated struct {
	BookingID  string `json:"booking_id"`
	VehicleID  string `json:"vehicle_id"`
	UserEmail  string `json:"user_email"`
	PickupDate string `json:"pickup_date"`
	ReturnDate string `json:"return_date"`
	Weeks      int    `json:"weeks"`
	RateCents  int64  `json:"rate_cents"`
}

// BookingExtended is published after a successful extension payment has moved
// the return date forward one week.
type BookingExtended struct {
	BookingID       string `json:"booking_id"`
	UserEmail       string `json:"user_email"`
	NewReturnDate   string `json:"new_return_date"`
	ExtensionsCount int    `json:"extensions_count"`
	LateFeeCents    int64  `json:"late_fee_cents"`
	WeeklyCents     int64  `json:"weekly_cents"`
	Provider        string `json:"provider"`
	ProviderRef     string `json:"provider_ref"`
}

// BookingStatusChanged is published on admin/user lifecycle transitions.
type BookingStatusChanged struct {
	BookingID string `json:"booking_id"`
	UserEmail string `json:"user_email"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
}

// PaymentRecorded is published when a processor confirms a payment. The notify
// worker turns it into the owner/receipt email.
type PaymentRecorded struct {
	BookingID    string      `json:"booking_id"`
	UserEmail    string      `json:"user_email"`
	Provider     string      `json:"provider"`
	ProviderRef  string      `json:"provider_ref"`
	Amount       money.Money `json:"amount"`
	LateFeeCents int64       `json:"late_fee_cents"`
	IsExtension  bool        `json:"is_extension"`
}

// PaymentFailed is published when a processor reports a failed payment.
type PaymentFailed struct {
	BookingID   string `json:"booking_id"`
	UserEmail   string `json:"user_email"`
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
	Reason      string `json:"reason,omitempty"`
}

// LateFeeCharged is published after a successful off-session late-fee charge.
type LateFeeCharged struct {
	BookingID    string `json:"booking_id"`
	UserEmail    string `json:"user_email"`
	LateFeeCents int64  `json:"late_fee_cents"`
	ProviderRef  string `json:"provider_ref"`
}

// CardSaved is published when a setup-mode completion links a saved card.
type CardSaved struct {
	UserEmail  string `json:"user_email"`
	CustomerID string `json:"customer_id"`
}

// TermsAccepted is published when a member records agreement to the rental terms.
type TermsAccepted struct {
	UserEmail string `json:"user_email"`
	Version   string `json:"version"`
	IP        string `json:"ip,omitempty"`
}

// AuditRecorded is published after an audit event is appended, carrying enough
// for the owner-notification email.
type AuditRecorded struct {
	AuditID      string `json:"audit_id"`
	BookingID    string `json:"booking_id"`
	EventType    string `json:"event_type"`
	UserEmail    string `json:"user_email"`
	Hash         string `json:"hash"`
	RateCents    int64  `json:"rate_cents,omitempty"`
	LateFeeCents int64  `json:"late_fee_cents,omitempty"`
}
