// Package member tracks renters: their processor customer link, the saved
// card used for off-session late fee charges, the card-removal waiver, and
// rental terms acceptance.
package member

import (
	"errors"
	"time"
)

// Member is a renter account keyed by email.
type Member struct {
	Email                  string     `json:"email"`
	Name                   string     `json:"name,omitempty"`
	Phone                  string     `json:"phone,omitempty"`
	ProcessorCustomerID    string     `json:"processor_customer_id,omitempty"`
	DefaultPaymentMethodID string     `json:"default_payment_method_id,omitempty"`
	CardOnFile             bool       `json:"card_on_file"`
	RemovalWaiver          bool       `json:"removal_waiver"`
	WaiverGrantedBy        string     `json:"waiver_granted_by,omitempty"`
	WaiverGrantedAt        *time.Time `json:"waiver_granted_at,omitempty"`
	TermsVersion           string     `json:"terms_version,omitempty"`
	TermsAcceptedAt        *time.Time `json:"terms_accepted_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Errors returned by card removal.
var (
	ErrNoSavedCard     = errors.New("no saved card on file")
	ErrOutstandingDebt = errors.New("member has outstanding rental debt")
)
