// Package booking implements the rental booking lifecycle: the status state
// machine, the payment reconciliation applied by processor webhooks, the
// one-week extension flow and the off-session late fee charge.
package booking

import (
	"strings"
	"time"

	"rentalplatform/internal/common/money"
)

// Status is a booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRented    Status = "rented"
	StatusExtended  Status = "extended" // display marker; a rented booking whose return date was pushed
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"

	// statusActive is a legacy synonym for pending written by old clients.
	statusActive Status = "active"
)

// NormalizeStatus maps legacy status values onto the current vocabulary.
func NormalizeStatus(s Status) Status {
	if s == statusActive {
		return StatusPending
	}
	return s
}

// IsTerminal reports whether no further lifecycle transitions apply.
func (s Status) IsTerminal() bool {
	switch NormalizeStatus(s) {
	case StatusCancelled, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// ExtensionSuffix marks a payment reference as a one-week extension of the
// base booking rather than the initial rental payment.
const ExtensionSuffix = "_extend1w"

// SplitExtensionID strips the extension suffix from a booking reference and
// reports whether it was present.
func SplitExtensionID(ref string) (bookingID string, isExtension bool) {
	if strings.HasSuffix(ref, ExtensionSuffix) {
		return strings.TrimSuffix(ref, ExtensionSuffix), true
	}
	return ref, false
}

// CustomerSnapshot is the renter's identity captured at booking time. It is
// denormalized on purpose: the audit trail must reflect who booked even if
// the member profile changes later.
type CustomerSnapshot struct {
	Name          string `json:"name,omitempty"`
	Address       string `json:"address,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// Booking is a single rental reservation.
type Booking struct {
	ID string `json:"id"`
	// CustomID is an externally assigned reference (records migrated from the
	// predecessor system keep their old ids there). It is written out of band,
	// never minted here; Resolve falls back to it so old payment references
	// still find their booking.
	CustomID string `json:"custom_id,omitempty"`

	VehicleID  string `json:"vehicle_id"`
	UserEmail  string `json:"user_email"`
	PickupDate string `json:"pickup_date"` // calendar date, YYYY-MM-DD
	ReturnDate string `json:"return_date"` // pickup + 7*weeks days
	Weeks      int    `json:"weeks"`
	Status     Status `json:"status"`

	RateCents int64 `json:"rate_cents"` // weekly rate at booking time

	Customer         CustomerSnapshot `json:"customer"`
	AgreementVersion string           `json:"agreement_version,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	RentedAt  *time.Time `json:"rented_at,omitempty"` // set exactly once
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	LastPaymentAt       *time.Time `json:"last_payment_at,omitempty"`
	LastPaymentIntentID string     `json:"last_payment_intent_id,omitempty"`
	LastPaymentAmount   int64      `json:"last_payment_amount,omitempty"`
	LastPaymentStatus   string     `json:"last_payment_status,omitempty"`

	LateFeePaid  bool  `json:"late_fee_paid"`
	LateFeeCents int64 `json:"late_fee_cents"`

	ExtensionsCount          int   `json:"extensions_count"`
	LastExtensionLateFee     int64 `json:"last_extension_late_fee,omitempty"`
	LastExtensionWeeklyPrice int64 `json:"last_extension_weekly_price,omitempty"`

	LastWalletOrderID   string `json:"last_wallet_order_id,omitempty"`
	LastWalletCaptureID string `json:"last_wallet_capture_id,omitempty"`
	LastWalletStatus    string `json:"last_wallet_status,omitempty"`
	LastWalletAmount    int64  `json:"last_wallet_amount,omitempty"`
}

// TotalCents is the rental price for the booked weeks.
func (b *Booking) TotalCents() money.Money {
	return money.USDCents(b.RateCents * int64(b.Weeks))
}

// CanTransition reports whether a manual transition to the target status is
// allowed from the current one. Payment reconciliation has its own, slightly
// looser rules applied in the store layer.
func CanTransition(from, to Status) bool {
	from = NormalizeStatus(from)
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusAccepted:
		return from == StatusPending
	case StatusRented:
		return from == StatusAccepted || from == StatusPending
	case StatusCancelled, StatusRejected:
		return true // any non-terminal state
	case StatusPaid:
		return from == StatusRented || from == StatusExtended
	}
	return false
}
