// Package fees computes late fees and processor surcharge estimates for bookings.
package fees

import (
	"math"
	"time"
)

// Late-fee schedule: $15 per started hour past the return date, capped at $200.
const (
	HourlyLateFeeCents int64 = 1500
	LateFeeCapCents    int64 = 20000
)

// ReturnDateLayout is the calendar-date format bookings store their return date in.
const ReturnDateLayout = "2006-01-02"

// LateFee returns the late fee in cents owed at now for a booking due back at
// returnDate. Zero when the booking is not yet overdue.
func LateFee(now, returnDate time.Time) int64 {
	overdue := now.Sub(returnDate)
	if overdue <= 0 {
		return 0
	}
	hours := int64(math.Ceil(overdue.Hours()))
	fee := hours * HourlyLateFeeCents
	if fee > LateFeeCapCents {
		return LateFeeCapCents
	}
	return fee
}

// LateFeeFromReturnDate parses a stored return date (either a bare calendar date
// or RFC 3339) and computes the late fee at now. An empty or unparseable date
// yields zero: a booking with no usable due date cannot accrue a fee.
func LateFeeFromReturnDate(now time.Time, returnDate string) int64 {
	due, ok := ParseReturnDate(returnDate)
	if !ok {
		return 0
	}
	return LateFee(now, due)
}

// ParseReturnDate parses a stored return date. Calendar dates are anchored at
// midnight UTC.
func ParseReturnDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(ReturnDateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ExtensionAmount is the total charged when a rental is extended by one week:
// the vehicle's weekly price plus whatever late fee has accrued at the moment
// the extension payment is initiated.
func ExtensionAmount(weeklyPriceCents, lateFeeCents int64) int64 {
	return weeklyPriceCents + lateFeeCents
}

// CardSurchargeTotal estimates what a payer covering the card processor's fee
// would pay in total: amount × 1.029 + $0.30. Display guidance only; the
// authoritative charge path absorbs processor fees and charges base + late fee.
func CardSurchargeTotal(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents)*1.029)) + 30
}

// WalletSurchargeTotal estimates the wallet processor's gross-up:
// amount × 1.0349 + $0.49. Display guidance only.
func WalletSurchargeTotal(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents)*1.0349)) + 49
}
