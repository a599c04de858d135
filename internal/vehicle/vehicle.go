// Package vehicle holds the rental fleet inventory. Bookings flip a vehicle's
// availability flags as they move through the lifecycle; the flags are what
// the storefront reads when listing cars.
package vehicle

import (
	"time"
)

// Vehicle is a single car in the fleet.
type Vehicle struct {
	ID              string    `json:"id"`
	Make            string    `json:"make"`
	Model           string    `json:"model"`
	Year            int       `json:"year"`
	Plate           string    `json:"plate"`
	WeeklyRateCents int64     `json:"weekly_rate_cents"`
	Available       bool      `json:"available"`
	PendingBooking  bool      `json:"pending_booking"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
