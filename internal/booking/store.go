package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rentalplatform/internal/common/database"
	"rentalplatform/internal/fees"
)

// Store persists bookings. Mutations that race with webhook redeliveries are
// expressed as conditional updates so a stale or duplicate event can never
// move a booking backward.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	// Resolve looks a booking up by primary ID, falling back to the
	// externally visible custom ID.
	Resolve(ctx context.Context, ref string) (*Booking, error)
	ListByUser(ctx context.Context, email string, limit, offset int) ([]*Booking, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Booking, error)
	Delete(ctx context.Context, id string) error

	Transition(ctx context.Context, id string, from, to Status) error
	MarkRented(ctx context.Context, id string) error

	ApplyPaymentSucceeded(ctx context.Context, id, intentID string, amountCents int64, at time.Time) error
	ApplyPaymentFailed(ctx context.Context, id, intentID string, at time.Time) error
	ApplyExtension(ctx context.Context, id, eventID, intentID string, amountCents, lateFeeCents, weeklyCents int64, at time.Time) (applied bool, err error)
	MarkLateFeePaid(ctx context.Context, id, intentID string, lateFeeCents int64, at time.Time) error
	SetWalletLinkage(ctx context.Context, id, orderID, captureID, status string, amountCents int64) error

	HasOutstandingDebt(ctx context.Context, email string) (bool, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const bookingColumns = `id, custom_id, vehicle_id, user_email, pickup_date, return_date, weeks, status,
	rate_cents, customer, agreement_version,
	created_at, rented_at, paid_at, updated_at,
	last_payment_at, last_payment_intent_id, last_payment_amount, last_payment_status,
	late_fee_paid, late_fee_cents,
	extensions_count, last_extension_late_fee, last_extension_weekly_price,
	last_wallet_order_id, last_wallet_capture_id, last_wallet_status, last_wallet_amount`

// Create inserts a new booking.
func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (
			id, custom_id, vehicle_id, user_email, pickup_date, return_date, weeks, status,
			rate_cents, customer, agreement_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`
	customer, _ := json.Marshal(b.Customer)
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.Exec(ctx, query,
		b.ID, b.CustomID, b.VehicleID, b.UserEmail, b.PickupDate, b.ReturnDate, b.Weeks, string(b.Status),
		b.RateCents, customer, b.AgreementVersion, now,
	)
	return err
}

// Get retrieves a booking by primary ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(s.db.QueryRow(ctx, query, id))
}

// Resolve retrieves a booking by primary ID with a custom-ID fallback.
func (s *PostgresStore) Resolve(ctx context.Context, ref string) (*Booking, error) {
	b, err := s.Get(ctx, ref)
	if err == nil {
		return b, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE custom_id = $1`
	return scanBooking(s.db.QueryRow(ctx, query, ref))
}

// ListByUser retrieves a member's bookings, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, email string, limit, offset int) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_email = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return s.list(ctx, query, email, limit, offset)
}

// ListByStatus retrieves bookings in a given status, newest first.
func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return s.list(ctx, query, string(status), limit, offset)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any, limit, offset int) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, query, arg, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Delete removes a booking.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Transition moves a booking from one status to another. The WHERE clause is
// the compare-and-swap: if a concurrent writer already moved the booking, no
// row matches and ErrConflict is returned instead of silently overwriting.
func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status) error {
	query := `
		UPDATE bookings
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status IN ($2, 'active')
	`
	args := []any{id, string(from), string(to), time.Now().UTC()}
	if from != StatusPending {
		query = `
			UPDATE bookings
			SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2
		`
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); database.IsNotFound(getErr) {
			return database.ErrNotFound
		}
		return database.ErrConflict
	}
	return nil
}

// MarkRented transitions into rented and stamps rented_at exactly once.
func (s *PostgresStore) MarkRented(ctx context.Context, id string) error {
	query := `
		UPDATE bookings
		SET status = 'rented',
		    rented_at = COALESCE(rented_at, $2),
		    updated_at = $2
		WHERE id = $1 AND status NOT IN ('cancelled', 'rejected', 'paid')
	`
	tag, err := s.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); database.IsNotFound(getErr) {
			return database.ErrNotFound
		}
		return database.ErrConflict
	}
	return nil
}

// ApplyPaymentSucceeded records a confirmed non-extension payment. The status
// moves to accepted only when the booking is in a pre-rental state: a rented
// booking is never downgraded, and a cancelled or rejected booking keeps its
// terminal status (the payment fields are still stamped for reconciliation).
// Re-applying the same event yields the same end state, so no dedup is needed.
func (s *PostgresStore) ApplyPaymentSucceeded(ctx context.Context, id, intentID string, amountCents int64, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = CASE
			WHEN status IN ('pending', 'active', 'accepted') THEN 'accepted'
			ELSE status
		END,
		    last_payment_at = $3,
		    last_payment_intent_id = $4,
		    last_payment_amount = $5,
		    last_payment_status = 'succeeded',
		    updated_at = $2
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, time.Now().UTC(), at, intentID, amountCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ApplyPaymentFailed stamps the failed attempt. Status is never touched: a
// failed payment must not regress a booking.
func (s *PostgresStore) ApplyPaymentFailed(ctx context.Context, id, intentID string, at time.Time) error {
	query := `
		UPDATE bookings
		SET last_payment_at = $3,
		    last_payment_intent_id = $4,
		    last_payment_status = 'failed',
		    updated_at = $2
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, time.Now().UTC(), at, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ApplyExtension pushes the return date one week for a confirmed extension
// payment. Adding seven days twice is wrong, so the processor's event ID is
// claimed first in payment_events inside the same transaction; a redelivery
// finds the ID already claimed and returns applied=false without touching
// the booking.
func (s *PostgresStore) ApplyExtension(ctx context.Context, id, eventID, intentID string, amountCents, lateFeeCents, weeklyCents int64, at time.Time) (bool, error) {
	applied := false
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		claim := `
			INSERT INTO payment_events (event_id, booking_id, kind, received_at)
			VALUES ($1, $2, 'extension', $3)
			ON CONFLICT (event_id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, claim, eventID, id, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("claiming event id: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil // already processed
		}

		update := `
			UPDATE bookings
			SET return_date = return_date + INTERVAL '7 days',
			    extensions_count = extensions_count + 1,
			    status = CASE
				WHEN status IN ('cancelled', 'rejected', 'paid') THEN status
				ELSE 'rented'
			    END,
			    last_extension_late_fee = $3,
			    last_extension_weekly_price = $4,
			    last_payment_at = $5,
			    last_payment_intent_id = $6,
			    last_payment_amount = $7,
			    last_payment_status = 'succeeded',
			    late_fee_paid = CASE WHEN $3 > 0 THEN TRUE ELSE late_fee_paid END,
			    updated_at = $2
			WHERE id = $1 AND status NOT IN ('cancelled', 'rejected', 'paid')
		`
		tag, err = tx.Exec(ctx, update, id, time.Now().UTC(),
			lateFeeCents, weeklyCents, at, intentID, amountCents)
		if err != nil {
			return fmt.Errorf("applying extension: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Terminal or missing booking: the event stays claimed so a
			// redelivery does not retry, but the booking is untouched.
			return nil
		}
		applied = true
		return nil
	})
	return applied, err
}

// MarkLateFeePaid records a settled late fee and closes out the rental.
func (s *PostgresStore) MarkLateFeePaid(ctx context.Context, id, intentID string, lateFeeCents int64, at time.Time) error {
	query := `
		UPDATE bookings
		SET late_fee_paid = TRUE,
		    late_fee_cents = $3,
		    paid_at = $4,
		    status = 'paid',
		    last_payment_intent_id = $5,
		    updated_at = $2
		WHERE id = $1 AND status NOT IN ('cancelled', 'rejected')
	`
	tag, err := s.db.Exec(ctx, query, id, time.Now().UTC(), lateFeeCents, at, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); database.IsNotFound(getErr) {
			return database.ErrNotFound
		}
		return database.ErrConflict
	}
	return nil
}

// SetWalletLinkage stamps the wallet processor's order linkage fields.
func (s *PostgresStore) SetWalletLinkage(ctx context.Context, id, orderID, captureID, status string, amountCents int64) error {
	query := `
		UPDATE bookings
		SET last_wallet_order_id = $3,
		    last_wallet_capture_id = $4,
		    last_wallet_status = $5,
		    last_wallet_amount = $6,
		    updated_at = $2
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, time.Now().UTC(), orderID, captureID, status, amountCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// HasOutstandingDebt reports whether the member has an overdue rental with an
// unpaid late fee.
func (s *PostgresStore) HasOutstandingDebt(ctx context.Context, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE user_email = $1
			  AND status IN ('rented', 'extended')
			  AND late_fee_paid = FALSE
			  AND return_date < CURRENT_DATE
		)
	`
	var inDebt bool
	if err := s.db.QueryRow(ctx, query, email).Scan(&inDebt); err != nil {
		return false, err
	}
	return inDebt, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	var pickup, ret time.Time
	var customer []byte

	err := row.Scan(
		&b.ID, &b.CustomID, &b.VehicleID, &b.UserEmail, &pickup, &ret, &b.Weeks, &status,
		&b.RateCents, &customer, &b.AgreementVersion,
		&b.CreatedAt, &b.RentedAt, &b.PaidAt, &b.UpdatedAt,
		&b.LastPaymentAt, &b.LastPaymentIntentID, &b.LastPaymentAmount, &b.LastPaymentStatus,
		&b.LateFeePaid, &b.LateFeeCents,
		&b.ExtensionsCount, &b.LastExtensionLateFee, &b.LastExtensionWeeklyPrice,
		&b.LastWalletOrderID, &b.LastWalletCaptureID, &b.LastWalletStatus, &b.LastWalletAmount,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	b.Status = NormalizeStatus(Status(status))
	b.PickupDate = pickup.Format(fees.ReturnDateLayout)
	b.ReturnDate = ret.Format(fees.ReturnDateLayout)
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &b.Customer); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
