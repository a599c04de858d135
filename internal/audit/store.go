package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentalplatform/internal/common/database"
)

// Store persists audit events. Records are append-only; there is no update.
type Store interface {
	Append(ctx context.Context, e *Event) error
	Get(ctx context.Context, auditID string) (*Event, error)
	ListByBooking(ctx context.Context, bookingID string, limit, offset int) ([]*Event, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts an audit event.
func (s *PostgresStore) Append(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO booking_audit (id, booking_id, event_type, user_email, details, hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	details, _ := json.Marshal(e.Details)

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.BookingID, e.EventType, e.UserEmail, details, e.Hash, e.RecordedAt,
	)
	return err
}

// Get retrieves an audit event by ID.
func (s *PostgresStore) Get(ctx context.Context, auditID string) (*Event, error) {
	query := `
		SELECT id, booking_id, event_type, user_email, details, hash, recorded_at
		FROM booking_audit
		WHERE id = $1
	`
	return scanEvent(s.pool.QueryRow(ctx, query, auditID))
}

// ListByBooking retrieves the audit trail for a booking, newest first.
func (s *PostgresStore) ListByBooking(ctx context.Context, bookingID string, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, booking_id, event_type, user_email, details, hash, recorded_at
		FROM booking_audit
		WHERE booking_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, bookingID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var details []byte
	err := row.Scan(&e.ID, &e.BookingID, &e.EventType, &e.UserEmail, &details, &e.Hash, &e.RecordedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
