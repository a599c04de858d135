package vehicle

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentalplatform/internal/common/database"
)

// Store persists vehicles.
type Store interface {
	Get(ctx context.Context, id string) (*Vehicle, error)
	List(ctx context.Context, onlyAvailable bool) ([]*Vehicle, error)
	Create(ctx context.Context, v *Vehicle) error
	SetFlags(ctx context.Context, id string, pendingBooking, available bool) error
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const vehicleColumns = `id, make, model, year, plate, weekly_rate_cents, available, pending_booking, created_at, updated_at`

// Create inserts a new vehicle.
func (s *PostgresStore) Create(ctx context.Context, v *Vehicle) error {
	query := `
		INSERT INTO vehicles (` + vehicleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.pool.Exec(ctx, query,
		v.ID, v.Make, v.Model, v.Year, v.Plate,
		v.WeeklyRateCents, v.Available, v.PendingBooking,
		v.CreatedAt, v.UpdatedAt,
	)
	return err
}

// Get retrieves a vehicle by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	return scanVehicle(s.pool.QueryRow(ctx, query, id))
}

// List retrieves vehicles, optionally filtered to available ones.
func (s *PostgresStore) List(ctx context.Context, onlyAvailable bool) ([]*Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	if onlyAvailable {
		query += ` WHERE available = TRUE AND pending_booking = FALSE`
	}
	query += ` ORDER BY make, model`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// SetFlags updates the availability flags for a vehicle.
func (s *PostgresStore) SetFlags(ctx context.Context, id string, pendingBooking, available bool) error {
	query := `
		UPDATE vehicles
		SET pending_booking = $2, available = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, pendingBooking, available, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	err := row.Scan(
		&v.ID, &v.Make, &v.Model, &v.Year, &v.Plate,
		&v.WeeklyRateCents, &v.Available, &v.PendingBooking,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
