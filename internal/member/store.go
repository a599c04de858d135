package member

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentalplatform/internal/common/database"
)

// Store persists members.
type Store interface {
	Get(ctx context.Context, email string) (*Member, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Member, error)
	Ensure(ctx context.Context, email, name, phone string) (*Member, error)
	LinkCard(ctx context.Context, email, customerID, paymentMethodID string) error
	UnlinkCard(ctx context.Context, email string) error
	SetWaiver(ctx context.Context, email string, granted bool, grantedBy string) error
	AcceptTerms(ctx context.Context, email, version string) error
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const memberColumns = `email, name, phone, processor_customer_id, default_payment_method_id,
	card_on_file, removal_waiver, waiver_granted_by, waiver_granted_at,
	terms_version, terms_accepted_at, created_at, updated_at`

// Get retrieves a member by email.
func (s *PostgresStore) Get(ctx context.Context, email string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email = $1`
	return scanMember(s.pool.QueryRow(ctx, query, email))
}

// GetByCustomerID retrieves a member by processor customer ID.
func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE processor_customer_id = $1`
	return scanMember(s.pool.QueryRow(ctx, query, customerID))
}

// Ensure creates the member row if it does not exist and returns it. Name and
// phone are filled in only when the row is first created.
func (s *PostgresStore) Ensure(ctx context.Context, email, name, phone string) (*Member, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO members (email, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (email) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, email, name, phone, now); err != nil {
		return nil, err
	}
	return s.Get(ctx, email)
}

// LinkCard records the processor customer and default payment method after a
// completed setup session. Last completed session wins.
func (s *PostgresStore) LinkCard(ctx context.Context, email, customerID, paymentMethodID string) error {
	query := `
		UPDATE members
		SET processor_customer_id = $2,
		    default_payment_method_id = $3,
		    card_on_file = TRUE,
		    updated_at = $4
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, query, email, customerID, paymentMethodID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// UnlinkCard removes the saved card and consumes any removal waiver.
func (s *PostgresStore) UnlinkCard(ctx context.Context, email string) error {
	query := `
		UPDATE members
		SET default_payment_method_id = '',
		    card_on_file = FALSE,
		    removal_waiver = FALSE,
		    updated_at = $2
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, query, email, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetWaiver grants or revokes the card-removal waiver.
func (s *PostgresStore) SetWaiver(ctx context.Context, email string, granted bool, grantedBy string) error {
	query := `
		UPDATE members
		SET removal_waiver = $2,
		    waiver_granted_by = $3,
		    waiver_granted_at = $4,
		    updated_at = $5
		WHERE email = $1
	`
	now := time.Now().UTC()
	var grantedAt *time.Time
	by := ""
	if granted {
		grantedAt = &now
		by = grantedBy
	}
	tag, err := s.pool.Exec(ctx, query, email, granted, by, grantedAt, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// AcceptTerms records agreement to a rental terms version.
func (s *PostgresStore) AcceptTerms(ctx context.Context, email, version string) error {
	query := `
		UPDATE members
		SET terms_version = $2,
		    terms_accepted_at = $3,
		    updated_at = $3
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, query, email, version, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.Email, &m.Name, &m.Phone, &m.ProcessorCustomerID, &m.DefaultPaymentMethodID,
		&m.CardOnFile, &m.RemovalWaiver, &m.WaiverGrantedBy, &m.WaiverGrantedAt,
		&m.TermsVersion, &m.TermsAcceptedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
