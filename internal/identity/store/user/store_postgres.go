package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	txcontext "comitia/pkg/platform/tx"
)

// Postgres stores users in the users table. Mutations pick up a
// transaction from context when the service opened one.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *Postgres) Create(ctx context.Context, u *models.User) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO users (
			id, first_name, last_name, email, national_id, date_of_birth,
			role, verification_status, biometric_registered, registered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(u.ID), u.FirstName, u.LastName, u.Email, u.NationalID,
		u.DateOfBirth, string(u.Role), string(u.VerificationStatus),
		u.BiometricRegistered, u.RegisteredAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.scanUser(s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, national_id, date_of_birth,
		       role, verification_status, biometric_registered, registered_at, updated_at
		FROM users WHERE id = $1
	`, uuid.UUID(userID)))
}

func (s *Postgres) FindByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	return s.scanUser(s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, national_id, date_of_birth,
		       role, verification_status, biometric_registered, registered_at, updated_at
		FROM users WHERE upper(national_id) = upper($1)
	`, nationalID))
}

func (s *Postgres) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u        models.User
		rawID    uuid.UUID
		role     string
		verified string
	)
	err := row.Scan(
		&rawID, &u.FirstName, &u.LastName, &u.Email, &u.NationalID,
		&u.DateOfBirth, &role, &verified, &u.BiometricRegistered,
		&u.RegisteredAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(rawID)
	u.Role = models.Role(role)
	u.VerificationStatus = models.VerificationStatus(verified)
	return &u, nil
}

// Update persists role and verification changes. The national ID column is
// not part of the statement: it is immutable after registration.
func (s *Postgres) Update(ctx context.Context, u *models.User) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE users SET
			first_name = $2, last_name = $3, email = $4,
			role = $5, verification_status = $6,
			biometric_registered = $7, updated_at = $8
		WHERE id = $1
	`,
		uuid.UUID(u.ID), u.FirstName, u.LastName, u.Email,
		string(u.Role), string(u.VerificationStatus),
		u.BiometricRegistered, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CountByRole(ctx context.Context, role models.Role) (int, error) {
	var count int
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE role = $1`, string(role),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return count, nil
}
