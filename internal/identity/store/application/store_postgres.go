package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	txcontext "comitia/pkg/platform/tx"
)

// Postgres stores role applications. The role_applications table carries a
// partial unique index on (user_id, type) over open statuses, so a second
// live application of the same type surfaces as a conflict while decided
// ones never block a reapply.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *Postgres) Create(ctx context.Context, a *models.RoleApplication) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO role_applications (
			id, user_id, type, status,
			political_party, campaign_slogan, manifesto,
			submitted_at, reviewed_by, reviewed_at, review_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(a.ID), uuid.UUID(a.UserID), string(a.Type), string(a.Status),
		a.Party.PoliticalParty, a.Party.CampaignSlogan, a.Party.Manifesto,
		a.SubmittedAt, nilIfZero(a.ReviewedBy), nullTime(a.ReviewedAt), a.ReviewNotes,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert role application: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, appID id.ApplicationID) (*models.RoleApplication, error) {
	return scanApplication(s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, type, status,
		       political_party, campaign_slogan, manifesto,
		       submitted_at, reviewed_by, reviewed_at, review_notes
		FROM role_applications WHERE id = $1
	`, uuid.UUID(appID)))
}

// FindOpenByUserAndType returns the user's live application of the given
// type, if any.
func (s *Postgres) FindOpenByUserAndType(ctx context.Context, userID id.UserID, appType models.ApplicationType) (*models.RoleApplication, error) {
	return scanApplication(s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, user_id, type, status,
		       political_party, campaign_slogan, manifesto,
		       submitted_at, reviewed_by, reviewed_at, review_notes
		FROM role_applications
		WHERE user_id = $1 AND type = $2 AND status NOT IN ('approved', 'rejected')
		ORDER BY submitted_at DESC
		LIMIT 1
	`, uuid.UUID(userID), string(appType)))
}

func (s *Postgres) Update(ctx context.Context, a *models.RoleApplication) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE role_applications SET
			status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5
		WHERE id = $1
	`,
		uuid.UUID(a.ID), string(a.Status),
		nilIfZero(a.ReviewedBy), nullTime(a.ReviewedAt), a.ReviewNotes,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update role application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role application rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.RoleApplication, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, user_id, type, status,
		       political_party, campaign_slogan, manifesto,
		       submitted_at, reviewed_by, reviewed_at, review_notes
		FROM role_applications
		WHERE status = $1
		ORDER BY submitted_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list role applications: %w", err)
	}
	defer rows.Close()

	var out []models.RoleApplication
	for rows.Next() {
		a, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list role applications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInto(row rowScanner) (*models.RoleApplication, error) {
	var (
		a          models.RoleApplication
		rawID      uuid.UUID
		rawUser    uuid.UUID
		typ        string
		status     string
		reviewedBy uuid.NullUUID
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawUser, &typ, &status,
		&a.Party.PoliticalParty, &a.Party.CampaignSlogan, &a.Party.Manifesto,
		&a.SubmittedAt, &reviewedBy, &reviewedAt, &a.ReviewNotes,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.ApplicationID(rawID)
	a.UserID = id.UserID(rawUser)
	a.Type = models.ApplicationType(typ)
	a.Status = models.ApplicationStatus(status)
	if reviewedBy.Valid {
		a.ReviewedBy = id.UserID(reviewedBy.UUID)
	}
	if reviewedAt.Valid {
		a.ReviewedAt = reviewedAt.Time
	}
	return &a, nil
}

func scanApplication(row *sql.Row) (*models.RoleApplication, error) {
	a, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan role application: %w", err)
	}
	return a, nil
}

func scanApplicationRows(rows *sql.Rows) (*models.RoleApplication, error) {
	a, err := scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("scan role application: %w", err)
	}
	return a, nil
}

func nilIfZero(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return uuid.UUID(userID)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
