package profile

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

// Postgres stores voter and candidate profiles. Both credential columns
// carry unique indexes, so a generated credential that collides surfaces as
// ErrConflict and the service retries with a fresh one.
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

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *Postgres) CreateVoterProfile(ctx context.Context, p *models.VoterProfile) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO voter_profiles (
			user_id, voter_id, polling_station, constituency, completed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(p.UserID), p.VoterID, p.PollingStation, p.Constituency,
		uuid.UUID(p.CompletedBy), p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert voter profile: %w", err)
	}
	return nil
}

func (s *Postgres) FindVoterProfile(ctx context.Context, userID id.UserID) (*models.VoterProfile, error) {
	var (
		p           models.VoterProfile
		rawUser     uuid.UUID
		completedBy uuid.UUID
	)
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT user_id, voter_id, polling_station, constituency, completed_by, created_at
		FROM voter_profiles WHERE user_id = $1
	`, uuid.UUID(userID)).Scan(
		&rawUser, &p.VoterID, &p.PollingStation, &p.Constituency, &completedBy, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voter profile: %w", err)
	}
	p.UserID = id.UserID(rawUser)
	p.CompletedBy = id.UserID(completedBy)
	return &p, nil
}

// CreateCandidateProfile inserts a pending profile. A previous rejected or
// disqualified profile for the same user is replaced; a live one conflicts,
// as does a credential collision with another user.
func (s *Postgres) CreateCandidateProfile(ctx context.Context, p *models.CandidateProfile) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO candidate_profiles (
			user_id, candidate_id, political_party, campaign_slogan, manifesto,
			status, applied_at, approved_by, approved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			candidate_id = EXCLUDED.candidate_id,
			political_party = EXCLUDED.political_party,
			campaign_slogan = EXCLUDED.campaign_slogan,
			manifesto = EXCLUDED.manifesto,
			status = EXCLUDED.status,
			applied_at = EXCLUDED.applied_at,
			approved_by = NULL,
			approved_at = NULL
		WHERE candidate_profiles.status IN ('rejected', 'disqualified')
	`,
		uuid.UUID(p.UserID), p.CandidateID,
		p.Party.PoliticalParty, p.Party.CampaignSlogan, p.Party.Manifesto,
		string(p.Status), p.AppliedAt, nilIfZero(p.ApprovedBy), nullTime(p.ApprovedAt),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert candidate profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert candidate profile rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) FindCandidateProfile(ctx context.Context, userID id.UserID) (*models.CandidateProfile, error) {
	var (
		p          models.CandidateProfile
		rawUser    uuid.UUID
		status     string
		approvedBy uuid.NullUUID
		approvedAt sql.NullTime
	)
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT user_id, candidate_id, political_party, campaign_slogan, manifesto,
		       status, applied_at, approved_by, approved_at
		FROM candidate_profiles WHERE user_id = $1
	`, uuid.UUID(userID)).Scan(
		&rawUser, &p.CandidateID,
		&p.Party.PoliticalParty, &p.Party.CampaignSlogan, &p.Party.Manifesto,
		&status, &p.AppliedAt, &approvedBy, &approvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidate profile: %w", err)
	}
	p.UserID = id.UserID(rawUser)
	p.Status = models.CandidateProfileStatus(status)
	if approvedBy.Valid {
		p.ApprovedBy = id.UserID(approvedBy.UUID)
	}
	if approvedAt.Valid {
		p.ApprovedAt = approvedAt.Time
	}
	return &p, nil
}

func (s *Postgres) UpdateCandidateProfile(ctx context.Context, p *models.CandidateProfile) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE candidate_profiles SET
			status = $2, approved_by = $3, approved_at = $4
		WHERE user_id = $1
	`,
		uuid.UUID(p.UserID), string(p.Status),
		nilIfZero(p.ApprovedBy), nullTime(p.ApprovedAt),
	)
	if err != nil {
		return fmt.Errorf("update candidate profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update candidate profile rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
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
