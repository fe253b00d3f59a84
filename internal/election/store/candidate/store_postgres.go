package candidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	txcontext "comitia/pkg/platform/tx"
)

// Postgres stores candidacies. The election_candidates table carries a
// unique index on (election_id, position_id, user_id).
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

const candidacyColumns = `
	id, election_id, position_id, user_id, status, ballot_number,
	political_party, campaign_slogan, manifesto,
	registered_at, approved_by, approved_at, votes_received`

func (s *Postgres) Create(ctx context.Context, c *models.Candidacy) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO election_candidates (`+candidacyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(c.ID), uuid.UUID(c.ElectionID), uuid.UUID(c.PositionID), uuid.UUID(c.UserID),
		string(c.Status), nullInt(c.BallotNumber),
		c.Party.PoliticalParty, c.Party.CampaignSlogan, c.Party.Manifesto,
		c.RegisteredAt, nilIfZero(c.ApprovedBy), nullTime(c.ApprovedAt), c.VotesReceived,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert candidacy: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, candidacyID id.CandidacyID) (*models.Candidacy, error) {
	c, err := scanCandidacy(s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+candidacyColumns+` FROM election_candidates WHERE id = $1`, uuid.UUID(candidacyID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidacy: %w", err)
	}
	return c, nil
}

func (s *Postgres) Update(ctx context.Context, c *models.Candidacy) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE election_candidates SET
			status = $2, ballot_number = $3,
			approved_by = $4, approved_at = $5, votes_received = $6
		WHERE id = $1
	`,
		uuid.UUID(c.ID), string(c.Status), nullInt(c.BallotNumber),
		nilIfZero(c.ApprovedBy), nullTime(c.ApprovedAt), c.VotesReceived,
	)
	if err != nil {
		return fmt.Errorf("update candidacy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update candidacy rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// MaxAssignedBallotNumber locks the position row and returns the highest
// ballot number ever assigned, whatever the candidacy's current status.
// Withdrawn candidates keep their number, so counting only approved rows
// would hand the withdrawn number to the next approval. The FOR UPDATE
// serializes concurrent approvals of the same position so numbers come
// out gapless.
func (s *Postgres) MaxAssignedBallotNumber(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error) {
	q := s.querier(ctx)

	var locked uuid.UUID
	err := q.QueryRowContext(ctx,
		`SELECT id FROM election_positions WHERE id = $1 FOR UPDATE`, uuid.UUID(positionID),
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock position: %w", err)
	}

	var max sql.NullInt64
	err = q.QueryRowContext(ctx, `
		SELECT max(ballot_number) FROM election_candidates
		WHERE election_id = $1 AND position_id = $2 AND ballot_number IS NOT NULL
	`, uuid.UUID(electionID), uuid.UUID(positionID)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max ballot number: %w", err)
	}
	return int(max.Int64), nil
}

func (s *Postgres) CountApproved(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error) {
	var count int
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT count(*) FROM election_candidates
		WHERE election_id = $1 AND position_id = $2 AND status = 'approved'
	`, uuid.UUID(electionID), uuid.UUID(positionID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count approved candidacies: %w", err)
	}
	return count, nil
}

func (s *Postgres) ListApprovedByPosition(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) ([]models.Candidacy, error) {
	return s.list(ctx, `
		SELECT `+candidacyColumns+` FROM election_candidates
		WHERE election_id = $1 AND position_id = $2 AND status = 'approved'
		ORDER BY ballot_number
	`, uuid.UUID(electionID), uuid.UUID(positionID))
}

func (s *Postgres) ListByElection(ctx context.Context, electionID id.ElectionID) ([]models.Candidacy, error) {
	return s.list(ctx, `
		SELECT `+candidacyColumns+` FROM election_candidates
		WHERE election_id = $1
		ORDER BY registered_at
	`, uuid.UUID(electionID))
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]models.Candidacy, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidacies: %w", err)
	}
	defer rows.Close()

	var out []models.Candidacy
	for rows.Next() {
		c, err := scanCandidacy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidacy: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidacies: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidacy(row rowScanner) (*models.Candidacy, error) {
	var (
		c           models.Candidacy
		rawID       uuid.UUID
		rawElection uuid.UUID
		rawPosition uuid.UUID
		rawUser     uuid.UUID
		status      string
		ballot      sql.NullInt64
		approvedBy  uuid.NullUUID
		approvedAt  sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawElection, &rawPosition, &rawUser, &status, &ballot,
		&c.Party.PoliticalParty, &c.Party.CampaignSlogan, &c.Party.Manifesto,
		&c.RegisteredAt, &approvedBy, &approvedAt, &c.VotesReceived,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.CandidacyID(rawID)
	c.ElectionID = id.ElectionID(rawElection)
	c.PositionID = id.PositionID(rawPosition)
	c.UserID = id.UserID(rawUser)
	c.Status = models.CandidacyStatus(status)
	c.BallotNumber = int(ballot.Int64)
	if approvedBy.Valid {
		c.ApprovedBy = id.UserID(approvedBy.UUID)
	}
	if approvedAt.Valid {
		c.ApprovedAt = approvedAt.Time
	}
	return &c, nil
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
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
