package election

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

// Postgres stores elections and positions. Position titles carry a unique
// index per election.
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

const electionColumns = `
	id, title, description, type, status,
	registration_start, registration_end, voting_start, voting_end,
	max_candidates_per_position, require_biometric_auth, created_by,
	results_published, results_published_at,
	total_registered_voters, total_votes_cast, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, e *models.Election) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO elections (`+electionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		uuid.UUID(e.ID), e.Title, e.Description, string(e.Type), string(e.Status),
		e.RegistrationStart, e.RegistrationEnd, e.VotingStart, e.VotingEnd,
		e.MaxCandidatesPerPosition, e.RequireBiometricAuth, uuid.UUID(e.CreatedBy),
		e.ResultsPublished, nullTime(e.ResultsPublishedAt),
		e.TotalRegisteredVoters, e.TotalVotesCast, e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert election: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := scanElection(s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE id = $1`, uuid.UUID(electionID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan election: %w", err)
	}
	return e, nil
}

func (s *Postgres) Update(ctx context.Context, e *models.Election) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE elections SET
			title = $2, description = $3, status = $4,
			registration_start = $5, registration_end = $6,
			voting_start = $7, voting_end = $8,
			results_published = $9, results_published_at = $10,
			total_registered_voters = $11, total_votes_cast = $12, updated_at = $13
		WHERE id = $1
	`,
		uuid.UUID(e.ID), e.Title, e.Description, string(e.Status),
		e.RegistrationStart, e.RegistrationEnd, e.VotingStart, e.VotingEnd,
		e.ResultsPublished, nullTime(e.ResultsPublishedAt),
		e.TotalRegisteredVoters, e.TotalVotesCast, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update election: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update election rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]models.Election, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+electionColumns+` FROM elections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	defer rows.Close()

	var out []models.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan election: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*models.Election, error) {
	var (
		e           models.Election
		rawID       uuid.UUID
		createdBy   uuid.UUID
		typ         string
		status      string
		publishedAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &e.Title, &e.Description, &typ, &status,
		&e.RegistrationStart, &e.RegistrationEnd, &e.VotingStart, &e.VotingEnd,
		&e.MaxCandidatesPerPosition, &e.RequireBiometricAuth, &createdBy,
		&e.ResultsPublished, &publishedAt,
		&e.TotalRegisteredVoters, &e.TotalVotesCast, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ID = id.ElectionID(rawID)
	e.CreatedBy = id.UserID(createdBy)
	e.Type = models.ElectionType(typ)
	e.Status = models.ElectionStatus(status)
	if publishedAt.Valid {
		e.ResultsPublishedAt = publishedAt.Time
	}
	return &e, nil
}

func (s *Postgres) CreatePosition(ctx context.Context, p *models.Position) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO election_positions (
			id, election_id, title, description,
			max_votes_per_voter, available_seats, minimum_age,
			citizenship_required, display_order, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(p.ID), uuid.UUID(p.ElectionID), p.Title, p.Description,
		p.MaxVotesPerVoter, p.AvailableSeats, p.MinimumAge,
		p.CitizenshipRequired, p.DisplayOrder, p.Active, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (s *Postgres) FindPosition(ctx context.Context, positionID id.PositionID) (*models.Position, error) {
	p, err := scanPosition(s.querier(ctx).QueryRowContext(ctx, `
		SELECT id, election_id, title, description,
		       max_votes_per_voter, available_seats, minimum_age,
		       citizenship_required, display_order, active, created_at
		FROM election_positions WHERE id = $1
	`, uuid.UUID(positionID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListActivePositions(ctx context.Context, electionID id.ElectionID) ([]models.Position, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, election_id, title, description,
		       max_votes_per_voter, available_seats, minimum_age,
		       citizenship_required, display_order, active, created_at
		FROM election_positions
		WHERE election_id = $1 AND active
		ORDER BY display_order
	`, uuid.UUID(electionID))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return out, nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var (
		p           models.Position
		rawID       uuid.UUID
		rawElection uuid.UUID
	)
	err := row.Scan(
		&rawID, &rawElection, &p.Title, &p.Description,
		&p.MaxVotesPerVoter, &p.AvailableSeats, &p.MinimumAge,
		&p.CitizenshipRequired, &p.DisplayOrder, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = id.PositionID(rawID)
	p.ElectionID = id.ElectionID(rawElection)
	return &p, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
