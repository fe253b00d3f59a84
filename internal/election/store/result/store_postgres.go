package result

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	txcontext "comitia/pkg/platform/tx"
)

// Postgres stores tabulated results with a unique row per
// (election, position, candidacy).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// ReplaceForElection deletes and re-inserts the election's result set.
// Tabulation is a full recompute, so partial updates never happen.
func (s *Postgres) ReplaceForElection(ctx context.Context, electionID id.ElectionID, results []models.Result) error {
	q := s.querier(ctx)

	if _, err := q.ExecContext(ctx,
		`DELETE FROM election_results WHERE election_id = $1`, uuid.UUID(electionID),
	); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	for _, r := range results {
		_, err := q.ExecContext(ctx, `
			INSERT INTO election_results (
				election_id, position_id, candidacy_id,
				total_votes, vote_percentage, rank, winner,
				calculated_at, published_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.UUID(r.ElectionID), uuid.UUID(r.PositionID), uuid.UUID(r.CandidacyID),
			r.TotalVotes, r.VotePercentage, r.Rank, r.Winner,
			r.CalculatedAt, nullTime(r.PublishedAt),
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return nil
}

func (s *Postgres) ListByElection(ctx context.Context, electionID id.ElectionID) ([]models.Result, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT election_id, position_id, candidacy_id,
		       total_votes, vote_percentage, rank, winner,
		       calculated_at, published_at
		FROM election_results
		WHERE election_id = $1
		ORDER BY position_id, rank
	`, uuid.UUID(electionID))
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []models.Result
	for rows.Next() {
		var (
			r           models.Result
			rawElection uuid.UUID
			rawPosition uuid.UUID
			rawCand     uuid.UUID
			publishedAt sql.NullTime
		)
		if err := rows.Scan(
			&rawElection, &rawPosition, &rawCand,
			&r.TotalVotes, &r.VotePercentage, &r.Rank, &r.Winner,
			&r.CalculatedAt, &publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.ElectionID = id.ElectionID(rawElection)
		r.PositionID = id.PositionID(rawPosition)
		r.CandidacyID = id.CandidacyID(rawCand)
		if publishedAt.Valid {
			r.PublishedAt = publishedAt.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return out, nil
}

func (s *Postgres) MarkPublished(ctx context.Context, electionID id.ElectionID, publishedAt time.Time) error {
	res, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE election_results SET published_at = $2 WHERE election_id = $1`,
		uuid.UUID(electionID), publishedAt,
	)
	if err != nil {
		return fmt.Errorf("mark results published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark results published rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
