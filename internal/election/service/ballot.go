package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// GetBallot returns the ballot for an election with voting open: active
// positions in display order, approved candidates in ballot order. Served
// from the Redis cache when warm; a cold or failing cache degrades to the
// store.
func (s *Service) GetBallot(ctx context.Context, electionID id.ElectionID) (*models.Ballot, error) {
	ctx, span := s.tracer.Start(ctx, "election.GetBallot",
		trace.WithAttributes(attribute.String("election_id", electionID.String())))
	defer span.End()

	election, err := s.loadElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if !election.VotingOpen(now) {
		return nil, dErrors.New(dErrors.CodeConflict, "voting is not currently open")
	}

	if s.cache != nil {
		cached, err := s.cache.GetBallot(ctx, electionID)
		if err == nil {
			if s.metrics != nil {
				s.metrics.IncBallotCache("hit")
			}
			return cached, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "ballot cache read failed", "election_id", electionID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.IncBallotCache("miss")
		}
	}

	ballot, err := s.buildBallot(ctx, election, now)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBallot(ctx, ballot); err != nil {
			s.logger.WarnContext(ctx, "ballot cache write failed", "election_id", electionID, "error", err)
		}
	}
	return ballot, nil
}

func (s *Service) buildBallot(ctx context.Context, election *models.Election, now time.Time) (*models.Ballot, error) {
	positions, err := s.elections.ListActivePositions(ctx, election.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list positions")
	}

	ballot := &models.Ballot{
		ElectionID:  election.ID,
		Title:       election.Title,
		GeneratedAt: now,
		Positions:   make([]models.BallotPosition, 0, len(positions)),
	}
	for _, p := range positions {
		candidates, err := s.candidacies.ListApprovedByPosition(ctx, election.ID, p.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list approved candidacies")
		}
		ballot.Positions = append(ballot.Positions, models.BallotPosition{
			Position:   p,
			Candidates: candidates,
		})
	}
	return ballot, nil
}
