package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// TabulateResults recomputes the full result set for an election: per
// position, approved candidates ordered by votes, percentage against the
// position total, 1-based rank, winner flag for the top AvailableSeats.
// Re-running before publication overwrites; after publication it is
// rejected.
func (s *Service) TabulateResults(ctx context.Context, electionID id.ElectionID) ([]models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "election.TabulateResults",
		trace.WithAttributes(attribute.String("election_id", electionID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "tabulate results")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var results []models.Result
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		election, err := s.loadElection(ctx, electionID)
		if err != nil {
			return err
		}
		if err := election.Mutable(); err != nil {
			return err
		}

		positions, err := s.elections.ListActivePositions(ctx, electionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "list positions")
		}

		now := requestcontext.Now(ctx)
		results = results[:0]
		for _, p := range positions {
			candidates, err := s.candidacies.ListApprovedByPosition(ctx, electionID, p.ID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "list approved candidacies")
			}
			results = append(results, tabulatePosition(p, candidates, now)...)
		}

		if err := s.results.ReplaceForElection(ctx, electionID, results); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store results")
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionResultsCalculated,
			Description: fmt.Sprintf("results tabulated for %q across %d positions", election.Title, len(positions)),
			ActorID:     commissioner.ID,
			ElectionID:  electionID,
			Metadata:    map[string]string{"result_rows": fmt.Sprint(len(results))},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveTabulation(time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "results tabulated",
		"election_id", electionID, "rows", len(results), "commissioner_id", commissioner.ID)
	return results, nil
}

// tabulatePosition orders one position's candidates by votes descending
// (ballot number breaks ties for determinism) and assigns ranks and winner
// flags.
func tabulatePosition(p models.Position, candidates []models.Candidacy, now time.Time) []models.Result {
	sorted := append([]models.Candidacy{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].VotesReceived != sorted[j].VotesReceived {
			return sorted[i].VotesReceived > sorted[j].VotesReceived
		}
		return sorted[i].BallotNumber < sorted[j].BallotNumber
	})

	total := 0
	for _, c := range sorted {
		total += c.VotesReceived
	}

	out := make([]models.Result, 0, len(sorted))
	for i, c := range sorted {
		pct := 0.0
		if total > 0 {
			pct = float64(c.VotesReceived) / float64(total) * 100
		}
		out = append(out, models.Result{
			ElectionID:     c.ElectionID,
			PositionID:     p.ID,
			CandidacyID:    c.ID,
			TotalVotes:     c.VotesReceived,
			VotePercentage: pct,
			Rank:           i + 1,
			Winner:         i < p.AvailableSeats,
			CalculatedAt:   now,
		})
	}
	return out
}

// PublishResults completes the election and freezes it: status=completed,
// ResultsPublished set, every result row stamped, all in one transaction
// with the audit entry. A second call fails with a conflict and changes
// nothing.
func (s *Service) PublishResults(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	ctx, span := s.tracer.Start(ctx, "election.PublishResults",
		trace.WithAttributes(attribute.String("election_id", electionID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "publish results")
	if err != nil {
		return nil, err
	}

	var (
		election *models.Election
		results  []models.Result
	)
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		election, err = s.loadElection(ctx, electionID)
		if err != nil {
			return err
		}
		if err := election.CanPublishResults(); err != nil {
			return err
		}

		results, err = s.results.ListByElection(ctx, electionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvariantViolation, "results must be tabulated before publication")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load results")
		}

		now := requestcontext.Now(ctx)
		election.ApplyPublish(now)
		if err := s.elections.Update(ctx, election); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update election")
		}
		if err := s.results.MarkPublished(ctx, electionID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mark results published")
		}
		for i := range results {
			results[i].PublishedAt = now
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionResultsPublished,
			Description: fmt.Sprintf("results published for %q", election.Title),
			ActorID:     commissioner.ID,
			ElectionID:  electionID,
			Metadata:    map[string]string{"result_rows": fmt.Sprint(len(results))},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetResults(ctx, electionID, results); err != nil {
			s.logger.WarnContext(ctx, "results cache write failed", "election_id", electionID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.IncResultsPublished()
	}
	s.logger.InfoContext(ctx, "results published",
		"election_id", electionID, "commissioner_id", commissioner.ID)
	return election, nil
}

// GetResults returns an election's published results, served from the
// cache when warm. Unpublished results are visible only to the commission
// through TabulateResults.
func (s *Service) GetResults(ctx context.Context, electionID id.ElectionID) ([]models.Result, error) {
	election, err := s.loadElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !election.ResultsPublished {
		return nil, dErrors.New(dErrors.CodeNotFound, "results are not published")
	}

	if s.cache != nil {
		cached, err := s.cache.GetResults(ctx, electionID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "results cache read failed", "election_id", electionID, "error", err)
		}
	}

	results, err := s.results.ListByElection(ctx, electionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "results are not published")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load results")
	}
	return results, nil
}
