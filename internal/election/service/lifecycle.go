package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/requestcontext"
)

// PositionSpec describes one position to create with an election.
type PositionSpec struct {
	Title               string
	Description         string
	MaxVotesPerVoter    int
	AvailableSeats      int
	MinimumAge          int
	CitizenshipRequired bool
	DisplayOrder        int
}

// CreateElectionInput carries everything needed to create a draft election
// and its positions in one transaction.
type CreateElectionInput struct {
	Title                    string
	Description              string
	Type                     models.ElectionType
	Schedule                 models.Schedule
	MaxCandidatesPerPosition int
	RequireBiometricAuth     bool
	Positions                []PositionSpec
}

// CreateElection creates a draft election with its positions. Commission
// only; the strict schedule ordering is enforced before anything is
// written.
func (s *Service) CreateElection(ctx context.Context, in CreateElectionInput) (*models.Election, error) {
	ctx, span := s.tracer.Start(ctx, "election.CreateElection")
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "create elections")
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	election, err := models.NewElection(id.NewElectionID(), in.Title, in.Description, in.Type,
		in.Schedule, in.MaxCandidatesPerPosition, in.RequireBiometricAuth, commissioner.ID, now)
	if err != nil {
		return nil, err
	}

	positions := make([]*models.Position, 0, len(in.Positions))
	for _, spec := range in.Positions {
		p, err := models.NewPosition(id.NewPositionID(), election.ID, spec.Title, spec.Description,
			spec.MaxVotesPerVoter, spec.AvailableSeats, spec.MinimumAge, spec.DisplayOrder,
			spec.CitizenshipRequired, now)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.elections.Create(ctx, election); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create election")
		}
		for _, p := range positions {
			if err := s.elections.CreatePosition(ctx, p); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConflict, "create position")
			}
		}
		return s.emit(ctx, audit.Event{
			Action:      audit.ActionElectionCreated,
			Description: fmt.Sprintf("election %q created with %d positions", election.Title, len(positions)),
			ActorID:     commissioner.ID,
			ElectionID:  election.ID,
			Metadata: map[string]string{
				"type":   string(election.Type),
				"status": string(election.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncElectionsCreated()
	}
	s.logger.InfoContext(ctx, "election created",
		"election_id", election.ID, "title", election.Title, "commissioner_id", commissioner.ID)
	return election, nil
}

// UpdateElectionStatus performs an administrative lifecycle move. Voting
// start and end get their own audit actions.
func (s *Service) UpdateElectionStatus(ctx context.Context, electionID id.ElectionID, to models.ElectionStatus) (*models.Election, error) {
	ctx, span := s.tracer.Start(ctx, "election.UpdateElectionStatus",
		trace.WithAttributes(
			attribute.String("election_id", electionID.String()),
			attribute.String("to", string(to)),
		))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "update election status")
	if err != nil {
		return nil, err
	}

	var election *models.Election
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		election, err = s.loadElection(ctx, electionID)
		if err != nil {
			return err
		}
		from := election.Status
		if err := election.CanTransition(to); err != nil {
			return err
		}
		election.ApplyTransition(to, requestcontext.Now(ctx))
		if err := s.elections.Update(ctx, election); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update election")
		}

		action := audit.ActionElectionUpdated
		switch to {
		case models.StatusActive:
			action = audit.ActionVotingStarted
		case models.StatusCompleted:
			action = audit.ActionVotingEnded
		}
		return s.emit(ctx, audit.Event{
			Action:      action,
			Description: fmt.Sprintf("election %q moved from %s to %s", election.Title, from, to),
			ActorID:     commissioner.ID,
			ElectionID:  election.ID,
			Metadata:    map[string]string{"from": string(from), "to": string(to)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "election status updated",
		"election_id", electionID, "status", to, "commissioner_id", commissioner.ID)
	return election, nil
}

// GetElection returns an election by ID.
func (s *Service) GetElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	return s.loadElection(ctx, electionID)
}

// ListElections returns all elections.
func (s *Service) ListElections(ctx context.Context) ([]models.Election, error) {
	elections, err := s.elections.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list elections")
	}
	return elections, nil
}
