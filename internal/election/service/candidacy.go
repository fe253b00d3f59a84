package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/election/models"
	identitymodels "comitia/internal/identity/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// RegisterCandidateInput carries a candidacy registration.
type RegisterCandidateInput struct {
	ElectionID id.ElectionID
	PositionID id.PositionID
	Campaign   models.PartyCampaign
}

// RegisterCandidate is the single entry point for standing in an election.
// The registration window must be open; citizens and voters (and existing
// candidates) may register; the role does not change here. One candidacy
// per (election, position, user).
func (s *Service) RegisterCandidate(ctx context.Context, in RegisterCandidateInput) (*models.Candidacy, error) {
	ctx, span := s.tracer.Start(ctx, "election.RegisterCandidate",
		trace.WithAttributes(attribute.String("election_id", in.ElectionID.String())))
	defer span.End()

	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var candidacy *models.Candidacy
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		election, err := s.loadElection(ctx, in.ElectionID)
		if err != nil {
			return err
		}
		if err := election.Mutable(); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if !election.RegistrationOpen(now) {
			return dErrors.New(dErrors.CodeConflict, "candidate registration is not open")
		}

		position, err := s.loadPosition(ctx, in.PositionID, in.ElectionID)
		if err != nil {
			return err
		}

		user, err := s.users.FindByID(ctx, actorID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load user")
		}
		switch user.Role {
		case identitymodels.RoleCitizen, identitymodels.RoleVoter, identitymodels.RoleCandidate:
		default:
			return dErrors.Newf(dErrors.CodeForbidden, "role %s may not stand for election", user.Role)
		}
		if err := position.MeetsAgeRequirement(user.AgeAt(now)); err != nil {
			return err
		}

		candidacy = models.NewCandidacy(id.NewCandidacyID(), in.ElectionID, in.PositionID, actorID, in.Campaign, now)
		if err := s.candidacies.Create(ctx, candidacy); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "already registered for this position")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create candidacy")
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionCandidateRegistered,
			Description: fmt.Sprintf("%s registered for %s", user.FullName(), position.Title),
			ActorID:     actorID,
			SubjectID:   actorID,
			ElectionID:  in.ElectionID,
			Metadata: map[string]string{
				"position": position.Title,
				"party":    in.Campaign.PoliticalParty,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "candidate registered",
		"election_id", in.ElectionID, "position_id", in.PositionID, "user_id", actorID)
	return candidacy, nil
}

// ApproveCandidate approves a candidacy and assigns the next ballot number
// for its position. The number is 1 + the highest approved number, read
// under the store's serialization guarantee so concurrent approvals come
// out unique and gapless. A second approval of the same candidacy sees the
// state check fail and changes nothing.
func (s *Service) ApproveCandidate(ctx context.Context, candidacyID id.CandidacyID) (*models.Candidacy, error) {
	ctx, span := s.tracer.Start(ctx, "election.ApproveCandidate",
		trace.WithAttributes(attribute.String("candidacy_id", candidacyID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "approve candidacies")
	if err != nil {
		return nil, err
	}

	var candidacy *models.Candidacy
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		candidacy, err = s.loadCandidacy(ctx, candidacyID)
		if err != nil {
			return err
		}
		election, err := s.loadElection(ctx, candidacy.ElectionID)
		if err != nil {
			return err
		}
		if err := election.Mutable(); err != nil {
			return err
		}
		if err := candidacy.CanApprove(); err != nil {
			return err
		}

		approved, err := s.candidacies.CountApproved(ctx, candidacy.ElectionID, candidacy.PositionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "count approved candidacies")
		}
		if approved >= election.MaxCandidatesPerPosition {
			return dErrors.Newf(dErrors.CodeConflict, "position already has %d approved candidates", approved)
		}

		maxBallot, err := s.candidacies.MaxAssignedBallotNumber(ctx, candidacy.ElectionID, candidacy.PositionID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "max ballot number")
		}

		now := requestcontext.Now(ctx)
		candidacy.ApplyApproval(maxBallot+1, commissioner.ID, now)
		if err := s.candidacies.Update(ctx, candidacy); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update candidacy")
		}

		user, err := s.users.FindByID(ctx, candidacy.UserID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load candidate")
		}
		if user.VerificationStatus != identitymodels.VerificationApproved {
			user.ApplyVerification(identitymodels.VerificationApproved, now)
			if err := s.users.Update(ctx, user); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update candidate")
			}
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionCandidateApproved,
			Description: fmt.Sprintf("%s approved with ballot number %d", user.FullName(), candidacy.BallotNumber),
			ActorID:     commissioner.ID,
			SubjectID:   candidacy.UserID,
			ElectionID:  candidacy.ElectionID,
			Metadata:    map[string]string{"ballot_number": fmt.Sprint(candidacy.BallotNumber)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateBallot(ctx, candidacy.ElectionID)
	if s.metrics != nil {
		s.metrics.IncCandidacyDecisions("approved")
	}
	s.logger.InfoContext(ctx, "candidate approved",
		"candidacy_id", candidacyID, "ballot_number", candidacy.BallotNumber, "commissioner_id", commissioner.ID)
	return candidacy, nil
}

// RejectCandidateInput carries the commission's rejection.
type RejectCandidateInput struct {
	CandidacyID id.CandidacyID
	Reason      string
}

// RejectCandidate closes a registered candidacy without a ballot number.
func (s *Service) RejectCandidate(ctx context.Context, in RejectCandidateInput) error {
	ctx, span := s.tracer.Start(ctx, "election.RejectCandidate",
		trace.WithAttributes(attribute.String("candidacy_id", in.CandidacyID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx, "reject candidacies")
	if err != nil {
		return err
	}

	var electionID id.ElectionID
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		candidacy, err := s.loadCandidacy(ctx, in.CandidacyID)
		if err != nil {
			return err
		}
		electionID = candidacy.ElectionID
		election, err := s.loadElection(ctx, candidacy.ElectionID)
		if err != nil {
			return err
		}
		if err := election.Mutable(); err != nil {
			return err
		}
		if err := candidacy.CanReject(); err != nil {
			return err
		}

		candidacy.ApplyRejection(commissioner.ID, requestcontext.Now(ctx))
		if err := s.candidacies.Update(ctx, candidacy); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update candidacy")
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionCandidateRejected,
			Description: "candidacy rejected",
			ActorID:     commissioner.ID,
			SubjectID:   candidacy.UserID,
			ElectionID:  candidacy.ElectionID,
			Metadata:    map[string]string{"reason": in.Reason},
		})
	})
	if err != nil {
		return err
	}

	s.invalidateBallot(ctx, electionID)
	if s.metrics != nil {
		s.metrics.IncCandidacyDecisions("rejected")
	}
	return nil
}

// WithdrawCandidate lets a candidate pull their own candidacy. The ballot
// number, if assigned, is kept for the record but the candidacy leaves the
// ballot.
func (s *Service) WithdrawCandidate(ctx context.Context, candidacyID id.CandidacyID) error {
	ctx, span := s.tracer.Start(ctx, "election.WithdrawCandidate",
		trace.WithAttributes(attribute.String("candidacy_id", candidacyID.String())))
	defer span.End()

	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var electionID id.ElectionID
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		candidacy, err := s.loadCandidacy(ctx, candidacyID)
		if err != nil {
			return err
		}
		if candidacy.UserID != actorID {
			return dErrors.New(dErrors.CodeForbidden, "candidates withdraw their own candidacies")
		}
		electionID = candidacy.ElectionID
		election, err := s.loadElection(ctx, candidacy.ElectionID)
		if err != nil {
			return err
		}
		if err := election.Mutable(); err != nil {
			return err
		}
		if err := candidacy.CanWithdraw(); err != nil {
			return err
		}

		candidacy.ApplyWithdrawal(requestcontext.Now(ctx))
		if err := s.candidacies.Update(ctx, candidacy); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update candidacy")
		}

		return s.emit(ctx, audit.Event{
			Action:      audit.ActionCandidateWithdrawn,
			Description: "candidacy withdrawn",
			ActorID:     actorID,
			SubjectID:   actorID,
			ElectionID:  candidacy.ElectionID,
		})
	})
	if err != nil {
		return err
	}

	s.invalidateBallot(ctx, electionID)
	if s.metrics != nil {
		s.metrics.IncCandidacyDecisions("withdrawn")
	}
	return nil
}

func (s *Service) loadCandidacy(ctx context.Context, candidacyID id.CandidacyID) (*models.Candidacy, error) {
	c, err := s.candidacies.FindByID(ctx, candidacyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "candidacy not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load candidacy")
	}
	return c, nil
}

func (s *Service) loadPosition(ctx context.Context, positionID id.PositionID, electionID id.ElectionID) (*models.Position, error) {
	p, err := s.elections.FindPosition(ctx, positionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "position not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load position")
	}
	if p.ElectionID != electionID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "position does not belong to the election")
	}
	if !p.Active {
		return nil, dErrors.New(dErrors.CodeConflict, "position is not active")
	}
	return p, nil
}

// invalidateBallot drops the cached ballot. Best effort: the cache is an
// accelerator and its TTL bounds any staleness.
func (s *Service) invalidateBallot(ctx context.Context, electionID id.ElectionID) {
	if s.cache == nil || electionID.IsNil() {
		return
	}
	if err := s.cache.InvalidateBallot(ctx, electionID); err != nil {
		s.logger.WarnContext(ctx, "ballot cache invalidation failed",
			"election_id", electionID, "error", err)
	}
}
