package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"comitia/internal/election/models"
	identitymodels "comitia/internal/identity/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// Ineligibility reason strings. These are user-facing and fixed; clients
// match on them.
const (
	ReasonNotRegisteredVoter = "User is not registered as a voter"
	ReasonAccountNotApproved = "User account is not approved"
	ReasonBiometricRequired  = "Biometric registration required"
	ReasonVotingClosed       = "Voting is not currently open"
)

// Eligibility is the full verdict for one user and one election.
type Eligibility struct {
	UserID     id.UserID
	ElectionID id.ElectionID
	Eligible   bool
	Reasons    []string
}

// CheckEligibility evaluates every voting precondition and reports all
// failures, never stopping at the first. A citizen checking a closed
// biometric election gets all three applicable reasons at once. The user
// and election load in parallel.
func (s *Service) CheckEligibility(ctx context.Context, userID id.UserID, electionID id.ElectionID) (*Eligibility, error) {
	ctx, span := s.tracer.Start(ctx, "election.CheckEligibility",
		trace.WithAttributes(
			attribute.String("user_id", userID.String()),
			attribute.String("election_id", electionID.String()),
		))
	defer span.End()

	var (
		user     *identitymodels.User
		election *models.Election
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.FindByID(gctx, userID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load user")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		election, err = s.loadElection(gctx, electionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdict := &Eligibility{UserID: userID, ElectionID: electionID}

	// CanVote is the composite gate (voting role AND approved), so an
	// unapproved voter collects this reason and the verification one.
	if !user.CanVote() {
		verdict.Reasons = append(verdict.Reasons, ReasonNotRegisteredVoter)
	}
	if user.VerificationStatus != identitymodels.VerificationApproved {
		verdict.Reasons = append(verdict.Reasons, ReasonAccountNotApproved)
	}
	if election.RequireBiometricAuth && !user.BiometricRegistered {
		verdict.Reasons = append(verdict.Reasons, ReasonBiometricRequired)
	}
	if !election.VotingOpen(requestcontext.Now(ctx)) {
		verdict.Reasons = append(verdict.Reasons, ReasonVotingClosed)
	}

	verdict.Eligible = len(verdict.Reasons) == 0
	if s.metrics != nil {
		s.metrics.IncEligibilityChecks(verdict.Eligible)
	}
	return verdict, nil
}
