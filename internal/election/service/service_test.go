package service_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"comitia/internal/audit"
	auditmemory "comitia/internal/audit/store/memory"
	"comitia/internal/audit/publisher"
	electionmodels "comitia/internal/election/models"
	"comitia/internal/election/service"
	candidatestore "comitia/internal/election/store/candidate"
	electionstore "comitia/internal/election/store/election"
	resultstore "comitia/internal/election/store/result"
	identitymodels "comitia/internal/identity/models"
	userstore "comitia/internal/identity/store/user"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/tx"
	"comitia/pkg/requestcontext"
)

var (
	regStart    = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	regEnd      = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	votingStart = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	votingEnd   = time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
)

type ElectionSuite struct {
	suite.Suite

	users       *userstore.InMemory
	elections   *electionstore.InMemory
	candidacies *candidatestore.InMemory
	results     *resultstore.InMemory
	trail       *auditmemory.InMemoryStore
	svc         *service.Service

	commissioner *identitymodels.User
	nationalSeq  int
}

func TestElectionSuite(t *testing.T) {
	suite.Run(t, new(ElectionSuite))
}

func (s *ElectionSuite) SetupTest() {
	s.users = userstore.NewInMemory()
	s.elections = electionstore.NewInMemory()
	s.candidacies = candidatestore.NewInMemory()
	s.results = resultstore.NewInMemory()
	s.trail = auditmemory.NewInMemoryStore()
	s.nationalSeq = 0

	s.svc = service.New(s.elections, s.candidacies, s.results, s.users, tx.NewMemoryRunner(),
		service.WithAuditPublisher(publisher.New(s.trail)),
	)
	s.commissioner = s.createUser(identitymodels.RoleElectoralCommission)
}

func (s *ElectionSuite) createUser(role identitymodels.Role) *identitymodels.User {
	s.nationalSeq++
	u, err := identitymodels.NewUser(id.NewUserID(), "Kofi", "Addo", "kofi@example.com",
		"NID-"+time.Now().Format("150405")+"-"+string(rune('A'+s.nationalSeq%26))+string(rune('A'+(s.nationalSeq/26)%26)),
		time.Date(1985, 2, 1, 0, 0, 0, 0, time.UTC), regStart)
	s.Require().NoError(err)
	u.Role = role
	if role != identitymodels.RoleCitizen {
		u.VerificationStatus = identitymodels.VerificationApproved
	}
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *ElectionSuite) ctxAt(userID id.UserID, now time.Time) context.Context {
	ctx := requestcontext.WithActorID(context.Background(), userID)
	return requestcontext.WithTime(ctx, now)
}

func (s *ElectionSuite) createElection(positions int) *electionmodels.Election {
	specs := make([]service.PositionSpec, 0, positions)
	for i := 0; i < positions; i++ {
		specs = append(specs, service.PositionSpec{
			Title:            "Position " + string(rune('A'+i)),
			MaxVotesPerVoter: 1,
			AvailableSeats:   1,
			DisplayOrder:     i,
		})
	}
	e, err := s.svc.CreateElection(s.ctxAt(s.commissioner.ID, regStart), service.CreateElectionInput{
		Title: "General Election 2026",
		Type:  electionmodels.ElectionPresidential,
		Schedule: electionmodels.Schedule{
			RegistrationStart: regStart,
			RegistrationEnd:   regEnd,
			VotingStart:       votingStart,
			VotingEnd:         votingEnd,
		},
		MaxCandidatesPerPosition: 50,
		Positions:                specs,
	})
	s.Require().NoError(err)
	return e
}

func (s *ElectionSuite) firstPosition(electionID id.ElectionID) electionmodels.Position {
	positions, err := s.elections.ListActivePositions(context.Background(), electionID)
	s.Require().NoError(err)
	s.Require().NotEmpty(positions)
	return positions[0]
}

func (s *ElectionSuite) register(electionID id.ElectionID, positionID id.PositionID) *electionmodels.Candidacy {
	voter := s.createUser(identitymodels.RoleVoter)
	c, err := s.svc.RegisterCandidate(s.ctxAt(voter.ID, regStart.Add(time.Hour)), service.RegisterCandidateInput{
		ElectionID: electionID,
		PositionID: positionID,
		Campaign:   electionmodels.PartyCampaign{PoliticalParty: "Unity Party"},
	})
	s.Require().NoError(err)
	return c
}

func (s *ElectionSuite) TestCreateElectionRejectsBadSchedule() {
	_, err := s.svc.CreateElection(s.ctxAt(s.commissioner.ID, regStart), service.CreateElectionInput{
		Title: "Broken",
		Type:  electionmodels.ElectionLocal,
		Schedule: electionmodels.Schedule{
			RegistrationStart: regStart,
			RegistrationEnd:   votingStart.Add(time.Hour), // closes after voting opens
			VotingStart:       votingStart,
			VotingEnd:         votingEnd,
		},
		MaxCandidatesPerPosition: 10,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ElectionSuite) TestCreateElectionRequiresCommission() {
	official := s.createUser(identitymodels.RoleVoterOfficial)

	_, err := s.svc.CreateElection(s.ctxAt(official.ID, regStart), service.CreateElectionInput{
		Title: "Unauthorized",
		Type:  electionmodels.ElectionLocal,
		Schedule: electionmodels.Schedule{
			RegistrationStart: regStart, RegistrationEnd: regEnd,
			VotingStart: votingStart, VotingEnd: votingEnd,
		},
		MaxCandidatesPerPosition: 10,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	events, listErr := s.trail.ListAll(context.Background())
	s.Require().NoError(listErr)
	var denied bool
	for _, e := range events {
		if e.Action == audit.ActionAuthorizationDenied {
			denied = true
		}
	}
	s.True(denied)
}

func (s *ElectionSuite) TestRegisterCandidateOutsideWindowConflicts() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	voter := s.createUser(identitymodels.RoleVoter)

	_, err := s.svc.RegisterCandidate(s.ctxAt(voter.ID, regEnd.Add(time.Hour)), service.RegisterCandidateInput{
		ElectionID: e.ID,
		PositionID: p.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ElectionSuite) TestRegisterCandidateDuplicateConflicts() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	voter := s.createUser(identitymodels.RoleVoter)
	ctx := s.ctxAt(voter.ID, regStart.Add(time.Hour))

	_, err := s.svc.RegisterCandidate(ctx, service.RegisterCandidateInput{ElectionID: e.ID, PositionID: p.ID})
	s.Require().NoError(err)

	_, err = s.svc.RegisterCandidate(ctx, service.RegisterCandidateInput{ElectionID: e.ID, PositionID: p.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ElectionSuite) TestRegisterCandidateOfficialForbidden() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	official := s.createUser(identitymodels.RoleVoterOfficial)

	_, err := s.svc.RegisterCandidate(s.ctxAt(official.ID, regStart.Add(time.Hour)), service.RegisterCandidateInput{
		ElectionID: e.ID,
		PositionID: p.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// End-to-end candidacy path: register, approve (ballot 1), second
// candidate approves to ballot 2.
func (s *ElectionSuite) TestApproveAssignsSequentialBallotNumbers() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	first := s.register(e.ID, p.ID)
	second := s.register(e.ID, p.ID)

	approvedFirst, err := s.svc.ApproveCandidate(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(1, approvedFirst.BallotNumber)

	approvedSecond, err := s.svc.ApproveCandidate(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(2, approvedSecond.BallotNumber)
}

// Approving the same candidacy again fails and changes nothing.
func (s *ElectionSuite) TestApproveIdempotence() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	c := s.register(e.ID, p.ID)
	approved, err := s.svc.ApproveCandidate(ctx, c.ID)
	s.Require().NoError(err)

	_, err = s.svc.ApproveCandidate(ctx, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	stored, err := s.candidacies.FindByID(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(approved.BallotNumber, stored.BallotNumber)
	s.Equal(electionmodels.CandidacyApproved, stored.Status)
}

// N concurrent approvals of distinct candidacies for the same position must
// produce unique, gapless ballot numbers 1..N.
func (s *ElectionSuite) TestConcurrentApprovalsYieldGaplessBallots() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)

	const n = 12
	ids := make([]id.CandidacyID, n)
	for i := 0; i < n; i++ {
		ids[i] = s.register(e.ID, p.ID).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.ApproveCandidate(s.ctxAt(s.commissioner.ID, regStart.Add(3*time.Hour)), ids[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}

	var ballots []int
	for _, cid := range ids {
		c, err := s.candidacies.FindByID(context.Background(), cid)
		s.Require().NoError(err)
		ballots = append(ballots, c.BallotNumber)
	}
	sort.Ints(ballots)
	for i, b := range ballots {
		s.Equal(i+1, b)
	}
}

func (s *ElectionSuite) TestWithdrawLeavesBallot() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	c := s.register(e.ID, p.ID)
	approved, err := s.svc.ApproveCandidate(ctx, c.ID)
	s.Require().NoError(err)

	err = s.svc.WithdrawCandidate(s.ctxAt(c.UserID, regStart.Add(3*time.Hour)), c.ID)
	s.Require().NoError(err)

	stored, err := s.candidacies.FindByID(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(electionmodels.CandidacyWithdrawn, stored.Status)
	s.Equal(approved.BallotNumber, stored.BallotNumber, "ballot number kept for the record")

	onBallot, err := s.candidacies.ListApprovedByPosition(context.Background(), e.ID, p.ID)
	s.Require().NoError(err)
	s.Empty(onBallot)
}

// A withdrawn candidacy keeps its ballot number, so the next approval must
// take the number after it rather than reuse it.
func (s *ElectionSuite) TestApproveAfterWithdrawalSkipsRetainedNumber() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	first := s.register(e.ID, p.ID)
	second := s.register(e.ID, p.ID)
	third := s.register(e.ID, p.ID)

	_, err := s.svc.ApproveCandidate(ctx, first.ID)
	s.Require().NoError(err)
	approvedSecond, err := s.svc.ApproveCandidate(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(2, approvedSecond.BallotNumber)

	err = s.svc.WithdrawCandidate(s.ctxAt(second.UserID, regStart.Add(3*time.Hour)), second.ID)
	s.Require().NoError(err)

	approvedThird, err := s.svc.ApproveCandidate(ctx, third.ID)
	s.Require().NoError(err)
	s.Equal(3, approvedThird.BallotNumber, "withdrawn number 2 is retained, never reassigned")
}

func (s *ElectionSuite) TestGetBallotRequiresVotingOpen() {
	e := s.createElection(2)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(time.Hour))

	_, err := s.svc.GetBallot(ctx, e.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	ballot, err := s.svc.GetBallot(s.ctxAt(s.commissioner.ID, votingStart.Add(time.Hour)), e.ID)
	s.Require().NoError(err)
	s.Len(ballot.Positions, 2)
}

// A citizen without biometrics checking a closed biometric election must
// get all three applicable reasons plus the voting-closed reason.
func (s *ElectionSuite) TestEligibilityAccumulatesAllReasons() {
	specs := []service.PositionSpec{{Title: "President", MaxVotesPerVoter: 1, AvailableSeats: 1}}
	e, err := s.svc.CreateElection(s.ctxAt(s.commissioner.ID, regStart), service.CreateElectionInput{
		Title: "Biometric Election",
		Type:  electionmodels.ElectionPresidential,
		Schedule: electionmodels.Schedule{
			RegistrationStart: regStart, RegistrationEnd: regEnd,
			VotingStart: votingStart, VotingEnd: votingEnd,
		},
		MaxCandidatesPerPosition: 10,
		RequireBiometricAuth:     true,
		Positions:                specs,
	})
	s.Require().NoError(err)

	citizen := s.createUser(identitymodels.RoleCitizen)

	verdict, err := s.svc.CheckEligibility(s.ctxAt(citizen.ID, regStart), citizen.ID, e.ID)
	s.Require().NoError(err)
	s.False(verdict.Eligible)
	s.Equal([]string{
		service.ReasonNotRegisteredVoter,
		service.ReasonAccountNotApproved,
		service.ReasonBiometricRequired,
		service.ReasonVotingClosed,
	}, verdict.Reasons)
}

// A voter whose verification is still pending fails both the composite
// registered-voter check and the approval check, and must see both
// reasons, not just one.
func (s *ElectionSuite) TestEligibilityUnapprovedVoterGetsBothReasons() {
	e := s.createElection(1)
	ctx := s.ctxAt(s.commissioner.ID, regStart)
	_, err := s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	voter := s.createUser(identitymodels.RoleVoter)
	voter.VerificationStatus = identitymodels.VerificationPending
	s.Require().NoError(s.users.Update(context.Background(), voter))

	verdict, err := s.svc.CheckEligibility(s.ctxAt(voter.ID, votingStart.Add(time.Hour)), voter.ID, e.ID)
	s.Require().NoError(err)
	s.False(verdict.Eligible)
	s.Equal([]string{
		service.ReasonNotRegisteredVoter,
		service.ReasonAccountNotApproved,
	}, verdict.Reasons)
}

func (s *ElectionSuite) TestEligibilityAllClear() {
	e := s.createElection(1)
	ctx := s.ctxAt(s.commissioner.ID, regStart)
	_, err := s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	voter := s.createUser(identitymodels.RoleVoter)

	verdict, err := s.svc.CheckEligibility(s.ctxAt(voter.ID, votingStart.Add(time.Hour)), voter.ID, e.ID)
	s.Require().NoError(err)
	s.True(verdict.Eligible)
	s.Empty(verdict.Reasons)
}

func (s *ElectionSuite) TestTabulateAndPublish() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	winner := s.register(e.ID, p.ID)
	runnerUp := s.register(e.ID, p.ID)
	for _, c := range []*electionmodels.Candidacy{winner, runnerUp} {
		_, err := s.svc.ApproveCandidate(ctx, c.ID)
		s.Require().NoError(err)
	}

	// Simulate tallied votes.
	for cid, votes := range map[id.CandidacyID]int{winner.ID: 70, runnerUp.ID: 30} {
		c, err := s.candidacies.FindByID(context.Background(), cid)
		s.Require().NoError(err)
		c.VotesReceived = votes
		s.Require().NoError(s.candidacies.Update(context.Background(), c))
	}

	_, err := s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	pubCtx := s.ctxAt(s.commissioner.ID, votingEnd.Add(time.Hour))
	results, err := s.svc.TabulateResults(pubCtx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Equal(1, results[0].Rank)
	s.True(results[0].Winner)
	s.Equal(winner.ID, results[0].CandidacyID)
	s.InDelta(70.0, results[0].VotePercentage, 0.001)
	s.False(results[1].Winner)

	published, err := s.svc.PublishResults(pubCtx, e.ID)
	s.Require().NoError(err)
	s.Equal(electionmodels.StatusCompleted, published.Status)
	s.True(published.ResultsPublished)

	got, err := s.svc.GetResults(pubCtx, e.ID)
	s.Require().NoError(err)
	s.Len(got, 2)
	s.False(got[0].PublishedAt.IsZero())
}

// Publishing twice must fail with a conflict on the second call.
func (s *ElectionSuite) TestPublishTwiceConflicts() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	c := s.register(e.ID, p.ID)
	_, err := s.svc.ApproveCandidate(ctx, c.ID)
	s.Require().NoError(err)

	_, err = s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	pubCtx := s.ctxAt(s.commissioner.ID, votingEnd.Add(time.Hour))
	_, err = s.svc.TabulateResults(pubCtx, e.ID)
	s.Require().NoError(err)
	_, err = s.svc.PublishResults(pubCtx, e.ID)
	s.Require().NoError(err)

	_, err = s.svc.PublishResults(pubCtx, e.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// After publication every candidate/result mutation is rejected.
func (s *ElectionSuite) TestPublicationFreezesCandidates() {
	e := s.createElection(1)
	p := s.firstPosition(e.ID)
	ctx := s.ctxAt(s.commissioner.ID, regStart.Add(2*time.Hour))

	approvedC := s.register(e.ID, p.ID)
	pending := s.register(e.ID, p.ID)
	_, err := s.svc.ApproveCandidate(ctx, approvedC.ID)
	s.Require().NoError(err)

	_, err = s.svc.UpdateElectionStatus(ctx, e.ID, electionmodels.StatusActive)
	s.Require().NoError(err)

	pubCtx := s.ctxAt(s.commissioner.ID, votingEnd.Add(time.Hour))
	_, err = s.svc.TabulateResults(pubCtx, e.ID)
	s.Require().NoError(err)
	_, err = s.svc.PublishResults(pubCtx, e.ID)
	s.Require().NoError(err)

	_, err = s.svc.ApproveCandidate(pubCtx, pending.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.TabulateResults(pubCtx, e.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
