//go:build integration

package candidate_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	electionmodels "comitia/internal/election/models"
	"comitia/internal/election/store/candidate"
	electionstore "comitia/internal/election/store/election"
	identitymodels "comitia/internal/identity/models"
	userstore "comitia/internal/identity/store/user"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/platform/tx"
	"comitia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	users      *userstore.Postgres
	elections  *electionstore.Postgres
	candidates *candidate.Postgres
	runner     *tx.SQLRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.users = userstore.NewPostgres(s.postgres.DB)
	s.elections = electionstore.NewPostgres(s.postgres.DB)
	s.candidates = candidate.NewPostgres(s.postgres.DB)
	s.runner = tx.NewSQLRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"election_candidates", "election_positions", "elections", "users",
	)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedUser() *identitymodels.User {
	now := time.Now().UTC()
	u, err := identitymodels.NewUser(
		id.UserID(uuid.New()), "Test", "User", "user@example.com",
		"NID-"+uuid.NewString(), now.AddDate(-30, 0, 0), now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *PostgresStoreSuite) seedPosition() (*electionmodels.Election, *electionmodels.Position) {
	ctx := context.Background()
	now := time.Now().UTC()
	creator := s.seedUser()

	e, err := electionmodels.NewElection(
		id.ElectionID(uuid.New()), "General Election "+uuid.NewString(), "",
		electionmodels.ElectionParliamentary,
		electionmodels.Schedule{
			RegistrationStart: now.Add(-time.Hour),
			RegistrationEnd:   now.Add(time.Hour),
			VotingStart:       now.Add(2 * time.Hour),
			VotingEnd:         now.Add(3 * time.Hour),
		},
		20, false, creator.ID, now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.elections.Create(ctx, e))

	p, err := electionmodels.NewPosition(
		id.PositionID(uuid.New()), e.ID, "Member of Parliament", "",
		1, 1, 0, 0, true, now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.elections.CreatePosition(ctx, p))
	return e, p
}

func (s *PostgresStoreSuite) seedCandidacy(e *electionmodels.Election, p *electionmodels.Position) *electionmodels.Candidacy {
	u := s.seedUser()
	c := electionmodels.NewCandidacy(
		id.CandidacyID(uuid.New()), e.ID, p.ID, u.ID,
		electionmodels.PartyCampaign{PoliticalParty: "Unity Party"},
		time.Now().UTC(),
	)
	s.Require().NoError(s.candidates.Create(context.Background(), c))
	return c
}

// TestDuplicateCandidacyConflict verifies the unique index on
// (election, position, user).
func (s *PostgresStoreSuite) TestDuplicateCandidacyConflict() {
	ctx := context.Background()
	e, p := s.seedPosition()
	c := s.seedCandidacy(e, p)

	dup := electionmodels.NewCandidacy(
		id.CandidacyID(uuid.New()), e.ID, p.ID, c.UserID,
		electionmodels.PartyCampaign{}, time.Now().UTC(),
	)
	err := s.candidates.Create(ctx, dup)
	s.ErrorIs(err, sentinel.ErrConflict)
}

// TestConcurrentApprovalsGaplessBallots approves many candidacies for the
// same position in parallel transactions and verifies the position lock
// yields ballot numbers 1..N with no gaps or duplicates.
func (s *PostgresStoreSuite) TestConcurrentApprovalsGaplessBallots() {
	ctx := context.Background()
	e, p := s.seedPosition()
	commissioner := s.seedUser()

	const candidacies = 12
	ids := make([]id.CandidacyID, 0, candidacies)
	for i := 0; i < candidacies; i++ {
		ids = append(ids, s.seedCandidacy(e, p).ID)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, candidacies)
	for _, candidacyID := range ids {
		wg.Add(1)
		go func(candidacyID id.CandidacyID) {
			defer wg.Done()
			errCh <- s.runner.RunInTx(ctx, func(ctx context.Context) error {
				c, err := s.candidates.FindByID(ctx, candidacyID)
				if err != nil {
					return err
				}
				if err := c.CanApprove(); err != nil {
					return err
				}
				max, err := s.candidates.MaxAssignedBallotNumber(ctx, e.ID, p.ID)
				if err != nil {
					return err
				}
				c.ApplyApproval(max+1, commissioner.ID, time.Now().UTC())
				return s.candidates.Update(ctx, c)
			})
		}(candidacyID)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		s.Require().NoError(err)
	}

	approved, err := s.candidates.ListApprovedByPosition(ctx, e.ID, p.ID)
	s.Require().NoError(err)
	s.Require().Len(approved, candidacies)

	ballots := make([]int, 0, candidacies)
	for _, c := range approved {
		ballots = append(ballots, c.BallotNumber)
	}
	sort.Ints(ballots)
	for i, n := range ballots {
		s.Equal(i+1, n, "ballot numbers must be gapless starting at 1")
	}
}

// TestWithdrawnKeepsBallotNumber verifies withdrawal retains the assigned
// number but removes the candidacy from the approved listing.
func (s *PostgresStoreSuite) TestWithdrawnKeepsBallotNumber() {
	ctx := context.Background()
	e, p := s.seedPosition()
	commissioner := s.seedUser()

	c := s.seedCandidacy(e, p)
	c.ApplyApproval(1, commissioner.ID, time.Now().UTC())
	s.Require().NoError(s.candidates.Update(ctx, c))

	c.ApplyWithdrawal(time.Now().UTC())
	s.Require().NoError(s.candidates.Update(ctx, c))

	found, err := s.candidates.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(electionmodels.CandidacyWithdrawn, found.Status)
	s.Equal(1, found.BallotNumber)

	approved, err := s.candidates.ListApprovedByPosition(ctx, e.ID, p.ID)
	s.Require().NoError(err)
	s.Empty(approved)

	// The retained number still counts as assigned, so the next approval
	// must not reuse it.
	max, err := s.candidates.MaxAssignedBallotNumber(ctx, e.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(1, max)
}

// TestNotFound verifies sentinel mapping for missing rows.
func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.candidates.FindByID(ctx, id.CandidacyID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	c := &electionmodels.Candidacy{ID: id.CandidacyID(uuid.New()), Status: electionmodels.CandidacyRegistered}
	s.ErrorIs(s.candidates.Update(ctx, c), sentinel.ErrNotFound)
}
