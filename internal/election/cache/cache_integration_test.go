//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"comitia/internal/election/cache"
	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Cache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = cache.New(s.redis.Client)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func sampleBallot(electionID id.ElectionID) *models.Ballot {
	now := time.Now().UTC().Truncate(time.Second)
	positionID := id.PositionID(uuid.New())
	return &models.Ballot{
		ElectionID:  electionID,
		Title:       "General Election",
		GeneratedAt: now,
		Positions: []models.BallotPosition{
			{
				Position: models.Position{
					ID:               positionID,
					ElectionID:       electionID,
					Title:            "President",
					MaxVotesPerVoter: 1,
					AvailableSeats:   1,
					Active:           true,
					CreatedAt:        now,
				},
				Candidates: []models.Candidacy{
					{
						ID:           id.CandidacyID(uuid.New()),
						ElectionID:   electionID,
						PositionID:   positionID,
						UserID:       id.UserID(uuid.New()),
						Status:       models.CandidacyApproved,
						BallotNumber: 1,
						Party:        models.PartyCampaign{PoliticalParty: "Unity Party"},
						RegisteredAt: now,
					},
				},
			},
		},
	}
}

// TestBallotRoundTrip verifies a cached ballot comes back intact,
// typed IDs included.
func (s *RedisCacheSuite) TestBallotRoundTrip() {
	ctx := context.Background()
	ballot := sampleBallot(id.ElectionID(uuid.New()))

	s.Require().NoError(s.cache.SetBallot(ctx, ballot))

	got, err := s.cache.GetBallot(ctx, ballot.ElectionID)
	s.Require().NoError(err)
	s.Equal(ballot.ElectionID, got.ElectionID)
	s.Require().Len(got.Positions, 1)
	s.Equal(ballot.Positions[0].Position.ID, got.Positions[0].Position.ID)
	s.Require().Len(got.Positions[0].Candidates, 1)
	s.Equal(1, got.Positions[0].Candidates[0].BallotNumber)
	s.Equal("Unity Party", got.Positions[0].Candidates[0].Party.PoliticalParty)
}

// TestMissIsNotFound verifies a cache miss maps to the store sentinel so
// callers fall through to Postgres.
func (s *RedisCacheSuite) TestMissIsNotFound() {
	ctx := context.Background()

	_, err := s.cache.GetBallot(ctx, id.ElectionID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.cache.GetResults(ctx, id.ElectionID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestInvalidateBallot verifies invalidation turns the next read into a
// miss.
func (s *RedisCacheSuite) TestInvalidateBallot() {
	ctx := context.Background()
	ballot := sampleBallot(id.ElectionID(uuid.New()))

	s.Require().NoError(s.cache.SetBallot(ctx, ballot))
	s.Require().NoError(s.cache.InvalidateBallot(ctx, ballot.ElectionID))

	_, err := s.cache.GetBallot(ctx, ballot.ElectionID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestResultsRoundTrip verifies published results cache and return in
// order.
func (s *RedisCacheSuite) TestResultsRoundTrip() {
	ctx := context.Background()
	electionID := id.ElectionID(uuid.New())
	positionID := id.PositionID(uuid.New())
	now := time.Now().UTC().Truncate(time.Second)

	results := []models.Result{
		{
			ElectionID: electionID, PositionID: positionID,
			CandidacyID: id.CandidacyID(uuid.New()),
			TotalVotes:  700, VotePercentage: 70, Rank: 1, Winner: true,
			CalculatedAt: now, PublishedAt: now,
		},
		{
			ElectionID: electionID, PositionID: positionID,
			CandidacyID: id.CandidacyID(uuid.New()),
			TotalVotes:  300, VotePercentage: 30, Rank: 2,
			CalculatedAt: now, PublishedAt: now,
		},
	}

	s.Require().NoError(s.cache.SetResults(ctx, electionID, results))

	got, err := s.cache.GetResults(ctx, electionID)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(results[0].CandidacyID, got[0].CandidacyID)
	s.Equal(1, got[0].Rank)
	s.True(got[0].Winner)
	s.Equal(30.0, got[1].VotePercentage)
}
