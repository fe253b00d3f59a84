package handler

import (
	"time"

	"comitia/internal/election/models"
	"comitia/internal/election/service"
)

type electionResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	RegistrationStart  time.Time `json:"registration_start"`
	RegistrationEnd    time.Time `json:"registration_end"`
	VotingStart        time.Time `json:"voting_start"`
	VotingEnd          time.Time `json:"voting_end"`
	ResultsPublished   bool      `json:"results_published"`
	ResultsPublishedAt time.Time `json:"results_published_at"`
}

func toElectionResponse(e *models.Election) electionResponse {
	return electionResponse{
		ID:                 e.ID.String(),
		Title:              e.Title,
		Description:        e.Description,
		Type:               string(e.Type),
		Status:             string(e.Status),
		RegistrationStart:  e.RegistrationStart,
		RegistrationEnd:    e.RegistrationEnd,
		VotingStart:        e.VotingStart,
		VotingEnd:          e.VotingEnd,
		ResultsPublished:   e.ResultsPublished,
		ResultsPublishedAt: e.ResultsPublishedAt,
	}
}

type candidacyResponse struct {
	ID           string `json:"id"`
	ElectionID   string `json:"election_id"`
	PositionID   string `json:"position_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	BallotNumber int    `json:"ballot_number,omitempty"`
	Party        string `json:"political_party,omitempty"`
}

func toCandidacyResponse(c *models.Candidacy) candidacyResponse {
	return candidacyResponse{
		ID:           c.ID.String(),
		ElectionID:   c.ElectionID.String(),
		PositionID:   c.PositionID.String(),
		UserID:       c.UserID.String(),
		Status:       string(c.Status),
		BallotNumber: c.BallotNumber,
		Party:        c.Party.PoliticalParty,
	}
}

type eligibilityResponse struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}

func toEligibilityResponse(v *service.Eligibility) eligibilityResponse {
	reasons := v.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return eligibilityResponse{Eligible: v.Eligible, Reasons: reasons}
}

type resultResponse struct {
	PositionID     string  `json:"position_id"`
	CandidacyID    string  `json:"candidacy_id"`
	TotalVotes     int     `json:"total_votes"`
	VotePercentage float64 `json:"vote_percentage"`
	Rank           int     `json:"rank"`
	Winner         bool    `json:"winner"`
}

func toResultResponse(r models.Result) resultResponse {
	return resultResponse{
		PositionID:     r.PositionID.String(),
		CandidacyID:    r.CandidacyID.String(),
		TotalVotes:     r.TotalVotes,
		VotePercentage: r.VotePercentage,
		Rank:           r.Rank,
		Winner:         r.Winner,
	}
}
