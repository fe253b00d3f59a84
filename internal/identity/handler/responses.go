package handler

import (
	"time"

	"comitia/internal/identity/models"
)

type applicationResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func toApplicationResponse(a *models.RoleApplication) applicationResponse {
	return applicationResponse{
		ID:          a.ID.String(),
		UserID:      a.UserID.String(),
		Type:        string(a.Type),
		Status:      string(a.Status),
		SubmittedAt: a.SubmittedAt,
	}
}

type voterProfileResponse struct {
	UserID         string    `json:"user_id"`
	VoterID        string    `json:"voter_id"`
	PollingStation string    `json:"polling_station"`
	Constituency   string    `json:"constituency"`
	CreatedAt      time.Time `json:"created_at"`
}

func toVoterProfileResponse(p *models.VoterProfile) voterProfileResponse {
	return voterProfileResponse{
		UserID:         p.UserID.String(),
		VoterID:        p.VoterID,
		PollingStation: p.PollingStation,
		Constituency:   p.Constituency,
		CreatedAt:      p.CreatedAt,
	}
}

type candidateProfileResponse struct {
	UserID         string    `json:"user_id"`
	CandidateID    string    `json:"candidate_id"`
	PoliticalParty string    `json:"political_party"`
	CampaignSlogan string    `json:"campaign_slogan,omitempty"`
	Status         string    `json:"status"`
	AppliedAt      time.Time `json:"applied_at"`
}

func toCandidateProfileResponse(p *models.CandidateProfile) candidateProfileResponse {
	return candidateProfileResponse{
		UserID:         p.UserID.String(),
		CandidateID:    p.CandidateID,
		PoliticalParty: p.Party.PoliticalParty,
		CampaignSlogan: p.Party.CampaignSlogan,
		Status:         string(p.Status),
		AppliedAt:      p.AppliedAt,
	}
}
