package handler

import (
	"strings"
	"time"

	"comitia/internal/election/models"
	"comitia/internal/election/service"
	dErrors "comitia/pkg/domain-errors"
)

type positionSpec struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	MaxVotesPerVoter    int    `json:"max_votes_per_voter"`
	AvailableSeats      int    `json:"available_seats"`
	MinimumAge          int    `json:"minimum_age"`
	CitizenshipRequired bool   `json:"citizenship_required"`
	DisplayOrder        int    `json:"display_order"`
}

type createElectionRequest struct {
	Title                    string         `json:"title"`
	Description              string         `json:"description"`
	Type                     string         `json:"type"`
	RegistrationStart        time.Time      `json:"registration_start"`
	RegistrationEnd          time.Time      `json:"registration_end"`
	VotingStart              time.Time      `json:"voting_start"`
	VotingEnd                time.Time      `json:"voting_end"`
	MaxCandidatesPerPosition int            `json:"max_candidates_per_position"`
	RequireBiometricAuth     bool           `json:"require_biometric_auth"`
	Positions                []positionSpec `json:"positions"`
}

func (r *createElectionRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	for i := range r.Positions {
		r.Positions[i].Title = strings.TrimSpace(r.Positions[i].Title)
	}
}

func (r *createElectionRequest) Validate() error {
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if _, err := models.ParseElectionType(r.Type); err != nil {
		return err
	}
	if len(r.Positions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one position is required")
	}
	return nil
}

func (r *createElectionRequest) toInput() service.CreateElectionInput {
	electionType, _ := models.ParseElectionType(r.Type)
	maxCandidates := r.MaxCandidatesPerPosition
	if maxCandidates == 0 {
		maxCandidates = 10
	}
	positions := make([]service.PositionSpec, 0, len(r.Positions))
	for i, p := range r.Positions {
		order := p.DisplayOrder
		if order == 0 {
			order = i
		}
		positions = append(positions, service.PositionSpec{
			Title:               p.Title,
			Description:         p.Description,
			MaxVotesPerVoter:    max(p.MaxVotesPerVoter, 1),
			AvailableSeats:      max(p.AvailableSeats, 1),
			MinimumAge:          p.MinimumAge,
			CitizenshipRequired: p.CitizenshipRequired,
			DisplayOrder:        order,
		})
	}
	return service.CreateElectionInput{
		Title:       r.Title,
		Description: r.Description,
		Type:        electionType,
		Schedule: models.Schedule{
			RegistrationStart: r.RegistrationStart,
			RegistrationEnd:   r.RegistrationEnd,
			VotingStart:       r.VotingStart,
			VotingEnd:         r.VotingEnd,
		},
		MaxCandidatesPerPosition: maxCandidates,
		RequireBiometricAuth:     r.RequireBiometricAuth,
		Positions:                positions,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (r *updateStatusRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *updateStatusRequest) Validate() error {
	_, err := models.ParseElectionStatus(r.Status)
	return err
}

type registerCandidateRequest struct {
	PositionID     string `json:"position_id"`
	PoliticalParty string `json:"political_party"`
	CampaignSlogan string `json:"campaign_slogan"`
	Manifesto      string `json:"manifesto"`
}

func (r *registerCandidateRequest) Normalize() {
	r.PositionID = strings.TrimSpace(r.PositionID)
	r.PoliticalParty = strings.TrimSpace(r.PoliticalParty)
	r.CampaignSlogan = strings.TrimSpace(r.CampaignSlogan)
	r.Manifesto = strings.TrimSpace(r.Manifesto)
}

func (r *registerCandidateRequest) Validate() error {
	if r.PositionID == "" {
		return dErrors.New(dErrors.CodeValidation, "position_id is required")
	}
	return nil
}

type rejectCandidateRequest struct {
	Reason string `json:"reason"`
}

func (r *rejectCandidateRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *rejectCandidateRequest) Validate() error {
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required on a rejection")
	}
	return nil
}
