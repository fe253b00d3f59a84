package handler

import (
	"strings"

	"comitia/internal/identity/models"
	dErrors "comitia/pkg/domain-errors"
)

type applyForCandidateRequest struct {
	PoliticalParty string `json:"political_party"`
	CampaignSlogan string `json:"campaign_slogan"`
	Manifesto      string `json:"manifesto"`
}

func (r *applyForCandidateRequest) Normalize() {
	r.PoliticalParty = strings.TrimSpace(r.PoliticalParty)
	r.CampaignSlogan = strings.TrimSpace(r.CampaignSlogan)
	r.Manifesto = strings.TrimSpace(r.Manifesto)
}

func (r *applyForCandidateRequest) Validate() error {
	if r.PoliticalParty == "" {
		return dErrors.New(dErrors.CodeValidation, "political_party is required")
	}
	return nil
}

func (r *applyForCandidateRequest) party() models.PartyInfo {
	return models.PartyInfo{
		PoliticalParty: r.PoliticalParty,
		CampaignSlogan: r.CampaignSlogan,
		Manifesto:      r.Manifesto,
	}
}

type approveEnrollmentRequest struct {
	PollingStation string `json:"polling_station"`
	Constituency   string `json:"constituency"`
}

func (r *approveEnrollmentRequest) Normalize() {
	r.PollingStation = strings.TrimSpace(r.PollingStation)
	r.Constituency = strings.TrimSpace(r.Constituency)
}

func (r *approveEnrollmentRequest) Validate() error {
	if r.PollingStation == "" {
		return dErrors.New(dErrors.CodeValidation, "polling_station is required")
	}
	return nil
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

func (r *rejectRequest) Normalize() {
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *rejectRequest) Validate() error {
	if r.Notes == "" {
		return dErrors.New(dErrors.CodeValidation, "notes is required on a rejection")
	}
	return nil
}
