package models

import (
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// VoterProfile is created atomically when an officer approves a voter
// enrollment. Its credential (VTR…) is the identifier printed on the
// voter card.
type VoterProfile struct {
	UserID         id.UserID
	VoterID        string
	PollingStation string
	Constituency   string
	CompletedBy    id.UserID
	CreatedAt      time.Time
}

// CandidateProfileStatus tracks the commission's decision on a candidacy
// profile (the role-level application, distinct from per-election
// candidacies).
type CandidateProfileStatus string

const (
	ProfilePending      CandidateProfileStatus = "pending"
	ProfileApproved     CandidateProfileStatus = "approved"
	ProfileRejected     CandidateProfileStatus = "rejected"
	ProfileDisqualified CandidateProfileStatus = "disqualified"
)

// CandidateProfile is created when a citizen or voter applies for
// candidacy. The CND… credential is assigned at creation; the role flips
// only when the commission approves.
type CandidateProfile struct {
	UserID      id.UserID
	CandidateID string
	Party       PartyInfo
	Status      CandidateProfileStatus
	AppliedAt   time.Time
	ApprovedBy  id.UserID
	ApprovedAt  time.Time
}

// NewCandidateProfile constructs a pending profile.
func NewCandidateProfile(userID id.UserID, candidateID string, party PartyInfo, now time.Time) *CandidateProfile {
	return &CandidateProfile{
		UserID:      userID,
		CandidateID: candidateID,
		Party:       party,
		Status:      ProfilePending,
		AppliedAt:   now,
	}
}

// Active reports whether the profile blocks a new candidacy application.
// Rejected and disqualified profiles do not.
func (p *CandidateProfile) Active() bool {
	return p.Status == ProfilePending || p.Status == ProfileApproved
}

// CanDecide checks that the commission has not already decided the profile.
func (p *CandidateProfile) CanDecide() error {
	if p.Status != ProfilePending {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "candidacy is not pending approval (status %s)", p.Status)
	}
	return nil
}

// ApplyApproval marks the profile approved. Call CanDecide first.
func (p *CandidateProfile) ApplyApproval(commissioner id.UserID, now time.Time) {
	p.Status = ProfileApproved
	p.ApprovedBy = commissioner
	p.ApprovedAt = now
}

// ApplyRejection marks the profile rejected. Call CanDecide first.
func (p *CandidateProfile) ApplyRejection(commissioner id.UserID, now time.Time) {
	p.Status = ProfileRejected
	p.ApprovedBy = commissioner
	p.ApprovedAt = now
}
