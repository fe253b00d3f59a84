package models

import (
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// CandidacyStatus tracks a per-election candidacy through approval.
type CandidacyStatus string

const (
	CandidacyRegistered   CandidacyStatus = "registered"
	CandidacyApproved     CandidacyStatus = "approved"
	CandidacyRejected     CandidacyStatus = "rejected"
	CandidacyWithdrawn    CandidacyStatus = "withdrawn"
	CandidacyDisqualified CandidacyStatus = "disqualified"
)

// Candidacy ties a user to one position in one election. Distinct from the
// role-level CandidateProfile: a user holds one profile but may contest
// many elections.
//
// Invariants:
//   - (election, position, user) unique (store-enforced)
//   - BallotNumber assigned only at approval, strictly increasing per
//     (election, position) among approved candidacies
type Candidacy struct {
	ID         id.CandidacyID
	ElectionID id.ElectionID
	PositionID id.PositionID
	UserID     id.UserID

	Status       CandidacyStatus
	BallotNumber int

	Party PartyCampaign

	RegisteredAt time.Time
	ApprovedBy   id.UserID
	ApprovedAt   time.Time

	VotesReceived int
}

// PartyCampaign carries the campaign fields submitted at registration.
type PartyCampaign struct {
	PoliticalParty string
	CampaignSlogan string
	Manifesto      string
}

// NewCandidacy constructs a registered candidacy with no ballot number.
func NewCandidacy(candidacyID id.CandidacyID, electionID id.ElectionID, positionID id.PositionID, userID id.UserID, party PartyCampaign, now time.Time) *Candidacy {
	return &Candidacy{
		ID:           candidacyID,
		ElectionID:   electionID,
		PositionID:   positionID,
		UserID:       userID,
		Status:       CandidacyRegistered,
		Party:        party,
		RegisteredAt: now,
	}
}

// OnBallot reports whether the candidacy appears on ballots.
func (c *Candidacy) OnBallot() bool {
	return c.Status == CandidacyApproved
}

// CanApprove checks that the candidacy is still awaiting a decision.
// The service re-runs this inside its transaction; the loser of a
// concurrent double-approval observes the error.
func (c *Candidacy) CanApprove() error {
	if c.Status != CandidacyRegistered {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "candidacy is not pending approval (status %s)", c.Status)
	}
	return nil
}

// ApplyApproval assigns the ballot number and records the decision. Call
// CanApprove first; the caller computes ballotNumber under the store's
// serialization guarantee.
func (c *Candidacy) ApplyApproval(ballotNumber int, commissioner id.UserID, now time.Time) {
	c.Status = CandidacyApproved
	c.BallotNumber = ballotNumber
	c.ApprovedBy = commissioner
	c.ApprovedAt = now
}

// CanReject mirrors CanApprove.
func (c *Candidacy) CanReject() error {
	return c.CanApprove()
}

// ApplyRejection records the rejection. No ballot number is assigned.
func (c *Candidacy) ApplyRejection(commissioner id.UserID, now time.Time) {
	c.Status = CandidacyRejected
	c.ApprovedBy = commissioner
	c.ApprovedAt = now
}

// CanWithdraw checks that the candidate may still pull out. Registered and
// approved candidacies can withdraw; decided-against ones cannot.
func (c *Candidacy) CanWithdraw() error {
	if c.Status != CandidacyRegistered && c.Status != CandidacyApproved {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "candidacy cannot withdraw from status %s", c.Status)
	}
	return nil
}

// ApplyWithdrawal marks the candidacy withdrawn. The ballot number is kept
// for the historical record; OnBallot excludes it.
func (c *Candidacy) ApplyWithdrawal(now time.Time) {
	c.Status = CandidacyWithdrawn
	c.ApprovedAt = now
}
