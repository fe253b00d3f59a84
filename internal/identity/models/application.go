package models

import (
	"strings"
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// ApplicationType distinguishes the two role-transition paths.
type ApplicationType string

const (
	ApplicationVoter     ApplicationType = "voter"
	ApplicationCandidate ApplicationType = "candidate"
)

// ParseApplicationType validates a raw application type at a trust boundary.
func ParseApplicationType(raw string) (ApplicationType, error) {
	switch ApplicationType(strings.ToLower(strings.TrimSpace(raw))) {
	case ApplicationVoter:
		return ApplicationVoter, nil
	case ApplicationCandidate:
		return ApplicationCandidate, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown application type %q", raw)
	}
}

// ApplicationStatus tracks a role application through review.
// approved and rejected are terminal.
type ApplicationStatus string

const (
	ApplicationPending           ApplicationStatus = "pending"
	ApplicationUnderReview       ApplicationStatus = "under_review"
	ApplicationApproved          ApplicationStatus = "approved"
	ApplicationRejected          ApplicationStatus = "rejected"
	ApplicationDocumentsRequired ApplicationStatus = "documents_required"
)

// IsTerminal reports whether no further transition is allowed.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

// Reviewable reports whether a reviewer may still decide the application.
func (s ApplicationStatus) Reviewable() bool {
	return s == ApplicationPending || s == ApplicationUnderReview || s == ApplicationDocumentsRequired
}

// PartyInfo carries the campaign fields a candidate application submits.
type PartyInfo struct {
	PoliticalParty string
	CampaignSlogan string
	Manifesto      string
}

// RoleApplication ties a user to a requested role transition.
//
// Invariants:
//   - At most one open application per (user, type) — the store enforces
//     the uniqueness; terminal applications do not block a reapplication
//   - Only a reviewer mutates it after submission
//   - approved/rejected are terminal
type RoleApplication struct {
	ID          id.ApplicationID
	UserID      id.UserID
	Type        ApplicationType
	Status      ApplicationStatus
	Party       PartyInfo
	SubmittedAt time.Time
	ReviewedBy  id.UserID
	ReviewedAt  time.Time
	ReviewNotes string
}

// NewRoleApplication constructs a pending application.
func NewRoleApplication(appID id.ApplicationID, userID id.UserID, appType ApplicationType, party PartyInfo, now time.Time) *RoleApplication {
	return &RoleApplication{
		ID:          appID,
		UserID:      userID,
		Type:        appType,
		Status:      ApplicationPending,
		Party:       party,
		SubmittedAt: now,
	}
}

// CanReview checks that the application is still open for a decision.
// The service re-runs this inside its transaction so a racing approver
// observes the conflict instead of double-deciding.
func (a *RoleApplication) CanReview() error {
	if !a.Status.Reviewable() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "application is not pending review (status %s)", a.Status)
	}
	return nil
}

// ApplyApproval marks the application approved by the reviewer.
// Call CanReview first.
func (a *RoleApplication) ApplyApproval(reviewer id.UserID, now time.Time) {
	a.Status = ApplicationApproved
	a.ReviewedBy = reviewer
	a.ReviewedAt = now
}

// ApplyRejection marks the application rejected with the reviewer's notes.
// Call CanReview first.
func (a *RoleApplication) ApplyRejection(reviewer id.UserID, notes string, now time.Time) {
	a.Status = ApplicationRejected
	a.ReviewedBy = reviewer
	a.ReviewedAt = now
	a.ReviewNotes = notes
}
