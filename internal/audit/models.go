package audit

import (
	"context"
	"time"

	id "comitia/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. The
// category drives retention and routing downstream; the core only tags it.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: role
	// transitions, enrollment and candidacy decisions, results publication.
	// These require tamper-evident storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// authorization denials, token validation failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and visibility:
	// election listing, ballot reads.
	CategoryOperations EventCategory = "operations"
)

// Action tags every append-only entry. New actions must be added to
// actionCategories or they default to operations.
type Action string

const (
	// Role transition actions
	ActionRoleApplicationSubmitted Action = "role_application_submitted"
	ActionVoterEnrollmentApproved  Action = "voter_enrollment_approved"
	ActionVoterEnrollmentRejected  Action = "voter_enrollment_rejected"
	ActionCandidacyProfileApproved Action = "candidacy_profile_approved"
	ActionCandidacyProfileRejected Action = "candidacy_profile_rejected"

	// Election lifecycle actions
	ActionElectionCreated     Action = "election_created"
	ActionElectionUpdated     Action = "election_updated"
	ActionVotingStarted       Action = "voting_started"
	ActionVotingEnded         Action = "voting_ended"
	ActionCandidateRegistered Action = "candidate_registered"
	ActionCandidateApproved   Action = "candidate_approved"
	ActionCandidateRejected   Action = "candidate_rejected"
	ActionCandidateWithdrawn  Action = "candidate_withdrawn"
	ActionResultsCalculated   Action = "results_calculated"
	ActionResultsPublished    Action = "results_published"

	// Security actions
	ActionAuthorizationDenied Action = "authorization_denied"
)

var actionCategories = map[Action]EventCategory{
	ActionRoleApplicationSubmitted: CategoryCompliance,
	ActionVoterEnrollmentApproved:  CategoryCompliance,
	ActionVoterEnrollmentRejected:  CategoryCompliance,
	ActionCandidacyProfileApproved: CategoryCompliance,
	ActionCandidacyProfileRejected: CategoryCompliance,
	ActionElectionCreated:          CategoryCompliance,
	ActionElectionUpdated:          CategoryCompliance,
	ActionVotingStarted:            CategoryCompliance,
	ActionVotingEnded:              CategoryCompliance,
	ActionCandidateRegistered:      CategoryCompliance,
	ActionCandidateApproved:        CategoryCompliance,
	ActionCandidateRejected:        CategoryCompliance,
	ActionCandidateWithdrawn:       CategoryCompliance,
	ActionResultsCalculated:        CategoryCompliance,
	ActionResultsPublished:         CategoryCompliance,
	ActionAuthorizationDenied:      CategorySecurity,
}

// Category returns the routing category for the action.
func (a Action) Category() EventCategory {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture a state-changing action.
// Entries are append-only: never updated, never deleted, and kept even if
// the referenced election or application is later removed.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	Action      Action
	Description string

	// ActorID is who performed the action; SubjectID is the user the action
	// was performed on, when different (an officer approving an enrollment
	// sets both).
	ActorID   id.UserID
	SubjectID id.UserID

	// Weak references to the aggregate the action touched.
	ElectionID    id.ElectionID
	ApplicationID id.ApplicationID

	// Structured key/value detail (rejection reasons, ballot numbers).
	Metadata map[string]string

	// Request enrichment captured by middleware.
	ClientIP  string
	UserAgent string
	RequestID string
}

// Store is the audit sink. The core only appends; reading the trail back is
// a reporting concern served elsewhere.
type Store interface {
	Append(ctx context.Context, event Event) error
}
