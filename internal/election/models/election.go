package models

import (
	"strings"
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// ElectionType classifies what is being contested.
type ElectionType string

const (
	ElectionPresidential  ElectionType = "presidential"
	ElectionParliamentary ElectionType = "parliamentary"
	ElectionLocal         ElectionType = "local"
	ElectionReferendum    ElectionType = "referendum"
	ElectionPrimary       ElectionType = "primary"
)

// ParseElectionType validates a raw election type at a trust boundary.
func ParseElectionType(raw string) (ElectionType, error) {
	switch ElectionType(strings.ToLower(strings.TrimSpace(raw))) {
	case ElectionPresidential:
		return ElectionPresidential, nil
	case ElectionParliamentary:
		return ElectionParliamentary, nil
	case ElectionLocal:
		return ElectionLocal, nil
	case ElectionReferendum:
		return ElectionReferendum, nil
	case ElectionPrimary:
		return ElectionPrimary, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown election type %q", raw)
	}
}

// ElectionStatus is the administrative lifecycle state. It is deliberately
// independent of the clock: the window predicates below consult the
// schedule, not the status, except where voting requires both.
type ElectionStatus string

const (
	StatusDraft     ElectionStatus = "draft"
	StatusScheduled ElectionStatus = "scheduled"
	StatusActive    ElectionStatus = "active"
	StatusCompleted ElectionStatus = "completed"
	StatusCancelled ElectionStatus = "cancelled"
)

// ParseElectionStatus validates a raw status at a trust boundary.
func ParseElectionStatus(raw string) (ElectionStatus, error) {
	switch ElectionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft, nil
	case StatusScheduled:
		return StatusScheduled, nil
	case StatusActive:
		return StatusActive, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown election status %q", raw)
	}
}

// statusTransitions lists the allowed forward moves. Cancellation is
// reachable from every non-terminal state; completed and cancelled are
// terminal.
var statusTransitions = map[ElectionStatus][]ElectionStatus{
	StatusDraft:     {StatusScheduled, StatusActive, StatusCancelled},
	StatusScheduled: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

// Election is the aggregate root for a contest and its schedule.
//
// Invariants:
//   - regStart < regEnd <= votingStart < votingEnd
//   - ResultsPublished is one-way; publication completes the election and
//     freezes candidates and results
type Election struct {
	ID          id.ElectionID
	Title       string
	Description string
	Type        ElectionType
	Status      ElectionStatus

	RegistrationStart time.Time
	RegistrationEnd   time.Time
	VotingStart       time.Time
	VotingEnd         time.Time

	MaxCandidatesPerPosition int
	RequireBiometricAuth     bool

	CreatedBy          id.UserID
	ResultsPublished   bool
	ResultsPublishedAt time.Time

	TotalRegisteredVoters int
	TotalVotesCast        int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedule groups the four instants for validation and construction.
type Schedule struct {
	RegistrationStart time.Time
	RegistrationEnd   time.Time
	VotingStart       time.Time
	VotingEnd         time.Time
}

// Validate enforces the strict ordering. Registration must close before or
// exactly when voting opens; equal bounds on the registration or voting
// window itself are rejected because they make the window empty.
func (s Schedule) Validate() error {
	for _, t := range []time.Time{s.RegistrationStart, s.RegistrationEnd, s.VotingStart, s.VotingEnd} {
		if t.IsZero() {
			return dErrors.New(dErrors.CodeValidation, "all four schedule instants are required")
		}
	}
	if !s.RegistrationStart.Before(s.RegistrationEnd) {
		return dErrors.New(dErrors.CodeValidation, "registration must open before it closes")
	}
	if s.RegistrationEnd.After(s.VotingStart) {
		return dErrors.New(dErrors.CodeValidation, "registration must close before voting starts")
	}
	if !s.VotingStart.Before(s.VotingEnd) {
		return dErrors.New(dErrors.CodeValidation, "voting must open before it closes")
	}
	return nil
}

// NewElection constructs a draft election after validating the schedule.
func NewElection(electionID id.ElectionID, title, description string, electionType ElectionType, schedule Schedule, maxCandidates int, requireBiometric bool, createdBy id.UserID, now time.Time) (*Election, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "election title is required")
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if maxCandidates < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "max candidates per position must be at least 1")
	}
	return &Election{
		ID:                       electionID,
		Title:                    title,
		Description:              strings.TrimSpace(description),
		Type:                     electionType,
		Status:                   StatusDraft,
		RegistrationStart:        schedule.RegistrationStart,
		RegistrationEnd:          schedule.RegistrationEnd,
		VotingStart:              schedule.VotingStart,
		VotingEnd:                schedule.VotingEnd,
		MaxCandidatesPerPosition: maxCandidates,
		RequireBiometricAuth:     requireBiometric,
		CreatedBy:                createdBy,
		CreatedAt:                now,
		UpdatedAt:                now,
	}, nil
}

// RegistrationOpen reports whether candidate registration is open at the
// instant. Purely schedule-driven: a draft election with an open window
// accepts registrations.
func (e *Election) RegistrationOpen(now time.Time) bool {
	return !now.Before(e.RegistrationStart) && now.Before(e.RegistrationEnd)
}

// VotingOpen reports whether ballots may be cast: the election must be
// active AND the instant must fall in the voting window.
func (e *Election) VotingOpen(now time.Time) bool {
	return e.Status == StatusActive && !now.Before(e.VotingStart) && now.Before(e.VotingEnd)
}

// Completed reports whether the contest is over, by status or by clock.
func (e *Election) Completed(now time.Time) bool {
	return e.Status == StatusCompleted || now.After(e.VotingEnd)
}

// CanTransition checks an administrative status change.
func (e *Election) CanTransition(to ElectionStatus) error {
	for _, allowed := range statusTransitions[e.Status] {
		if allowed == to {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvariantViolation, "election cannot move from %s to %s", e.Status, to)
}

// ApplyTransition performs the status change. Call CanTransition first.
func (e *Election) ApplyTransition(to ElectionStatus, now time.Time) {
	e.Status = to
	e.UpdatedAt = now
}

// CanPublishResults checks the publication preconditions.
func (e *Election) CanPublishResults() error {
	if e.ResultsPublished {
		return dErrors.New(dErrors.CodeConflict, "results are already published")
	}
	if e.Status != StatusActive && e.Status != StatusCompleted {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot publish results of a %s election", e.Status)
	}
	return nil
}

// ApplyPublish completes the election and freezes it. Call
// CanPublishResults first.
func (e *Election) ApplyPublish(now time.Time) {
	e.Status = StatusCompleted
	e.ResultsPublished = true
	e.ResultsPublishedAt = now
	e.UpdatedAt = now
}

// Mutable reports whether candidates and results may still change.
// Publication is the freeze point.
func (e *Election) Mutable() error {
	if e.ResultsPublished {
		return dErrors.New(dErrors.CodeConflict, "election is frozen after results publication")
	}
	return nil
}
