package models

import (
	"strings"
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// Position is a contested seat within an election. Titles are unique per
// election (store-enforced).
type Position struct {
	ID          id.PositionID
	ElectionID  id.ElectionID
	Title       string
	Description string

	MaxVotesPerVoter    int
	AvailableSeats      int
	MinimumAge          int
	CitizenshipRequired bool

	DisplayOrder int
	Active       bool

	CreatedAt time.Time
}

// NewPosition constructs an active position with validated bounds.
func NewPosition(positionID id.PositionID, electionID id.ElectionID, title, description string, maxVotes, seats, minimumAge, displayOrder int, citizenshipRequired bool, now time.Time) (*Position, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "position title is required")
	}
	if maxVotes < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "max votes per voter must be at least 1")
	}
	if seats < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "available seats must be at least 1")
	}
	if minimumAge < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "minimum age cannot be negative")
	}
	return &Position{
		ID:                  positionID,
		ElectionID:          electionID,
		Title:               title,
		Description:         strings.TrimSpace(description),
		MaxVotesPerVoter:    maxVotes,
		AvailableSeats:      seats,
		MinimumAge:          minimumAge,
		CitizenshipRequired: citizenshipRequired,
		DisplayOrder:        displayOrder,
		Active:              true,
		CreatedAt:           now,
	}, nil
}

// MeetsAgeRequirement checks a candidate's age against the position floor.
func (p *Position) MeetsAgeRequirement(age int) error {
	if p.MinimumAge > 0 && age < p.MinimumAge {
		return dErrors.Newf(dErrors.CodeValidation, "position %s requires a minimum age of %d", p.Title, p.MinimumAge)
	}
	return nil
}
