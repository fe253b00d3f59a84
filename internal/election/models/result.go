package models

import (
	"time"

	id "comitia/pkg/domain"
)

// Result is one candidacy's tabulated outcome for one position. Rows are
// written by tabulation and frozen at publication.
type Result struct {
	ElectionID  id.ElectionID
	PositionID  id.PositionID
	CandidacyID id.CandidacyID

	TotalVotes     int
	VotePercentage float64
	Rank           int
	Winner         bool

	CalculatedAt time.Time
	PublishedAt  time.Time
}
