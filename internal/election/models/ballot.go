package models

import (
	"time"

	id "comitia/pkg/domain"
)

// Ballot is the read model served to voting clients: active positions in
// display order, approved candidates in ballot order. It is cached once
// voting opens since it no longer changes.
type Ballot struct {
	ElectionID  id.ElectionID    `json:"election_id"`
	Title       string           `json:"title"`
	GeneratedAt time.Time        `json:"generated_at"`
	Positions   []BallotPosition `json:"positions"`
}

// BallotPosition is one contest on the ballot.
type BallotPosition struct {
	Position   Position    `json:"position"`
	Candidates []Candidacy `json:"candidates"`
}
