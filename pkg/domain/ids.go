// Package domain holds identifier types shared across modules.
//
// Every entity is keyed by a typed UUID. The distinct types exist so the
// compiler rejects cross-entity mix-ups (passing an election ID where a
// position ID is expected), which matters in a system where approvals and
// ballot assignment join three entities at once.
package domain

import (
	"github.com/google/uuid"

	dErrors "comitia/pkg/domain-errors"
)

type (
	// UserID identifies a platform user across all roles.
	UserID uuid.UUID

	// ElectionID identifies an election.
	ElectionID uuid.UUID

	// PositionID identifies a position within an election.
	PositionID uuid.UUID

	// CandidacyID identifies one user's candidacy for one position.
	CandidacyID uuid.UUID

	// ApplicationID identifies a role-transition application.
	ApplicationID uuid.UUID
)

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ElectionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PositionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CandidacyID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ElectionID) String() string    { return uuid.UUID(id).String() }
func (id PositionID) String() string    { return uuid.UUID(id).String() }
func (id CandidacyID) String() string   { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }

// The ID types marshal as canonical UUID strings so cached read models
// and JSON payloads stay readable.

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ElectionID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PositionID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id CandidacyID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(text []byte) error        { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *ElectionID) UnmarshalText(text []byte) error    { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *PositionID) UnmarshalText(text []byte) error    { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *CandidacyID) UnmarshalText(text []byte) error   { return (*uuid.UUID)(id).UnmarshalText(text) }
func (id *ApplicationID) UnmarshalText(text []byte) error { return (*uuid.UUID)(id).UnmarshalText(text) }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewElectionID returns a fresh random election ID.
func NewElectionID() ElectionID { return ElectionID(uuid.New()) }

// NewPositionID returns a fresh random position ID.
func NewPositionID() PositionID { return PositionID(uuid.New()) }

// NewCandidacyID returns a fresh random candidacy ID.
func NewCandidacyID() CandidacyID { return CandidacyID(uuid.New()) }

// NewApplicationID returns a fresh random application ID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// parseUUID enforces the parsing invariant for all ID types: the input must
// be a valid, non-nil UUID. Oversized input is rejected before uuid.Parse
// sees it so malformed payloads cannot burn cycles at a trust boundary.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(raw) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is too long")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return parsed, nil
}

// ParseUserID validates and converts a raw string into a UserID.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseElectionID validates and converts a raw string into an ElectionID.
func ParseElectionID(raw string) (ElectionID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return ElectionID{}, err
	}
	return ElectionID(parsed), nil
}

// ParsePositionID validates and converts a raw string into a PositionID.
func ParsePositionID(raw string) (PositionID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return PositionID{}, err
	}
	return PositionID(parsed), nil
}

// ParseCandidacyID validates and converts a raw string into a CandidacyID.
func ParseCandidacyID(raw string) (CandidacyID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return CandidacyID{}, err
	}
	return CandidacyID(parsed), nil
}

// ParseApplicationID validates and converts a raw string into an ApplicationID.
func ParseApplicationID(raw string) (ApplicationID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(parsed), nil
}
