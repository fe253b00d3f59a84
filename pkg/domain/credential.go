package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "comitia/pkg/domain-errors"
)

// CredentialKind selects the human-readable identifier prefix issued when a
// profile is created. These are the identifiers printed on voter cards and
// candidate paperwork; the UUID stays internal.
type CredentialKind string

const (
	CredentialVoter      CredentialKind = "VTR"
	CredentialCandidate  CredentialKind = "CND"
	CredentialOfficial   CredentialKind = "OFF"
	CredentialCommission CredentialKind = "COM"
)

// credentialHexLen is the number of hex characters after the prefix.
const credentialHexLen = 8

var credentialPattern = regexp.MustCompile(`^(VTR|CND|OFF|COM)[0-9A-F]{8}$`)

// NewCredentialID derives a credential identifier from a user ID: the kind's
// three-letter prefix followed by the first eight hex characters of the UUID,
// uppercased. Derivation keeps the identifier reproducible from the user
// record; collisions across truncated UUIDs are possible and handled by
// RetryCredentialID.
func NewCredentialID(kind CredentialKind, userID UserID) string {
	u := uuid.UUID(userID)
	raw := hex.EncodeToString(u[:])
	return string(kind) + strings.ToUpper(raw[:credentialHexLen])
}

// RetryCredentialID generates a fresh random credential identifier of the
// same shape. Used when the derived identifier collides with an existing
// profile.
func RetryCredentialID(kind CredentialKind) (string, error) {
	buf := make([]byte, credentialHexLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate credential id: %w", err)
	}
	return string(kind) + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// ParseCredentialID validates the shape of a credential identifier at a
// trust boundary and returns its kind.
func ParseCredentialID(raw string) (CredentialKind, error) {
	if !credentialPattern.MatchString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential id must be a 3-letter prefix followed by 8 hex characters")
	}
	return CredentialKind(raw[:3]), nil
}
