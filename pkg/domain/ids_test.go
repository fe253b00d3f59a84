package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "comitia/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant: IDs must be
// valid, non-empty, non-nil UUIDs. Parsing happens once at the API boundary;
// everything past it trusts the typed value.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseElectionID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCandidacyID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseUserID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(valid), id)
	})
}

// TestParseID_SecurityInvariants validates that parsing rejects hostile
// input at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePositionID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestTypeDistinction verifies the compiler enforces ID type safety.
// If types ever become aliases these comments stop being true.
func TestTypeDistinction(t *testing.T) {
	userID := UserID(uuid.New())
	electionID := ElectionID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ UserID = electionID   // compile error
	// var _ ElectionID = userID   // compile error

	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(electionID))
}

func TestCredentialID(t *testing.T) {
	t.Run("derives from user id", func(t *testing.T) {
		userID, err := ParseUserID("550e8400-e29b-41d4-a716-446655440000")
		require.NoError(t, err)

		got := NewCredentialID(CredentialVoter, userID)
		assert.Equal(t, "VTR550E8400", got)
	})

	t.Run("all kinds parse back", func(t *testing.T) {
		userID := NewUserID()
		for _, kind := range []CredentialKind{CredentialVoter, CredentialCandidate, CredentialOfficial, CredentialCommission} {
			id := NewCredentialID(kind, userID)
			parsed, err := ParseCredentialID(id)
			require.NoError(t, err, id)
			assert.Equal(t, kind, parsed)
		}
	})

	t.Run("retry produces distinct well-formed ids", func(t *testing.T) {
		seen := map[string]bool{}
		for range 32 {
			id, err := RetryCredentialID(CredentialCandidate)
			require.NoError(t, err)
			_, err = ParseCredentialID(id)
			require.NoError(t, err, id)
			assert.False(t, seen[id], "retry generated a duplicate within a tiny sample")
			seen[id] = true
		}
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, raw := range []string{"", "VTR", "vtr550e8400", "XXX550E8400", "VTR550E840", "VTR550E8400Z"} {
			_, err := ParseCredentialID(raw)
			require.Error(t, err, raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})
}
