package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newCitizen(t *testing.T) *models.User {
	t.Helper()
	u, err := models.NewUser(id.NewUserID(), "Ama", "Mensah", "ama@example.com", "GHA-100",
		time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), now)
	require.NoError(t, err)
	return u
}

func TestNewUserStartsAsPendingCitizen(t *testing.T) {
	u := newCitizen(t)
	assert.Equal(t, models.RoleCitizen, u.Role)
	assert.Equal(t, models.VerificationPending, u.VerificationStatus)
	assert.False(t, u.CanVote())
}

func TestNewUserRejectsEmptyNationalID(t *testing.T) {
	_, err := models.NewUser(id.NewUserID(), "Ama", "Mensah", "", "  ", time.Time{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

// Voting requires both a voting role and approved verification. Role and
// verification move independently, so every combination matters.
func TestCanVoteRequiresRoleAndVerification(t *testing.T) {
	tests := []struct {
		role    models.Role
		status  models.VerificationStatus
		canVote bool
	}{
		{models.RoleCitizen, models.VerificationApproved, false},
		{models.RoleVoter, models.VerificationPending, false},
		{models.RoleVoter, models.VerificationApproved, true},
		{models.RoleVoter, models.VerificationSuspended, false},
		{models.RoleCandidate, models.VerificationApproved, true},
		{models.RoleVoterOfficial, models.VerificationApproved, false},
		{models.RoleElectoralCommission, models.VerificationApproved, false},
	}
	for _, tt := range tests {
		u := newCitizen(t)
		u.Role = tt.role
		u.VerificationStatus = tt.status
		assert.Equal(t, tt.canVote, u.CanVote(), "%s/%s", tt.role, tt.status)
	}
}

func TestVoterEnrollmentTransition(t *testing.T) {
	u := newCitizen(t)
	require.NoError(t, u.CanEnrollAsVoter())

	u.ApplyVoterEnrollment(now)
	assert.Equal(t, models.RoleVoter, u.Role)
	assert.Equal(t, models.VerificationApproved, u.VerificationStatus)
	assert.True(t, u.CanVote())

	// A voter cannot enroll again.
	assert.True(t, dErrors.HasCode(u.CanEnrollAsVoter(), dErrors.CodeInvariantViolation))
}

func TestCandidacyOpenToCitizensAndVoters(t *testing.T) {
	u := newCitizen(t)
	require.NoError(t, u.CanStandAsCandidate())

	u.ApplyVoterEnrollment(now)
	require.NoError(t, u.CanStandAsCandidate())

	u.ApplyCandidacyApproval(now)
	assert.Equal(t, models.RoleCandidate, u.Role)
	assert.True(t, u.CanVote(), "candidates keep the right to vote")
	assert.True(t, dErrors.HasCode(u.CanStandAsCandidate(), dErrors.CodeInvariantViolation))

	official := newCitizen(t)
	official.Role = models.RoleVoterOfficial
	assert.True(t, dErrors.HasCode(official.CanStandAsCandidate(), dErrors.CodeInvariantViolation))
}

func TestSuspensionRevokesVotingWithoutTouchingRole(t *testing.T) {
	u := newCitizen(t)
	u.ApplyVoterEnrollment(now)
	require.True(t, u.CanVote())

	u.ApplyVerification(models.VerificationSuspended, now.Add(time.Hour))
	assert.Equal(t, models.RoleVoter, u.Role)
	assert.False(t, u.CanVote())
}

func TestManagementPermissions(t *testing.T) {
	u := newCitizen(t)
	assert.False(t, u.CanManageElections())
	assert.False(t, u.CanManageVoters())

	u.Role = models.RoleVoterOfficial
	assert.False(t, u.CanManageElections())
	assert.True(t, u.CanManageVoters())

	u.Role = models.RoleElectoralCommission
	assert.True(t, u.CanManageElections())
	assert.True(t, u.CanManageVoters())
}

func TestAgeAt(t *testing.T) {
	u := newCitizen(t)
	u.DateOfBirth = time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 35, u.AgeAt(time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)), "day before birthday")
	assert.Equal(t, 36, u.AgeAt(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)), "on the birthday")

	u.DateOfBirth = time.Time{}
	assert.Equal(t, 0, u.AgeAt(now))
}

func TestApplicationReviewTransitions(t *testing.T) {
	reviewer := id.NewUserID()
	app := models.NewRoleApplication(id.NewApplicationID(), id.NewUserID(),
		models.ApplicationVoter, models.PartyInfo{}, now)

	require.NoError(t, app.CanReview())
	app.ApplyApproval(reviewer, now)
	assert.Equal(t, models.ApplicationApproved, app.Status)
	assert.Equal(t, reviewer, app.ReviewedBy)
	assert.True(t, dErrors.HasCode(app.CanReview(), dErrors.CodeInvariantViolation))

	rejected := models.NewRoleApplication(id.NewApplicationID(), id.NewUserID(),
		models.ApplicationCandidate, models.PartyInfo{}, now)
	rejected.ApplyRejection(reviewer, "incomplete documents", now)
	assert.Equal(t, models.ApplicationRejected, rejected.Status)
	assert.Equal(t, "incomplete documents", rejected.ReviewNotes)
	assert.True(t, rejected.Status.IsTerminal())
}

func TestApplicationStatusPredicates(t *testing.T) {
	for _, s := range []models.ApplicationStatus{
		models.ApplicationPending, models.ApplicationUnderReview, models.ApplicationDocumentsRequired,
	} {
		assert.True(t, s.Reviewable(), string(s))
		assert.False(t, s.IsTerminal(), string(s))
	}
	for _, s := range []models.ApplicationStatus{models.ApplicationApproved, models.ApplicationRejected} {
		assert.False(t, s.Reviewable(), string(s))
		assert.True(t, s.IsTerminal(), string(s))
	}
}
