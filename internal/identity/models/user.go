package models

import (
	"strings"
	"time"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

// Role is the single role a user holds at any time. Role and verification
// status are independent axes: changing role never implies approval, and
// approval is a separate officer-gated event.
type Role string

const (
	RoleCitizen             Role = "citizen"
	RoleVoter               Role = "voter"
	RoleCandidate           Role = "candidate"
	RoleVoterOfficial       Role = "voter_official"
	RoleElectoralCommission Role = "electoral_commission"
)

// ParseRole validates a raw role string at a trust boundary.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCitizen:
		return RoleCitizen, nil
	case RoleVoter:
		return RoleVoter, nil
	case RoleCandidate:
		return RoleCandidate, nil
	case RoleVoterOfficial:
		return RoleVoterOfficial, nil
	case RoleElectoralCommission:
		return RoleElectoralCommission, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", raw)
	}
}

// VerificationStatus gates voting eligibility independently of role.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationApproved  VerificationStatus = "approved"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationSuspended VerificationStatus = "suspended"
)

// User is the aggregate root for a platform identity.
//
// Invariants:
//   - Exactly one role at a time
//   - NationalID is unique across users (enforced by the store)
//   - Role transitions happen only through the role transition engine;
//     the citizen→voter and →candidate paths both require an approval
type User struct {
	ID                  id.UserID
	FirstName           string
	LastName            string
	Email               string
	NationalID          string
	DateOfBirth         time.Time
	Role                Role
	VerificationStatus  VerificationStatus
	BiometricRegistered bool
	RegisteredAt        time.Time
	UpdatedAt           time.Time
}

// NewUser constructs a citizen with pending verification, the state every
// account starts in.
func NewUser(userID id.UserID, firstName, lastName, email, nationalID string, dateOfBirth, now time.Time) (*User, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "national id cannot be empty")
	}
	if strings.TrimSpace(firstName) == "" && strings.TrimSpace(lastName) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user requires a name")
	}
	return &User{
		ID:                 userID,
		FirstName:          strings.TrimSpace(firstName),
		LastName:           strings.TrimSpace(lastName),
		Email:              strings.TrimSpace(email),
		NationalID:         nationalID,
		DateOfBirth:        dateOfBirth,
		Role:               RoleCitizen,
		VerificationStatus: VerificationPending,
		RegisteredAt:       now,
		UpdatedAt:          now,
	}, nil
}

// FullName joins the name fields for audit descriptions.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CanVote reports whether the user may cast a ballot: voters and candidates
// can vote, and only once verification has been approved.
func (u *User) CanVote() bool {
	return (u.Role == RoleVoter || u.Role == RoleCandidate) && u.VerificationStatus == VerificationApproved
}

// CanManageElections reports whether the user may create elections,
// review candidacies and publish results.
func (u *User) CanManageElections() bool {
	return u.Role == RoleElectoralCommission
}

// CanManageVoters reports whether the user may approve voter enrollments.
func (u *User) CanManageVoters() bool {
	return u.Role == RoleVoterOfficial || u.Role == RoleElectoralCommission
}

// AgeAt returns the user's age in whole years at the given instant.
// Position eligibility gates use it.
func (u *User) AgeAt(now time.Time) int {
	if u.DateOfBirth.IsZero() {
		return 0
	}
	years := now.Year() - u.DateOfBirth.Year()
	anniversary := u.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// CanEnrollAsVoter checks the precondition for the citizen→voter path.
func (u *User) CanEnrollAsVoter() error {
	if u.Role != RoleCitizen {
		return dErrors.New(dErrors.CodeInvariantViolation, "only citizens can enroll as voters")
	}
	return nil
}

// ApplyVoterEnrollment transitions the user to voter with approved
// verification. Call CanEnrollAsVoter first; the service runs both inside
// one transaction together with the profile creation.
func (u *User) ApplyVoterEnrollment(now time.Time) {
	u.Role = RoleVoter
	u.VerificationStatus = VerificationApproved
	u.UpdatedAt = now
}

// CanStandAsCandidate checks the precondition for the candidacy path.
// Citizens and voters may stand; officials and commissioners may not.
func (u *User) CanStandAsCandidate() error {
	if u.Role != RoleCitizen && u.Role != RoleVoter {
		return dErrors.New(dErrors.CodeInvariantViolation, "only citizens and voters can stand as candidates")
	}
	return nil
}

// ApplyCandidacyApproval transitions the user to candidate with approved
// verification. The role flips here, at approval time, never at
// application time.
func (u *User) ApplyCandidacyApproval(now time.Time) {
	u.Role = RoleCandidate
	u.VerificationStatus = VerificationApproved
	u.UpdatedAt = now
}

// ApplyVerification sets the verification status without touching the role.
func (u *User) ApplyVerification(status VerificationStatus, now time.Time) {
	u.VerificationStatus = status
	u.UpdatedAt = now
}
