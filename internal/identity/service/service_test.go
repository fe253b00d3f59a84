package service_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"comitia/internal/audit"
	auditmemory "comitia/internal/audit/store/memory"
	"comitia/internal/audit/publisher"
	"comitia/internal/identity/models"
	"comitia/internal/identity/service"
	"comitia/internal/identity/store/application"
	"comitia/internal/identity/store/profile"
	"comitia/internal/identity/store/user"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/tx"
	"comitia/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	users    *user.InMemory
	apps     *application.InMemory
	profiles *profile.InMemory
	trail    *auditmemory.InMemoryStore
	svc      *service.Service

	now time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.users = user.NewInMemory()
	s.apps = application.NewInMemory()
	s.profiles = profile.NewInMemory()
	s.trail = auditmemory.NewInMemoryStore()
	s.now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s.svc = service.New(s.users, s.apps, s.profiles, tx.NewMemoryRunner(),
		service.WithAuditPublisher(publisher.New(s.trail)),
	)
}

func (s *ServiceSuite) ctxAs(userID id.UserID) context.Context {
	ctx := requestcontext.WithActorID(context.Background(), userID)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) createUser(role models.Role, nationalID string) *models.User {
	u, err := models.NewUser(id.NewUserID(), "Ama", "Mensah", "ama@example.com", nationalID,
		time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), s.now)
	s.Require().NoError(err)
	u.Role = role
	if role != models.RoleCitizen {
		u.VerificationStatus = models.VerificationApproved
	}
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *ServiceSuite) auditActions() []audit.Action {
	events, err := s.trail.ListAll(context.Background())
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) TestApplyForVoterCreatesPendingApplication() {
	citizen := s.createUser(models.RoleCitizen, "GHA-001")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	s.Equal(models.ApplicationVoter, app.Type)
	s.Equal(models.ApplicationPending, app.Status)
	s.Equal(s.now, app.SubmittedAt)

	// Role must not change at application time.
	stored, err := s.users.FindByID(context.Background(), citizen.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleCitizen, stored.Role)

	s.Contains(s.auditActions(), audit.ActionRoleApplicationSubmitted)
}

func (s *ServiceSuite) TestApplyForVoterForSomeoneElseForbidden() {
	citizen := s.createUser(models.RoleCitizen, "GHA-002")
	other := s.createUser(models.RoleCitizen, "GHA-003")

	_, err := s.svc.ApplyForVoter(s.ctxAs(other.ID), citizen.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestApplyForVoterTwiceConflicts() {
	citizen := s.createUser(models.RoleCitizen, "GHA-004")

	_, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	_, err = s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestApplyForVoterRequiresCitizenRole() {
	voter := s.createUser(models.RoleVoter, "GHA-005")

	_, err := s.svc.ApplyForVoter(s.ctxAs(voter.ID), voter.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestApproveVoterEnrollment() {
	citizen := s.createUser(models.RoleCitizen, "GHA-006")
	officer := s.createUser(models.RoleVoterOfficial, "GHA-007")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	vp, err := s.svc.ApproveVoterEnrollment(s.ctxAs(officer.ID), service.ApproveVoterEnrollmentInput{
		ApplicationID:  app.ID,
		PollingStation: "Station 12",
		Constituency:   "Central",
	})
	s.Require().NoError(err)

	s.Regexp(regexp.MustCompile(`^VTR[0-9A-F]{8}$`), vp.VoterID)
	s.Equal(officer.ID, vp.CompletedBy)

	stored, err := s.users.FindByID(context.Background(), citizen.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleVoter, stored.Role)
	s.Equal(models.VerificationApproved, stored.VerificationStatus)
	s.True(stored.CanVote())

	s.Contains(s.auditActions(), audit.ActionVoterEnrollmentApproved)
}

func (s *ServiceSuite) TestApproveVoterEnrollmentRequiresOfficer() {
	citizen := s.createUser(models.RoleCitizen, "GHA-008")
	bystander := s.createUser(models.RoleCitizen, "GHA-009")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	_, err = s.svc.ApproveVoterEnrollment(s.ctxAs(bystander.ID), service.ApproveVoterEnrollmentInput{
		ApplicationID: app.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Contains(s.auditActions(), audit.ActionAuthorizationDenied)
}

func (s *ServiceSuite) TestApproveVoterEnrollmentTwiceConflicts() {
	citizen := s.createUser(models.RoleCitizen, "GHA-010")
	officer := s.createUser(models.RoleVoterOfficial, "GHA-011")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	_, err = s.svc.ApproveVoterEnrollment(s.ctxAs(officer.ID), service.ApproveVoterEnrollmentInput{ApplicationID: app.ID})
	s.Require().NoError(err)

	_, err = s.svc.ApproveVoterEnrollment(s.ctxAs(officer.ID), service.ApproveVoterEnrollmentInput{ApplicationID: app.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestRejectVoterEnrollmentLeavesRoleUnchanged() {
	citizen := s.createUser(models.RoleCitizen, "GHA-012")
	officer := s.createUser(models.RoleVoterOfficial, "GHA-013")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	err = s.svc.RejectVoterEnrollment(s.ctxAs(officer.ID), service.RejectVoterEnrollmentInput{
		ApplicationID: app.ID,
		Notes:         "address could not be verified",
	})
	s.Require().NoError(err)

	stored, err := s.users.FindByID(context.Background(), citizen.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleCitizen, stored.Role)
	s.False(stored.CanVote())

	// A rejection is not terminal for the user: they may apply again.
	_, err = s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestApplyForCandidateCreatesPendingProfile() {
	citizen := s.createUser(models.RoleCitizen, "GHA-014")

	cp, err := s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{
		UserID: citizen.ID,
		Party:  models.PartyInfo{PoliticalParty: "Unity Party", CampaignSlogan: "Forward Together"},
	})
	s.Require().NoError(err)

	s.Regexp(regexp.MustCompile(`^CND[0-9A-F]{8}$`), cp.CandidateID)
	s.Equal(models.ProfilePending, cp.Status)

	stored, err := s.users.FindByID(context.Background(), citizen.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleCitizen, stored.Role)
}

func (s *ServiceSuite) TestApplyForCandidateWithActiveProfileConflicts() {
	citizen := s.createUser(models.RoleCitizen, "GHA-015")

	_, err := s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{UserID: citizen.ID})
	s.Require().NoError(err)

	_, err = s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{UserID: citizen.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestApproveCandidacyProfile() {
	voter := s.createUser(models.RoleVoter, "GHA-016")
	commissioner := s.createUser(models.RoleElectoralCommission, "GHA-017")

	cp, err := s.svc.ApplyForCandidate(s.ctxAs(voter.ID), service.ApplyForCandidateInput{
		UserID: voter.ID,
		Party:  models.PartyInfo{PoliticalParty: "Unity Party"},
	})
	s.Require().NoError(err)

	app, err := s.apps.FindOpenByUserAndType(context.Background(), voter.ID, models.ApplicationCandidate)
	s.Require().NoError(err)

	approved, err := s.svc.ApproveCandidacyProfile(s.ctxAs(commissioner.ID), app.ID)
	s.Require().NoError(err)
	s.Equal(models.ProfileApproved, approved.Status)
	s.Equal(cp.CandidateID, approved.CandidateID)

	stored, err := s.users.FindByID(context.Background(), voter.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleCandidate, stored.Role)
	s.True(stored.CanVote())

	s.Contains(s.auditActions(), audit.ActionCandidacyProfileApproved)
}

func (s *ServiceSuite) TestApproveCandidacyRequiresCommission() {
	citizen := s.createUser(models.RoleCitizen, "GHA-018")
	officer := s.createUser(models.RoleVoterOfficial, "GHA-019")

	_, err := s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{UserID: citizen.ID})
	s.Require().NoError(err)

	app, err := s.apps.FindOpenByUserAndType(context.Background(), citizen.ID, models.ApplicationCandidate)
	s.Require().NoError(err)

	// Voter officials approve enrollments, not candidacies.
	_, err = s.svc.ApproveCandidacyProfile(s.ctxAs(officer.ID), app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestRejectCandidacyAllowsReapplication() {
	citizen := s.createUser(models.RoleCitizen, "GHA-020")
	commissioner := s.createUser(models.RoleElectoralCommission, "GHA-021")

	_, err := s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{UserID: citizen.ID})
	s.Require().NoError(err)

	app, err := s.apps.FindOpenByUserAndType(context.Background(), citizen.ID, models.ApplicationCandidate)
	s.Require().NoError(err)

	err = s.svc.RejectCandidacyProfile(s.ctxAs(commissioner.ID), service.RejectCandidacyProfileInput{
		ApplicationID: app.ID,
		Notes:         "incomplete manifesto",
	})
	s.Require().NoError(err)

	stored, err := s.users.FindByID(context.Background(), citizen.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleCitizen, stored.Role)

	_, err = s.svc.ApplyForCandidate(s.ctxAs(citizen.ID), service.ApplyForCandidateInput{UserID: citizen.ID})
	s.NoError(err)
}

func (s *ServiceSuite) TestPendingApplicationsFiltersByType() {
	officer := s.createUser(models.RoleVoterOfficial, "GHA-022")
	c1 := s.createUser(models.RoleCitizen, "GHA-023")
	c2 := s.createUser(models.RoleCitizen, "GHA-024")

	_, err := s.svc.ApplyForVoter(s.ctxAs(c1.ID), c1.ID)
	s.Require().NoError(err)
	_, err = s.svc.ApplyForCandidate(s.ctxAs(c2.ID), service.ApplyForCandidateInput{UserID: c2.ID})
	s.Require().NoError(err)

	pending, err := s.svc.PendingApplications(s.ctxAs(officer.ID), models.ApplicationVoter)
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal(c1.ID, pending[0].UserID)
}

// Concurrent approvals of the same application must produce exactly one
// winner; everyone else observes the closed application.
func (s *ServiceSuite) TestConcurrentApprovalsSingleWinner() {
	citizen := s.createUser(models.RoleCitizen, "GHA-025")
	officer := s.createUser(models.RoleVoterOfficial, "GHA-026")

	app, err := s.svc.ApplyForVoter(s.ctxAs(citizen.ID), citizen.ID)
	s.Require().NoError(err)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.ApproveVoterEnrollment(s.ctxAs(officer.ID), service.ApproveVoterEnrollmentInput{
				ApplicationID: app.ID,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		}
	}
	s.Equal(1, wins)
}
