package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// credentialAttempts bounds the collision-retry loop when generating
// credential IDs. The space is 16^8 per prefix; hitting the bound means the
// store is broken, not unlucky.
const credentialAttempts = 5

// ApplyForVoter submits a voter enrollment application for the acting user.
// Only citizens may apply, and only one application per type may be open at
// a time.
func (s *Service) ApplyForVoter(ctx context.Context, userID id.UserID) (*models.RoleApplication, error) {
	ctx, span := s.tracer.Start(ctx, "identity.ApplyForVoter",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	actorID := requestcontext.ActorID(ctx)
	if actorID != userID {
		return nil, dErrors.New(dErrors.CodeForbidden, "users submit enrollment applications for themselves")
	}

	var app *models.RoleApplication
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByID(ctx, userID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load user")
		}
		if err := user.CanEnrollAsVoter(); err != nil {
			return err
		}

		if _, err := s.apps.FindOpenByUserAndType(ctx, userID, models.ApplicationVoter); err == nil {
			return dErrors.New(dErrors.CodeConflict, "a voter enrollment application is already open")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check open applications")
		}

		now := requestcontext.Now(ctx)
		app = models.NewRoleApplication(id.NewApplicationID(), userID, models.ApplicationVoter, models.PartyInfo{}, now)
		if err := s.apps.Create(ctx, app); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a voter enrollment application is already open")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create application")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionRoleApplicationSubmitted,
			Description:   fmt.Sprintf("%s applied for voter enrollment", user.FullName()),
			ActorID:       actorID,
			SubjectID:     userID,
			ApplicationID: app.ID,
			Metadata:      map[string]string{"type": string(models.ApplicationVoter)},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncApplicationsSubmitted(string(models.ApplicationVoter))
	}
	s.logger.InfoContext(ctx, "voter enrollment application submitted",
		"user_id", userID, "application_id", app.ID)
	return app, nil
}

// ApproveVoterEnrollmentInput carries the officer's approval decision.
// Polling station and constituency go on the voter card.
type ApproveVoterEnrollmentInput struct {
	ApplicationID  id.ApplicationID
	PollingStation string
	Constituency   string
}

// ApproveVoterEnrollment flips a citizen to voter. Atomically, in one
// transaction: the application closes, the voter profile with its VTR
// credential is created, the role and verification status change, and the
// audit entry is appended. The application status is re-checked inside the
// transaction so a racing second approver gets a conflict.
func (s *Service) ApproveVoterEnrollment(ctx context.Context, in ApproveVoterEnrollmentInput) (*models.VoterProfile, error) {
	ctx, span := s.tracer.Start(ctx, "identity.ApproveVoterEnrollment",
		trace.WithAttributes(attribute.String("application_id", in.ApplicationID.String())))
	defer span.End()

	officer, err := s.requireVoterManager(ctx)
	if err != nil {
		return nil, err
	}

	var profile *models.VoterProfile
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		app, user, err := s.loadReviewable(ctx, in.ApplicationID, models.ApplicationVoter)
		if err != nil {
			return err
		}
		if err := user.CanEnrollAsVoter(); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		app.ApplyApproval(officer.ID, now)
		if err := s.apps.Update(ctx, app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update application")
		}

		profile = &models.VoterProfile{
			UserID:         user.ID,
			PollingStation: in.PollingStation,
			Constituency:   in.Constituency,
			CompletedBy:    officer.ID,
			CreatedAt:      now,
		}
		if err := s.createVoterProfile(ctx, profile); err != nil {
			return err
		}

		user.ApplyVoterEnrollment(now)
		if err := s.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update user")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionVoterEnrollmentApproved,
			Description:   fmt.Sprintf("voter enrollment approved for %s", user.FullName()),
			ActorID:       officer.ID,
			SubjectID:     user.ID,
			ApplicationID: app.ID,
			Metadata: map[string]string{
				"voter_id":        profile.VoterID,
				"polling_station": profile.PollingStation,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncDecisions(string(models.ApplicationVoter), "approved")
	}
	s.logger.InfoContext(ctx, "voter enrollment approved",
		"application_id", in.ApplicationID, "voter_id", profile.VoterID, "officer_id", officer.ID)
	return profile, nil
}

// RejectVoterEnrollmentInput carries the officer's rejection and its notes.
type RejectVoterEnrollmentInput struct {
	ApplicationID id.ApplicationID
	Notes         string
}

// RejectVoterEnrollment closes the application without touching the user.
// The subject stays a citizen and may apply again.
func (s *Service) RejectVoterEnrollment(ctx context.Context, in RejectVoterEnrollmentInput) error {
	ctx, span := s.tracer.Start(ctx, "identity.RejectVoterEnrollment",
		trace.WithAttributes(attribute.String("application_id", in.ApplicationID.String())))
	defer span.End()

	officer, err := s.requireVoterManager(ctx)
	if err != nil {
		return err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		app, user, err := s.loadReviewable(ctx, in.ApplicationID, models.ApplicationVoter)
		if err != nil {
			return err
		}

		app.ApplyRejection(officer.ID, in.Notes, requestcontext.Now(ctx))
		if err := s.apps.Update(ctx, app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update application")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionVoterEnrollmentRejected,
			Description:   fmt.Sprintf("voter enrollment rejected for %s", user.FullName()),
			ActorID:       officer.ID,
			SubjectID:     user.ID,
			ApplicationID: app.ID,
			Metadata:      map[string]string{"notes": in.Notes},
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncDecisions(string(models.ApplicationVoter), "rejected")
	}
	s.logger.InfoContext(ctx, "voter enrollment rejected",
		"application_id", in.ApplicationID, "officer_id", officer.ID)
	return nil
}

// PendingApplications lists the review queue for the given type.
func (s *Service) PendingApplications(ctx context.Context, appType models.ApplicationType) ([]models.RoleApplication, error) {
	switch appType {
	case models.ApplicationVoter:
		if _, err := s.requireVoterManager(ctx); err != nil {
			return nil, err
		}
	case models.ApplicationCandidate:
		if _, err := s.requireCommissioner(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown application type %q", appType)
	}

	apps, err := s.apps.ListByStatus(ctx, models.ApplicationPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list applications")
	}
	filtered := apps[:0]
	for _, a := range apps {
		if a.Type == appType {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// createVoterProfile generates the VTR credential and retries on collision.
// The first attempt derives from the user ID so voter cards are stable when
// nothing collides.
func (s *Service) createVoterProfile(ctx context.Context, profile *models.VoterProfile) error {
	profile.VoterID = id.NewCredentialID(id.CredentialVoter, profile.UserID)
	for attempt := 0; attempt < credentialAttempts; attempt++ {
		err := s.profiles.CreateVoterProfile(ctx, profile)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create voter profile")
		}
		if s.metrics != nil {
			s.metrics.IncCredentialRetries()
		}
		retry, err := id.RetryCredentialID(id.CredentialVoter)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "regenerate voter credential")
		}
		profile.VoterID = retry
	}
	return dErrors.New(dErrors.CodeInternal, "could not allocate a unique voter credential")
}

// loadReviewable fetches an application of the expected type together with
// its subject, verifying it is still open for a decision.
func (s *Service) loadReviewable(ctx context.Context, appID id.ApplicationID, appType models.ApplicationType) (*models.RoleApplication, *models.User, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "load application")
	}
	if app.Type != appType {
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidInput, "application %s is not a %s application", appID, appType)
	}
	if err := app.CanReview(); err != nil {
		return nil, nil, err
	}

	user, err := s.users.FindByID(ctx, app.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "applicant not found")
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "load applicant")
	}
	return app, user, nil
}

// requireVoterManager loads the actor and checks the voter-management
// permission against the stored record, not the token claim. Denials are
// audited.
func (s *Service) requireVoterManager(ctx context.Context) (*models.User, error) {
	return s.requireActor(ctx, "manage voter enrollments", (*models.User).CanManageVoters)
}

// requireCommissioner checks the election-management permission.
func (s *Service) requireCommissioner(ctx context.Context) (*models.User, error) {
	return s.requireActor(ctx, "manage candidacies", (*models.User).CanManageElections)
}

func (s *Service) requireActor(ctx context.Context, action string, allowed func(*models.User) bool) (*models.User, error) {
	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	actor, err := s.users.FindByID(ctx, actorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown actor")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load actor")
	}
	if !allowed(actor) {
		if emitErr := s.emit(ctx, audit.Event{
			Action:      audit.ActionAuthorizationDenied,
			Description: fmt.Sprintf("%s denied: insufficient role %s", action, actor.Role),
			ActorID:     actorID,
		}); emitErr != nil {
			s.logger.ErrorContext(ctx, "audit denial failed", "error", emitErr)
		}
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not %s", actor.Role, action)
	}
	return actor, nil
}
