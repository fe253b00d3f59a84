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

// ApplyForCandidateInput carries the campaign fields submitted with a
// candidacy application.
type ApplyForCandidateInput struct {
	UserID id.UserID
	Party  models.PartyInfo
}

// ApplyForCandidate submits a candidacy application for the acting user.
// Citizens and voters may apply. The pending candidate profile with its CND
// credential is created immediately, but the role does not change until the
// commission approves.
func (s *Service) ApplyForCandidate(ctx context.Context, in ApplyForCandidateInput) (*models.CandidateProfile, error) {
	ctx, span := s.tracer.Start(ctx, "identity.ApplyForCandidate",
		trace.WithAttributes(attribute.String("user_id", in.UserID.String())))
	defer span.End()

	actorID := requestcontext.ActorID(ctx)
	if actorID != in.UserID {
		return nil, dErrors.New(dErrors.CodeForbidden, "users submit candidacy applications for themselves")
	}

	var profile *models.CandidateProfile
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByID(ctx, in.UserID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load user")
		}
		if err := user.CanStandAsCandidate(); err != nil {
			return err
		}

		if existing, err := s.profiles.FindCandidateProfile(ctx, in.UserID); err == nil && existing.Active() {
			return dErrors.New(dErrors.CodeConflict, "a candidacy is already pending or approved")
		} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check candidate profile")
		}
		if _, err := s.apps.FindOpenByUserAndType(ctx, in.UserID, models.ApplicationCandidate); err == nil {
			return dErrors.New(dErrors.CodeConflict, "a candidacy application is already open")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check open applications")
		}

		now := requestcontext.Now(ctx)
		app := models.NewRoleApplication(id.NewApplicationID(), in.UserID, models.ApplicationCandidate, in.Party, now)
		if err := s.apps.Create(ctx, app); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a candidacy application is already open")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create application")
		}

		profile = models.NewCandidateProfile(in.UserID, "", in.Party, now)
		if err := s.createCandidateProfile(ctx, profile); err != nil {
			return err
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionRoleApplicationSubmitted,
			Description:   fmt.Sprintf("%s applied for candidacy (%s)", user.FullName(), in.Party.PoliticalParty),
			ActorID:       actorID,
			SubjectID:     in.UserID,
			ApplicationID: app.ID,
			Metadata: map[string]string{
				"type":  string(models.ApplicationCandidate),
				"party": in.Party.PoliticalParty,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncApplicationsSubmitted(string(models.ApplicationCandidate))
	}
	s.logger.InfoContext(ctx, "candidacy application submitted",
		"user_id", in.UserID, "candidate_id", profile.CandidateID)
	return profile, nil
}

// ApproveCandidacyProfile flips the applicant to candidate. The application
// closes, the profile is approved and the role changes, all in one
// transaction with the audit entry. Only the electoral commission decides
// candidacies.
func (s *Service) ApproveCandidacyProfile(ctx context.Context, appID id.ApplicationID) (*models.CandidateProfile, error) {
	ctx, span := s.tracer.Start(ctx, "identity.ApproveCandidacyProfile",
		trace.WithAttributes(attribute.String("application_id", appID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx)
	if err != nil {
		return nil, err
	}

	var profile *models.CandidateProfile
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		app, user, err := s.loadReviewable(ctx, appID, models.ApplicationCandidate)
		if err != nil {
			return err
		}
		if err := user.CanStandAsCandidate(); err != nil {
			return err
		}

		profile, err = s.profiles.FindCandidateProfile(ctx, app.UserID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "candidate profile not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load candidate profile")
		}
		if err := profile.CanDecide(); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		app.ApplyApproval(commissioner.ID, now)
		if err := s.apps.Update(ctx, app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update application")
		}

		profile.ApplyApproval(commissioner.ID, now)
		if err := s.profiles.UpdateCandidateProfile(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update candidate profile")
		}

		user.ApplyCandidacyApproval(now)
		if err := s.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update user")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionCandidacyProfileApproved,
			Description:   fmt.Sprintf("candidacy approved for %s", user.FullName()),
			ActorID:       commissioner.ID,
			SubjectID:     user.ID,
			ApplicationID: app.ID,
			Metadata:      map[string]string{"candidate_id": profile.CandidateID},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncDecisions(string(models.ApplicationCandidate), "approved")
	}
	s.logger.InfoContext(ctx, "candidacy approved",
		"application_id", appID, "candidate_id", profile.CandidateID, "commissioner_id", commissioner.ID)
	return profile, nil
}

// RejectCandidacyProfileInput carries the commission's rejection.
type RejectCandidacyProfileInput struct {
	ApplicationID id.ApplicationID
	Notes         string
}

// RejectCandidacyProfile closes the application and marks the profile
// rejected. The applicant's role does not change and a rejected profile does
// not block a later application.
func (s *Service) RejectCandidacyProfile(ctx context.Context, in RejectCandidacyProfileInput) error {
	ctx, span := s.tracer.Start(ctx, "identity.RejectCandidacyProfile",
		trace.WithAttributes(attribute.String("application_id", in.ApplicationID.String())))
	defer span.End()

	commissioner, err := s.requireCommissioner(ctx)
	if err != nil {
		return err
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		app, user, err := s.loadReviewable(ctx, in.ApplicationID, models.ApplicationCandidate)
		if err != nil {
			return err
		}

		profile, err := s.profiles.FindCandidateProfile(ctx, app.UserID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "candidate profile not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load candidate profile")
		}
		if err := profile.CanDecide(); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		app.ApplyRejection(commissioner.ID, in.Notes, now)
		if err := s.apps.Update(ctx, app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update application")
		}

		profile.ApplyRejection(commissioner.ID, now)
		if err := s.profiles.UpdateCandidateProfile(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update candidate profile")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.ActionCandidacyProfileRejected,
			Description:   fmt.Sprintf("candidacy rejected for %s", user.FullName()),
			ActorID:       commissioner.ID,
			SubjectID:     user.ID,
			ApplicationID: app.ID,
			Metadata:      map[string]string{"notes": in.Notes},
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncDecisions(string(models.ApplicationCandidate), "rejected")
	}
	s.logger.InfoContext(ctx, "candidacy rejected",
		"application_id", in.ApplicationID, "commissioner_id", commissioner.ID)
	return nil
}

// createCandidateProfile generates the CND credential and retries on
// collision, mirroring the voter path.
func (s *Service) createCandidateProfile(ctx context.Context, profile *models.CandidateProfile) error {
	profile.CandidateID = id.NewCredentialID(id.CredentialCandidate, profile.UserID)
	for attempt := 0; attempt < credentialAttempts; attempt++ {
		err := s.profiles.CreateCandidateProfile(ctx, profile)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create candidate profile")
		}
		if s.metrics != nil {
			s.metrics.IncCredentialRetries()
		}
		retry, err := id.RetryCredentialID(id.CredentialCandidate)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "regenerate candidate credential")
		}
		profile.CandidateID = retry
	}
	return dErrors.New(dErrors.CodeInternal, "could not allocate a unique candidate credential")
}
