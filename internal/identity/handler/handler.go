// Package handler exposes the role transition engine over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"comitia/internal/identity/models"
	"comitia/internal/identity/service"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/httputil"
	"comitia/pkg/requestcontext"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the role transition endpoints. The auth middleware has
// already resolved the actor into the request context.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/enrollments", h.applyForVoter)
	r.Post("/enrollments/{applicationID}/approve", h.approveEnrollment)
	r.Post("/enrollments/{applicationID}/reject", h.rejectEnrollment)

	r.Post("/candidacies", h.applyForCandidate)
	r.Post("/candidacies/{applicationID}/approve", h.approveCandidacy)
	r.Post("/candidacies/{applicationID}/reject", h.rejectCandidacy)

	r.Get("/applications/pending", h.pendingApplications)
}

func (h *Handler) applyForVoter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	app, err := h.svc.ApplyForVoter(ctx, requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) approveEnrollment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[approveEnrollmentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	profile, err := h.svc.ApproveVoterEnrollment(ctx, service.ApproveVoterEnrollmentInput{
		ApplicationID:  appID,
		PollingStation: req.PollingStation,
		Constituency:   req.Constituency,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVoterProfileResponse(profile))
}

func (h *Handler) rejectEnrollment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.svc.RejectVoterEnrollment(ctx, service.RejectVoterEnrollmentInput{
		ApplicationID: appID,
		Notes:         req.Notes,
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applyForCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[applyForCandidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	profile, err := h.svc.ApplyForCandidate(ctx, service.ApplyForCandidateInput{
		UserID: requestcontext.ActorID(ctx),
		Party:  req.party(),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCandidateProfileResponse(profile))
}

func (h *Handler) approveCandidacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.svc.ApproveCandidacyProfile(ctx, appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCandidateProfileResponse(profile))
}

func (h *Handler) rejectCandidacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.svc.RejectCandidacyProfile(ctx, service.RejectCandidacyProfileInput{
		ApplicationID: appID,
		Notes:         req.Notes,
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pendingApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appType, err := models.ParseApplicationType(r.URL.Query().Get("type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	apps, err := h.svc.PendingApplications(ctx, appType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		out = append(out, toApplicationResponse(&apps[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
