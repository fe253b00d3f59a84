// Package handler exposes the election lifecycle engine over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"comitia/internal/election/models"
	"comitia/internal/election/service"
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

// Routes mounts the election endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.createElection)
	r.Get("/", h.listElections)
	r.Get("/{electionID}", h.getElection)
	r.Put("/{electionID}/status", h.updateStatus)

	r.Post("/{electionID}/candidates", h.registerCandidate)
	r.Post("/candidates/{candidacyID}/approve", h.approveCandidate)
	r.Post("/candidates/{candidacyID}/reject", h.rejectCandidate)
	r.Post("/candidates/{candidacyID}/withdraw", h.withdrawCandidate)

	r.Get("/{electionID}/ballot", h.getBallot)
	r.Get("/{electionID}/eligibility", h.checkEligibility)
	r.Post("/{electionID}/results/tabulate", h.tabulateResults)
	r.Post("/{electionID}/results/publish", h.publishResults)
	r.Get("/{electionID}/results", h.getResults)
}

func electionIDParam(r *http.Request) (id.ElectionID, error) {
	return id.ParseElectionID(chi.URLParam(r, "electionID"))
}

func candidacyIDParam(r *http.Request) (id.CandidacyID, error) {
	return id.ParseCandidacyID(chi.URLParam(r, "candidacyID"))
}

func (h *Handler) createElection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[createElectionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	election, err := h.svc.CreateElection(ctx, req.toInput())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toElectionResponse(election))
}

func (h *Handler) listElections(w http.ResponseWriter, r *http.Request) {
	elections, err := h.svc.ListElections(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]electionResponse, 0, len(elections))
	for i := range elections {
		out = append(out, toElectionResponse(&elections[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) getElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	election, err := h.svc.GetElection(r.Context(), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toElectionResponse(election))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	status, err := models.ParseElectionStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	election, err := h.svc.UpdateElectionStatus(ctx, electionID, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toElectionResponse(election))
}

func (h *Handler) registerCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[registerCandidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	positionID, err := id.ParsePositionID(req.PositionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	candidacy, err := h.svc.RegisterCandidate(ctx, service.RegisterCandidateInput{
		ElectionID: electionID,
		PositionID: positionID,
		Campaign: models.PartyCampaign{
			PoliticalParty: req.PoliticalParty,
			CampaignSlogan: req.CampaignSlogan,
			Manifesto:      req.Manifesto,
		},
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCandidacyResponse(candidacy))
}

func (h *Handler) approveCandidate(w http.ResponseWriter, r *http.Request) {
	candidacyID, err := candidacyIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	candidacy, err := h.svc.ApproveCandidate(r.Context(), candidacyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCandidacyResponse(candidacy))
}

func (h *Handler) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	candidacyID, err := candidacyIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[rejectCandidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.svc.RejectCandidate(ctx, service.RejectCandidateInput{
		CandidacyID: candidacyID,
		Reason:      req.Reason,
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withdrawCandidate(w http.ResponseWriter, r *http.Request) {
	candidacyID, err := candidacyIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.WithdrawCandidate(r.Context(), candidacyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getBallot(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ballot, err := h.svc.GetBallot(r.Context(), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ballot)
}

func (h *Handler) checkEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verdict, err := h.svc.CheckEligibility(ctx, requestcontext.ActorID(ctx), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEligibilityResponse(verdict))
}

func (h *Handler) tabulateResults(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.svc.TabulateResults(r.Context(), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResultResponse(res))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) publishResults(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	election, err := h.svc.PublishResults(r.Context(), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toElectionResponse(election))
}

func (h *Handler) getResults(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.svc.GetResults(r.Context(), electionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResultResponse(res))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
