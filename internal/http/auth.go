package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"comitia/internal/token"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/httputil"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

// AuthHandler exchanges an upstream-authenticated identity for an
// acting-role token. Primary authentication (passwords, sessions, identity
// proofing) is the deployment's identity provider's job; this endpoint
// only binds an already-verified user ID to its current stored role for a
// bounded lifetime.
type AuthHandler struct {
	issuer *token.Issuer
	users  UserLoader
	logger *slog.Logger
}

func NewAuthHandler(issuer *token.Issuer, users UserLoader, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{issuer: issuer, users: users, logger: logger}
}

type issueTokenRequest struct {
	UserID string `json:"user_id"`
}

func (r *issueTokenRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
}

func (r *issueTokenRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	return nil
}

type issueTokenResponse struct {
	Token      string `json:"token"`
	ActingRole string `json:"acting_role"`
}

// IssueToken mints a token for the user's CURRENT stored role. The role is
// never taken from the request: a caller cannot ask to act as something
// the record does not grant.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[issueTokenRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.users.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown user"))
		return
	}
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load user"))
		return
	}

	signed, err := h.issuer.Issue(user.ID, string(user.Role), requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issueTokenResponse{
		Token:      signed,
		ActingRole: string(user.Role),
	})
}
