package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	identitymodels "comitia/internal/identity/models"
	"comitia/internal/token"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/httputil"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates the caller's correlation ID or mints one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}

// RequestTime stamps each request with a single instant so every window
// predicate evaluated during the request sees the same "now".
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), time.Now().UTC())))
	})
}

// ClientMetadata captures the client IP and User-Agent for audit
// enrichment.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserLoader is the slice of identity persistence the auth middleware
// needs.
type UserLoader interface {
	FindByID(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
}

// Auth validates the bearer token and resolves the actor. The token's
// acting-role claim is checked against the actor's STORED role; a token
// issued for a role the user no longer holds is rejected. The resolved
// actor and role go into the request context.
func Auth(issuer *token.Issuer, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			actorID, actingRole, err := issuer.Validate(raw)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx := r.Context()
			actor, err := users.FindByID(ctx, actorID)
			if errors.Is(err, sentinel.ErrNotFound) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "unknown actor"))
				return
			}
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load actor"))
				return
			}
			if actingRole != string(actor.Role) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token role does not match the account's current role"))
				return
			}

			ctx = requestcontext.WithActorID(ctx, actorID)
			ctx = requestcontext.WithActingRole(ctx, actingRole)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}
