package core

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"slotbook/internal/types"
)

// Authenticator resolves a bearer token into an authenticated actor.
// Implementations decide the token format (API keys, session tokens); the
// middleware only cares about the resolved identity.
type Authenticator interface {
	// ResolveToken returns the actor a token belongs to, or an AppError with
	// code auth_token_invalid when the token is unknown or revoked.
	ResolveToken(ctx context.Context, token string) (types.Actor, error)
}

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]struct{}{
	"/health": {},
}

// AuthMiddleware extracts the bearer token from the Authorization header,
// resolves it to an actor, and stores the actor in the request context.
// Requests to public paths pass through unauthenticated. A nil authenticator
// disables authentication entirely, which is only appropriate for local
// development.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if _, public := publicPaths[r.URL.Path]; public {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "missing bearer token")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.Logger.Warn("token resolution failed",
				"path", r.URL.Path,
				"error", err.Error(),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "invalid bearer token")
			return
		}

		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken returns the token portion of an Authorization header of
// the form "Bearer <token>", or "" when the header is absent or malformed.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(resp)
}

// RequireOrgAccess verifies that the authenticated actor belongs to the
// organization named in the request path. Actors may only operate on their
// own organization's resources. Returns the actor when access is granted.
// System actors bypass the tenant check.
func RequireOrgAccess(ctx context.Context, orgID string) (types.Actor, error) {
	actor, ok := types.GetActor(ctx)
	if !ok {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "no authenticated actor", nil)
	}
	if actor.Type == types.ActorTypeSystem {
		return actor, nil
	}
	if actor.OrganizationID != orgID {
		// Report not found rather than forbidden so resource existence is
		// not leaked across tenants.
		return types.Actor{}, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return actor, nil
}
