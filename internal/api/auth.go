package api

import (
	"context"
	"net/http"
	"strings"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

const (
	MsgNoToken  = "Not authorized, no token"
	MsgNotAdmin = "Not authorized as an admin"
)

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken returns the bearer token of the Authorization header, or ""
// when the header is absent or uses another scheme.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthenticateRequest verifies the bearer token on the request and returns the
// user it was issued for.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, apperr.Auth(MsgNoToken)
	}
	if h.Auth == nil {
		return models.User{}, apperr.Auth(MsgNoToken)
	}
	return h.Auth.Verify(r.Context(), token)
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.Auth(MsgNoToken))
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if !user.IsAdmin {
		writeError(w, r, apperr.Forbidden(MsgNotAdmin))
		return models.User{}, false
	}
	return user, true
}
