package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"soundcrate/internal/api"
	"soundcrate/internal/apperr"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/observability/metrics"
)

// protectedPrefixes accept anonymous reads but require a token for writes.
var protectedPrefixes = []string{"/api/artists", "/api/albums", "/api/songs"}

// requiresAuthentication reports whether r must carry a valid bearer token.
// Admin checks happen later in the handlers.
func requiresAuthentication(r *http.Request) bool {
	path := r.URL.Path
	if path == "/api/users/profile" || strings.HasPrefix(path, "/api/users/profile/") {
		return true
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	for _, prefix := range protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// authMiddleware resolves the bearer token into the request user. Optional
// routes proceed anonymously when the token is missing or no longer valid.
func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required := requiresAuthentication(r)
		if api.ExtractToken(r) == "" {
			if required {
				api.WriteMessage(w, http.StatusUnauthorized, api.MsgNoToken)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := handler.AuthenticateRequest(r)
		if err != nil {
			if !required && errors.Is(err, apperr.ErrAuth) {
				next.ServeHTTP(w, r)
				return
			}
			api.WriteError(w, r, err)
			return
		}

		ctx := api.ContextWithUser(r.Context(), user)
		ctx = logging.ContextWithUserID(ctx, user.ID)
		ctx = logging.ContextWithLogger(ctx, logging.LoggerFromContext(ctx).With("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// auditMiddleware records every state-changing API call with its outcome. It
// sits inside authMiddleware so the entry carries the caller's user_id.
func auditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		recorder := metrics.NewResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.Status(),
			"remote_ip", extractClientIP(r),
		}
		logging.WithContext(r.Context(), logger).Info("audit", attrs...)
	})
}

// recoverMiddleware turns a handler panic into a generic 500.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			logging.LoggerFromContext(r.Context()).Error("handler panicked",
				"path", r.URL.Path,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			api.WriteMessage(w, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func extractClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
