package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"auth-serverless/internal/rbac"
	"auth-serverless/internal/token"
)

type contextKey string

const subjectContextKey contextKey = "auth.subject"

// SubjectFromContext returns the username of the verified access token, if
// the request passed through Middleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok
}

// Middleware requires a valid bearer access token and stores its subject in
// the request context. Expired, malformed, and refresh-typed tokens are all
// rejected with the same status.
func Middleware(verifier *token.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims, err := verifier.VerifyAccess(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PermissionChecker resolves the effective permission set for a username.
// *Service satisfies it.
type PermissionChecker interface {
	Permissions(ctx context.Context, username string) (rbac.PermissionSet, error)
}

// RequirePermission gates a handler behind one permission. It must run inside
// Middleware so the subject is already verified.
func RequirePermission(checker PermissionChecker, permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := SubjectFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		set, err := checker.Permissions(r.Context(), subject)
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to resolve permissions")
			return
		}
		if !set.Has(permission) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}

		next.ServeHTTP(w, r)
	})
}
