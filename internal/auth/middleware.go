package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
)

// contextKey keeps our context values private to this package.
type contextKey string

const (
	userIDKey contextKey = "userID"
	callerKey contextKey = "caller"
)

// Caller is the verified identity of a request. Role is empty until the user
// has registered a profile.
type Caller struct {
	ID   string
	Role model.Role
}

func (c Caller) Registered() bool { return c.Role != "" }

// RoleResolver looks up the registered role of a user id.
// service.UserService implements it.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID string) (model.Role, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's user id in the context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}
			userID, err := tokens.Validate(token)
			if err != nil {
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadCaller resolves the role of the authenticated user. It must run after
// RequireAuth. A user without a profile continues with an empty role so the
// registration route can still be reached.
func LoadCaller(roles RoleResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}

			caller := Caller{ID: userID}
			role, err := roles.RoleOf(r.Context(), userID)
			switch {
			case err == nil:
				caller.Role = role
			case errors.Is(err, apperror.ErrNotFound):
			default:
				logger.Error("resolving caller role failed",
					slog.String("userId", userID),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets only callers with one of roles through.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, "forbidden", "this action is not allowed for your role")
		})
	}
}

// UserIDFromContext returns the id stored by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// CallerFromContext returns the identity stored by LoadCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok && c.ID != ""
}

// WithCaller returns a context carrying c. Handler tests use it to skip the
// token layer.
func WithCaller(ctx context.Context, c Caller) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.ID)
	return context.WithValue(ctx, callerKey, c)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
