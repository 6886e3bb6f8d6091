package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/brightminds/internal/apperror"
	"github.com/sakif/brightminds/internal/model"
)

type fakeRoles map[string]model.Role

func (f fakeRoles) RoleOf(_ context.Context, userID string) (model.Role, error) {
	if userID == "broken" {
		return "", errors.New("store down")
	}
	role, ok := f[userID]
	if !ok {
		return "", apperror.NotFound("user", userID)
	}
	return role, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// chain builds RequireAuth -> LoadCaller -> extra -> handler that records the caller.
func chain(t *testing.T, ts *TokenService, seen *Caller, extra ...func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := CallerFromContext(r.Context())
		*seen = c
		w.WriteHeader(http.StatusNoContent)
	})
	for i := len(extra) - 1; i >= 0; i-- {
		h = extra[i](h)
	}
	roles := fakeRoles{"s1": model.RoleStudent, "t1": model.RoleTeacher}
	return RequireAuth(ts)(LoadCaller(roles, discard)(h))
}

func request(t *testing.T, ts *TokenService, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" {
		token, err := ts.Generate(userID, DefaultTTL)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// =========================================================================
// RequireAuth / LoadCaller TESTS
// =========================================================================

func TestRequireAuth_MissingOrBadHeader(t *testing.T) {
	ts := newTestTokenService(t)
	var seen Caller
	h := chain(t, ts, &seen)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestLoadCaller_RegisteredUser(t *testing.T) {
	ts := newTestTokenService(t)
	var seen Caller
	rec := httptest.NewRecorder()
	chain(t, ts, &seen).ServeHTTP(rec, request(t, ts, "t1"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seen.ID != "t1" || seen.Role != model.RoleTeacher {
		t.Errorf("caller = %+v, want t1/TEACHER", seen)
	}
}

func TestLoadCaller_UnregisteredUserPassesWithoutRole(t *testing.T) {
	ts := newTestTokenService(t)
	var seen Caller
	rec := httptest.NewRecorder()
	chain(t, ts, &seen).ServeHTTP(rec, request(t, ts, "newcomer"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seen.ID != "newcomer" || seen.Registered() {
		t.Errorf("caller = %+v, want unregistered newcomer", seen)
	}
}

func TestLoadCaller_LookupFailure(t *testing.T) {
	ts := newTestTokenService(t)
	var seen Caller
	rec := httptest.NewRecorder()
	chain(t, ts, &seen).ServeHTTP(rec, request(t, ts, "broken"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// =========================================================================
// RequireRole TESTS
// =========================================================================

func TestRequireRole(t *testing.T) {
	ts := newTestTokenService(t)

	tests := []struct {
		userID string
		want   int
	}{
		{"t1", http.StatusNoContent},
		{"s1", http.StatusForbidden},
		{"newcomer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			var seen Caller
			h := chain(t, ts, &seen, RequireRole(model.RoleTeacher))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(t, ts, tt.userID))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWithCaller(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{ID: "s1", Role: model.RoleStudent})

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "s1" {
		t.Errorf("UserIDFromContext() = %q, %v", id, ok)
	}
	c, ok := CallerFromContext(ctx)
	if !ok || c.Role != model.RoleStudent {
		t.Errorf("CallerFromContext() = %+v, %v", c, ok)
	}
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Error("CallerFromContext() on empty context should be false")
	}
}
