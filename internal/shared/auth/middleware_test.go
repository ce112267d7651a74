package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func protectedHandler(t *testing.T, captured **User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, time.Hour, 42, "Maria", RoleOperative, 5)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var captured *User
	handler := Middleware(testSecret)(protectedHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil {
		t.Fatal("Expected user in context")
	}
	if captured.ID != 42 || captured.Name != "Maria" || captured.Role != RoleOperative || captured.AreaID != 5 {
		t.Errorf("Unexpected user: %+v", captured)
	}
	if captured.SessionID == "" {
		t.Error("Expected session id from token jti")
	}
}

func TestMiddlewareRejections(t *testing.T) {
	expired, err := IssueToken(testSecret, -time.Minute, 42, "Maria", RoleOperative, 5)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	wrongKey, err := IssueToken("other-secret", time.Hour, 42, "Maria", RoleOperative, 5)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	badRole, err := IssueToken(testSecret, time.Hour, 42, "Maria", Role(9), 5)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Token abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong signing key", "Bearer " + wrongKey},
		{"invalid role claim", "Bearer " + badRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *User
			handler := Middleware(testSecret)(protectedHandler(t, &captured))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
			if captured != nil {
				t.Error("Handler should not have run")
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	token, err := IssueToken(testSecret, time.Hour, 42, "Maria", RoleOperative, 5)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var captured *User
	allow := Middleware(testSecret)(RequireRoles(RoleOperative)(protectedHandler(t, &captured)))
	deny := Middleware(testSecret)(RequireRoles(RoleAdministrator)(protectedHandler(t, &captured)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	allow.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for allowed role, got %d", rec.Code)
	}

	// Role mismatch is 403, not 401: the session stays valid.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	deny.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for denied role, got %d", rec.Code)
	}
}

func TestCanActOnArea(t *testing.T) {
	tests := []struct {
		name string
		user User
		area int64
		want bool
	}{
		{"operative own area", User{Role: RoleOperative, AreaID: 5}, 5, true},
		{"operative other area", User{Role: RoleOperative, AreaID: 5}, 6, false},
		{"area coordinator own area", User{Role: RoleAreaCoordinator, AreaID: 5}, 5, true},
		{"general coordinator has no acting area", User{Role: RoleGeneralCoordinator}, 5, false},
		{"administrator has no acting area", User{Role: RoleAdministrator}, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.CanActOnArea(tt.area); got != tt.want {
				t.Errorf("CanActOnArea(%d) = %v, want %v", tt.area, got, tt.want)
			}
		})
	}
}
