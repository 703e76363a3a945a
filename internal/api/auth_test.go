package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulaanasilva/mazephases/internal/config"
)

func resetAuth() {
	auth = nil
}

func enableTestAuth() {
	auth = &authConfig{
		adminUser:    "admin",
		adminPass:    "secret",
		operatorUser: "operator",
		operatorPass: "opsecret",
		enabled:      true,
	}
}

func clearAuthEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.SecretAdminUser, config.SecretAdminPass,
		config.SecretOperatorUser, config.SecretOperatorPass,
	} {
		t.Setenv(name, "")
		t.Setenv(name+"_FILE", "")
	}
}

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestInitAuthDisabledWithoutAdmin(t *testing.T) {
	resetAuth()
	clearAuthEnv(t)

	if err := InitAuth(); err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	if IsAuthEnabled() {
		t.Error("auth should be disabled when no admin user is set")
	}

	called := false
	w := httptest.NewRecorder()
	RequireAdmin(okHandler(&called))(w, httptest.NewRequest(http.MethodPost, "/phases/reload", nil))

	if !called || w.Code != http.StatusOK {
		t.Errorf("handler should run when auth is disabled, code=%d", w.Code)
	}
}

func TestInitAuthUserWithoutPassword(t *testing.T) {
	resetAuth()
	clearAuthEnv(t)
	t.Setenv(config.SecretAdminUser, "admin")

	err := InitAuth()
	if !errors.Is(err, config.ErrSecretMissing) {
		t.Errorf("expected ErrSecretMissing, got %v", err)
	}
}

func TestInitAuthFromEnv(t *testing.T) {
	resetAuth()
	clearAuthEnv(t)
	t.Setenv(config.SecretAdminUser, "admin")
	t.Setenv(config.SecretAdminPass, "secret")
	defer resetAuth()

	if err := InitAuth(); err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	if !IsAuthEnabled() {
		t.Fatal("auth should be enabled")
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.SetBasicAuth("admin", "secret")
	if role := authenticate(req); role != RoleAdmin {
		t.Errorf("role = %q, want admin", role)
	}
}

func TestAuthEnabledRequiresCredentials(t *testing.T) {
	enableTestAuth()
	defer resetAuth()

	called := false
	w := httptest.NewRecorder()
	RequireAnyRole(okHandler(&called))(w, httptest.NewRequest(http.MethodGet, "/events", nil))

	if called {
		t.Error("handler should not be called without credentials")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") != `Basic realm="mazephases"` {
		t.Errorf("unexpected challenge %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestRoles(t *testing.T) {
	enableTestAuth()
	defer resetAuth()

	tests := []struct {
		name       string
		user, pass string
		adminOnly  bool
		wantCode   int
	}{
		{"admin on any", "admin", "secret", false, http.StatusOK},
		{"operator on any", "operator", "opsecret", false, http.StatusOK},
		{"admin on admin", "admin", "secret", true, http.StatusOK},
		{"operator on admin", "operator", "opsecret", true, http.StatusForbidden},
		{"wrong password", "admin", "nope", false, http.StatusUnauthorized},
		{"unknown user", "mallory", "secret", false, http.StatusUnauthorized},
		{"operator password for admin", "admin", "opsecret", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := RequireAnyRole(okHandler(&called))
			if tt.adminOnly {
				h = RequireAdmin(okHandler(&called))
			}

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.SetBasicAuth(tt.user, tt.pass)
			w := httptest.NewRecorder()
			h(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if called != (tt.wantCode == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}

func TestOperatorDisabledWhenUnset(t *testing.T) {
	auth = &authConfig{adminUser: "admin", adminPass: "secret", enabled: true}
	defer resetAuth()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.SetBasicAuth("", "")
	if role := authenticate(req); role != "" {
		t.Errorf("empty credentials must not match the unset operator, got %q", role)
	}
}

func TestSecureCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "ab", false},
		{"", "", true},
	}
	for _, tt := range tests {
		if got := secureCompare(tt.a, tt.b); got != tt.want {
			t.Errorf("secureCompare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
