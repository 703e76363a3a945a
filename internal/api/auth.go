package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/paulaanasilva/mazephases/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

type authConfig struct {
	adminUser    string
	adminPass    string
	operatorUser string
	operatorPass string
	enabled      bool
}

var auth *authConfig

// InitAuth loads credentials through config.ResolveSecret. With no admin
// user configured authentication is disabled. A user without a password
// is a configuration error.
func InitAuth() error {
	adminUser, err := config.ResolveSecret(config.SecretAdminUser)
	if err != nil {
		return err
	}
	operatorUser, err := config.ResolveSecret(config.SecretOperatorUser)
	if err != nil {
		return err
	}

	var adminPass, operatorPass string
	if adminUser != "" {
		if adminPass, err = config.RequireSecret(config.SecretAdminPass); err != nil {
			return fmt.Errorf("admin user set: %w", err)
		}
	}
	if operatorUser != "" {
		if operatorPass, err = config.RequireSecret(config.SecretOperatorPass); err != nil {
			return fmt.Errorf("operator user set: %w", err)
		}
	}

	auth = &authConfig{
		adminUser:    adminUser,
		adminPass:    adminPass,
		operatorUser: operatorUser,
		operatorPass: operatorPass,
		enabled:      adminUser != "",
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate returns the caller's role, or "" for bad credentials.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
		return RoleAdmin
	}
	if auth.operatorUser != "" &&
		secureCompare(user, auth.operatorUser) && secureCompare(pass, auth.operatorPass) {
		return RoleOperator
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="mazephases"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin or operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
