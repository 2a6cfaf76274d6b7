package auth

import (
	"errors"
	"fmt"

	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// ErrInvalidCredentials is returned for any failed authentication attempt.
// The reason (unknown user, wrong password) is deliberately not disclosed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Principal is an authenticated identity, not yet a stored user: the web
// layer maps it onto a user record on first sight.
type Principal struct {
	Name string
	Role types.UserRole
}

// Authenticator verifies a username/password pair against a back-end.
type Authenticator interface {
	Authenticate(username, password string) (*Principal, error)
}

// New builds the authenticator selected by the configuration.
func New(cfg *config.Config) (Authenticator, error) {
	switch cfg.AuthType {
	case "text":
		return NewTextAuthenticator(cfg.AuthFile), nil
	case "ldap":
		return NewLDAPAuthenticator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown auth-type %q", cfg.AuthType)
	}
}

func parseRole(s string) (types.UserRole, error) {
	switch types.UserRole(s) {
	case types.UserRoleAdmin, types.UserRoleUser, types.UserRoleGuest:
		return types.UserRole(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
