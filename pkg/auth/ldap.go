package auth

import (
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/config"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// LDAPAuthenticator binds against an LDAP directory and derives the role
// from the account's gidNumber.
type LDAPAuthenticator struct {
	serverURI string
	baseDN    string
	adminGID  int
	userGID   int
	guestGID  int
	logger    zerolog.Logger
}

// NewLDAPAuthenticator creates an LDAP authenticator from the ldap-*
// configuration options.
func NewLDAPAuthenticator(cfg *config.Config) *LDAPAuthenticator {
	return &LDAPAuthenticator{
		serverURI: cfg.LDAPServerURI,
		baseDN:    cfg.LDAPBaseDN,
		adminGID:  cfg.LDAPAdminGID,
		userGID:   cfg.LDAPUserGID,
		guestGID:  cfg.LDAPGuestGID,
		logger:    log.WithComponent("auth"),
	}
}

func (a *LDAPAuthenticator) Authenticate(username, password string) (*Principal, error) {
	conn, err := ldap.DialURL(a.serverURI)
	if err != nil {
		return nil, fmt.Errorf("cannot reach LDAP server: %w", err)
	}
	defer conn.Close()

	userDN := fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(username), a.baseDN)
	if err := conn.Bind(userDN, password); err != nil {
		a.logger.Debug().Str("user", username).Err(err).Msg("LDAP bind failed")
		return nil, ErrInvalidCredentials
	}

	req := ldap.NewSearchRequest(
		userDN,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
		"(objectClass=*)",
		[]string{"gidNumber"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil || len(res.Entries) == 0 {
		return nil, fmt.Errorf("cannot read LDAP account %s: %w", username, err)
	}

	gid, err := strconv.Atoi(res.Entries[0].GetAttributeValue("gidNumber"))
	if err != nil {
		return nil, fmt.Errorf("account %s has no usable gidNumber", username)
	}

	role, ok := a.roleForGID(gid)
	if !ok {
		a.logger.Warn().Str("user", username).Int("gid", gid).Msg("LDAP account gid maps to no role")
		return nil, ErrInvalidCredentials
	}
	return &Principal{Name: username, Role: role}, nil
}

func (a *LDAPAuthenticator) roleForGID(gid int) (types.UserRole, bool) {
	switch gid {
	case a.adminGID:
		return types.UserRoleAdmin, true
	case a.userGID:
		return types.UserRoleUser, true
	case a.guestGID:
		return types.UserRoleGuest, true
	}
	return "", false
}
