// Package auth verifies user credentials against either a plain-text CSV
// file or an LDAP directory, and maps each account to a Zoe role.
package auth
