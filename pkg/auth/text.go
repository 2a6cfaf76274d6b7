package auth

import (
	"crypto/subtle"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/log"
)

// TextAuthenticator checks credentials against a CSV file with one
// user,password,role record per line. The file is re-read on every attempt,
// so edits take effect without a restart.
type TextAuthenticator struct {
	path   string
	logger zerolog.Logger
}

// NewTextAuthenticator creates a CSV-file authenticator.
func NewTextAuthenticator(path string) *TextAuthenticator {
	return &TextAuthenticator{
		path:   path,
		logger: log.WithComponent("auth"),
	}
}

func (a *TextAuthenticator) Authenticate(username, password string) (*Principal, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open password file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed password file %s: %w", a.path, err)
	}

	for _, rec := range records {
		if rec[0] != username {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(rec[1]), []byte(password)) != 1 {
			break
		}
		role, err := parseRole(rec[2])
		if err != nil {
			a.logger.Warn().Str("user", username).Err(err).Msg("bad role in password file")
			break
		}
		return &Principal{Name: username, Role: role}, nil
	}
	return nil, ErrInvalidCredentials
}
