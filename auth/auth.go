// Package auth authenticates API requests by key: either a single static
// key from configuration or per-user keys looked up in postgres.
package auth

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"

	"github.com/modulo-ai/paygate/utils"
)

// Authenticator checks the X-API-Key header. With neither a static key nor
// a database configured, requests pass through unauthenticated.
type Authenticator struct {
	staticKey string
	db        *sql.DB
}

// New creates an Authenticator. Configuring both a static key and a
// database is rejected at request time as a misconfiguration.
func New(staticKey string, db *sql.DB) *Authenticator {
	return &Authenticator{staticKey: staticKey, db: db}
}

// Authenticate authenticates the request.
func (a *Authenticator) Authenticate(r *http.Request) error {

	providedKey := r.Header.Get("X-API-Key")

	if a.staticKey != "" && a.db != nil {
		return utils.NewStatusError(
			errors.New("both static API key and database are configured"),
			http.StatusInternalServerError,
		)
	}

	if a.staticKey != "" {
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(a.staticKey)) != 1 {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}
		return nil
	}

	if a.db != nil {
		if providedKey == "" {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}

		var apiKey string
		err := a.db.QueryRowContext(r.Context(),
			"SELECT api_key FROM users WHERE api_key = $1",
			providedKey,
		).Scan(&apiKey)

		if errors.Is(err, sql.ErrNoRows) {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}
		if err != nil {
			return utils.NewStatusError(
				errors.New("failed to get key from database"),
				http.StatusInternalServerError,
			)
		}
	}

	return nil
}
