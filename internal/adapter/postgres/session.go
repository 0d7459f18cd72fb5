package postgres

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildplan/bridge/internal/port/identity"
)

// SessionAuthenticator resolves the session cookie set by the guildplan
// backend's login flow to an identity. Only the sha256 of the token is
// stored, so a leaked sessions table cannot be replayed.
type SessionAuthenticator struct {
	pool       *pgxpool.Pool
	cookieName string
}

// NewSessionAuthenticator creates a SessionAuthenticator reading the
// named cookie.
func NewSessionAuthenticator(pool *pgxpool.Pool, cookieName string) *SessionAuthenticator {
	return &SessionAuthenticator{pool: pool, cookieName: cookieName}
}

// Authenticate implements identity.Authenticator.
func (a *SessionAuthenticator) Authenticate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return "", identity.ErrUnauthenticated
	}

	sum := sha256.Sum256([]byte(cookie.Value))
	tokenHash := hex.EncodeToString(sum[:])

	var userID string
	err = a.pool.QueryRow(r.Context(),
		`SELECT user_id FROM sessions WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", identity.ErrUnauthenticated
		}
		return "", fmt.Errorf("query session: %w", err)
	}

	return userID, nil
}
