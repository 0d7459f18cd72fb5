// Package identity defines the port for authenticating stream requests.
//
// The login handshake itself belongs to the main guildplan backend; the
// bridge only resolves an already-established transport credential (a
// session cookie, since EventSource cannot attach custom headers) to an
// identity.
package identity

import (
	"errors"
	"net/http"
)

// ErrUnauthenticated indicates the request carries no valid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a stream request to the identity behind it.
type Authenticator interface {
	// Authenticate returns the identity for the request, or
	// ErrUnauthenticated if the credential is missing, unknown or expired.
	Authenticate(r *http.Request) (string, error)
}
