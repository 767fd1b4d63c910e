// Package identity resolves handshake credentials into chat identities.
//
// The relay core only depends on the Verifier interface; JWTService is the
// token implementation used by the HTTP account endpoints and the
// WebSocket handshake.
package identity

import "strings"

// Identity is the user bound to a connection after its credential has been
// verified. It never changes for the lifetime of the connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"userName"`
}

// Valid reports whether the identity names a user.
func (i Identity) Valid() bool {
	return i.UserID != ""
}

// Verifier validates an opaque credential token.
type Verifier interface {
	VerifyToken(token string) (Identity, error)
}

// Resolver turns the raw credential extracted by the transport into an
// Identity. It calls the verifier exactly once per resolution and never
// retries.
type Resolver struct {
	verifier Verifier
}

// NewResolver creates a Resolver backed by v.
func NewResolver(v Verifier) *Resolver {
	return &Resolver{verifier: v}
}

// Resolve verifies rawCredential. An empty credential yields ErrMissing
// without consulting the verifier.
func (r *Resolver) Resolve(rawCredential string) (Identity, error) {
	token := strings.TrimSpace(rawCredential)
	if token == "" {
		return Identity{}, ErrMissing
	}
	if r == nil || r.verifier == nil {
		return Identity{}, newAuthError(KindInvalid, nil)
	}

	id, err := r.verifier.VerifyToken(token)
	if err != nil {
		return Identity{}, asAuthError(err)
	}
	if !id.Valid() {
		return Identity{}, newAuthError(KindInvalid, nil)
	}
	return id, nil
}
