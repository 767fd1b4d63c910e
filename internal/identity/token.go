package identity

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie carrying the session token.
const DefaultCookieName = "token"

// TokenFromRequest extracts the credential presented at handshake time: the
// named cookie first, then an "Authorization: Bearer" header. It returns ""
// when neither is present.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
