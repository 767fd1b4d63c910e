package identity_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/identity"
)

type countingVerifier struct {
	calls int
	id    identity.Identity
	err   error
}

func (v *countingVerifier) VerifyToken(string) (identity.Identity, error) {
	v.calls++
	return v.id, v.err
}

// TestResolveMissingCredential verifies that an empty credential is
// rejected as missing without consulting the verifier.
func TestResolveMissingCredential(t *testing.T) {
	v := &countingVerifier{}
	r := identity.NewResolver(v)

	_, err := r.Resolve("   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrMissing)
	assert.Zero(t, v.calls)
}

// TestResolveCallsVerifierOnce verifies a single verification per resolve
// and that a verifier failure is surfaced as an AuthError.
func TestResolveCallsVerifierOnce(t *testing.T) {
	v := &countingVerifier{err: errors.New("bad signature")}
	r := identity.NewResolver(v)

	_, err := r.Resolve("tok")
	assert.Equal(t, 1, v.calls)
	assert.ErrorIs(t, err, identity.ErrInvalid)

	var ae *identity.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, identity.KindInvalid, ae.Kind)
}

// TestResolveRejectsEmptyUserID verifies that an identity without a user id
// is never bound.
func TestResolveRejectsEmptyUserID(t *testing.T) {
	r := identity.NewResolver(&countingVerifier{id: identity.Identity{DisplayName: "ghost"}})
	_, err := r.Resolve("tok")
	assert.ErrorIs(t, err, identity.ErrInvalid)
}

// TestResolveIsIdempotent verifies the same token always yields the same
// identity.
func TestResolveIsIdempotent(t *testing.T) {
	svc := identity.NewJWTService([]byte("secret"), time.Hour)
	token, _, err := svc.Issue(identity.Identity{UserID: "u1", DisplayName: "alice"})
	require.NoError(t, err)

	r := identity.NewResolver(svc)
	first, err := r.Resolve(token)
	require.NoError(t, err)
	second, err := r.Resolve(token)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, identity.Identity{UserID: "u1", DisplayName: "alice"}, first)
}

// TestJWTServiceRejectsForeignSecret verifies tokens signed with another
// key are invalid.
func TestJWTServiceRejectsForeignSecret(t *testing.T) {
	other := identity.NewJWTService([]byte("other"), time.Hour)
	token, _, err := other.Issue(identity.Identity{UserID: "u1"})
	require.NoError(t, err)

	_, err = identity.NewJWTService([]byte("secret"), time.Hour).VerifyToken(token)
	assert.ErrorIs(t, err, identity.ErrInvalid)
}

// TestJWTServiceExpiredToken verifies expiry is classified separately.
func TestJWTServiceExpiredToken(t *testing.T) {
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := identity.NewJWTService([]byte("secret"), time.Minute).
		WithClock(func() time.Time { return issued })
	token, exp, err := svc.Issue(identity.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Minute), exp)

	svc.WithClock(func() time.Time { return issued.Add(time.Hour) })
	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, identity.ErrExpired)
	assert.NotErrorIs(t, err, identity.ErrInvalid)
}

// TestJWTServiceGarbage verifies malformed tokens are invalid.
func TestJWTServiceGarbage(t *testing.T) {
	_, err := identity.NewJWTService([]byte("secret"), 0).VerifyToken("not-a-jwt")
	assert.ErrorIs(t, err, identity.ErrInvalid)
}

// TestTokenFromRequest verifies cookie precedence and the bearer fallback.
func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.Empty(t, identity.TokenFromRequest(req, ""))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", identity.TokenFromRequest(req, ""))

	req.Header.Set("Cookie", "theme=dark; token=xyz")
	assert.Equal(t, "xyz", identity.TokenFromRequest(req, identity.DefaultCookieName))
	assert.Equal(t, "abc", identity.TokenFromRequest(req, "session"))
}
