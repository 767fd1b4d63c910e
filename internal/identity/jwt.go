package identity

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

// Claims is the token payload; the field names match the tokens issued by
// the account endpoints.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwtlib.RegisteredClaims
}

// JWTService issues and verifies HMAC-signed tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a service signing with secret. A non-positive ttl
// selects the default of 24 hours.
func NewJWTService(secret []byte, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &JWTService{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// Issue signs a token for id and returns it with its expiry.
func (s *JWTService) Issue(id Identity) (string, time.Time, error) {
	if !id.Valid() {
		return "", time.Time{}, errors.New("identity: cannot issue token without user id")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		UserID:   id.UserID,
		Username: id.DisplayName,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyToken implements Verifier.
func (s *JWTService) VerifyToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissing
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims,
		func(*jwtlib.Token) (interface{}, error) { return s.secret, nil },
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Identity{}, newAuthError(KindExpired, err)
		}
		return Identity{}, newAuthError(KindInvalid, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return Identity{}, newAuthError(KindInvalid, nil)
	}
	return Identity{UserID: claims.UserID, DisplayName: claims.Username}, nil
}
