package identity

import "errors"

// Kind classifies an authentication failure.
type Kind int

const (
	// KindMissing means no credential was presented.
	KindMissing Kind = iota + 1
	// KindInvalid means the credential failed verification.
	KindInvalid
	// KindExpired means the credential was well formed but past its expiry.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AuthError is returned when a credential cannot be resolved. It is terminal
// for the connection that presented it.
type AuthError struct {
	Kind Kind
	Err  error
}

// Sentinels for errors.Is comparisons; only the Kind is compared.
var (
	ErrMissing = &AuthError{Kind: KindMissing}
	ErrInvalid = &AuthError{Kind: KindInvalid}
	ErrExpired = &AuthError{Kind: KindExpired}
)

func newAuthError(kind Kind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "auth: " + e.Kind.String() + " credential: " + e.Err.Error()
	}
	return "auth: " + e.Kind.String() + " credential"
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same Kind.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func asAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return newAuthError(KindInvalid, err)
}
