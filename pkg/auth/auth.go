// Package auth implements the gateway's admission control: bearer
// tokens are verified against a shared secret, the extracted claims
// are matched against the configured access-control list, and only
// then does an Agent identity exist.
//
// An Agent is never constructed any other way on the HTTP path, so
// every envelope that reaches the pipeline carries an identity that
// passed both checks.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. The middleware collapses all of them into a
// 401 response; the distinction is for logs and tests.
var (
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMissingClaim     = errors.New("auth: missing required claim")
	ErrNotAuthorized    = errors.New("auth: issuer and role not authorized")
)

// Claims are the identity claims extracted from a verified token.
// They are transient: consumed by the ACL check and discarded.
type Claims struct {
	Issuer string
	Role   string
}

// Agent is an authenticated and authorized producer identity. It is
// shared by reference across the originating request, the channel
// envelope, and every row derived from it.
type Agent struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// VerifyToken validates the token's HS256 signature against the
// shared secret and extracts the issuer and role claims. Pure
// function of (token, secret).
func VerifyToken(token, secret string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{},
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return Claims{}, ErrMalformedToken
	}
	if claims.Issuer == "" {
		return Claims{}, fmt.Errorf("%w: iss", ErrMissingClaim)
	}
	if claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	return Claims{Issuer: claims.Issuer, Role: claims.Role}, nil
}

// Authenticator composes token verification and ACL matching. The
// secret and the role set are immutable after construction and safe
// for concurrent use.
type Authenticator struct {
	secret string
	roles  *RoleSet
}

func NewAuthenticator(secret string, entries []ACL) *Authenticator {
	return &Authenticator{
		secret: secret,
		roles:  NewRoleSet(entries),
	}
}

// Authenticate verifies the token and authorizes its claims. The
// returned Agent exists only if both checks passed.
func (a *Authenticator) Authenticate(token string) (*Agent, error) {
	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		return nil, err
	}
	return a.roles.Authorize(claims)
}
