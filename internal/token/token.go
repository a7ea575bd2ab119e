// Package token issues and verifies the two JWT kinds the service hands out:
// short-lived access tokens and longer-lived refresh tokens. The two kinds
// carry a type discriminator and may be signed with independent secrets, so a
// leaked refresh token can never pass as an access token and refresh signing
// can be rotated on its own.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims is the full claim set of an access token.
type AccessClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is deliberately minimal: subject, type marker, an optional
// email, and the registered expiry. Nothing else ever rides on a refresh
// token.
type RefreshClaims struct {
	TokenType string `json:"type"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies both token kinds.
type Issuer struct {
	method        jwt.SigningMethod
	secret        []byte
	refreshSecret []byte
}

// NewIssuer validates the signing configuration once at startup. An empty
// refreshSecret falls back to the primary secret; an unknown algorithm is a
// configuration error.
func NewIssuer(secret, refreshSecret, algorithm string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}

	if refreshSecret == "" {
		refreshSecret = secret
	}

	method, err := signingMethod(algorithm)
	if err != nil {
		return nil, err
	}

	return &Issuer{
		method:        method,
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
	}, nil
}

// IssueAccess signs an access token for subject expiring at now+ttl. A zero
// or negative ttl still produces a token with a concrete, already-passed
// expiry: misconfigured callers fail at verification time, not here.
func (i *Issuer) IssueAccess(subject string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := AccessClaims{
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// IssueRefresh signs a refresh token carrying only subject, the refresh type
// marker, and an optional email.
func (i *Issuer) IssueRefresh(subject, email string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := RefreshClaims{
		TokenType: TypeRefresh,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccess validates signature, expiry, and type of an access token.
// Refresh tokens presented here are rejected even when both kinds share a
// secret.
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, i.secret); err != nil {
		return nil, err
	}

	if claims.TokenType != TypeAccess {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyRefresh validates signature, expiry, and type of a refresh token.
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		return nil, err
	}

	if claims.TokenType != TypeRefresh {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{i.method.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}

	return nil
}

func signingMethod(algorithm string) (jwt.SigningMethod, error) {
	switch algorithm {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
}
