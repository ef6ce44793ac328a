package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned when an issuer is built without a signing key.
	ErrMissingSecret = errors.New("jwt secret must not be empty")
)

// TokenProvider supplies the bearer token attached to outgoing chat requests.
type TokenProvider interface {
	GetAuthToken(ctx context.Context) (string, error)
}

// StaticTokenProvider always returns the same token.
type StaticTokenProvider string

// GetAuthToken implements TokenProvider.
func (p StaticTokenProvider) GetAuthToken(context.Context) (string, error) {
	if strings.TrimSpace(string(p)) == "" {
		return "", ErrInvalidToken
	}
	return string(p), nil
}

// Claims carries the identity encoded in chat tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTIssuer mints and validates HS256 tokens for the local user.
type JWTIssuer struct {
	secret []byte
	userID string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer constructs an issuer signing with secret.
func NewJWTIssuer(secret, userID string, ttl time.Duration) (*JWTIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTIssuer{
		secret: []byte(secret),
		userID: userID,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GetAuthToken implements TokenProvider by minting a fresh token.
func (i *JWTIssuer) GetAuthToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return i.Issue(i.userID)
}

// Issue signs a token for subject.
func (i *JWTIssuer) Issue(subject string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns its subject.
func (i *JWTIssuer) Parse(tokenString string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
