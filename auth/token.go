// Package auth issues and validates bearer tokens and decides who may touch an order.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"library_lending/apperr"
)

const tokenIssuer = "library-lending"

// Claims carries only the username in the subject; roles are looked up on every request
// so that a role change applies without reissuing tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens. It keeps no server-side state.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenService takes the base64 encoded signing secret (at least 32 decoded bytes).
func NewTokenService(secretB64 string, ttl time.Duration) (*TokenService, error) {
	key, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return nil, fmt.Errorf("decode jwt secret: %w", err)
	}
	if len(key) < 32 {
		return nil, errors.New("jwt secret must decode to at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &TokenService{key: key, ttl: ttl, now: time.Now}, nil
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue returns a signed token for username and its expiry.
func (s *TokenService) Issue(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse validates the signature, algorithm and expiry of raw. Every failure (malformed,
// expired, wrong algorithm, empty claims) comes back as apperr.ErrUnauthenticated.
func (s *TokenService) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token: %w", apperr.ErrUnauthenticated)
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid claims: %w", apperr.ErrUnauthenticated)
	}
	return claims, nil
}
