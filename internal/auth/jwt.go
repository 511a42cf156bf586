// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

// Package auth provides stateless bearer credential verification and the
// refresh-token exchange used by the resilient client transport.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harmonia-fm/harmonia/internal/config"
)

// Sentinel errors for credential verification.
var (
	// ErrNoSecret is returned when no signing secret is configured.
	// Verification always fails in this state.
	ErrNoSecret = errors.New("no signing secret configured")

	// ErrInvalidToken covers expired, tampered, and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the decoded identity carried by a Harmonia access token.
type Claims struct {
	UserID   string `json:"uid"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens and mints opaque
// refresh tokens. Verification is a pure function of the token string and
// the secret; the manager holds no per-request state and is safe under
// arbitrary concurrency.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a token manager from security configuration.
// An empty secret is permitted: the manager is constructed but every
// verification returns ErrNoSecret, so the process can still serve health
// and diagnostic endpoints.
func NewTokenManager(cfg config.SecurityConfig) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue creates a signed access token for the given identity.
func (m *TokenManager) Issue(userID, username, email, role string) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Role:     role,
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token string and returns the decoded identity.
// Rejects tokens signed with an unexpected algorithm to prevent algorithm
// confusion attacks.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshToken is an opaque credential of the form "<id>.<secret>".
// Only a bcrypt hash of the secret half is stored server-side.
type RefreshToken struct {
	ID     string
	Secret string
}

// String formats the token for the wire.
func (t RefreshToken) String() string {
	return t.ID + "." + t.Secret
}

// NewRefreshToken mints a refresh token with a random 32-byte secret.
func NewRefreshToken() (RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	return RefreshToken{
		ID:     uuid.New().String(),
		Secret: base64.RawURLEncoding.EncodeToString(buf),
	}, nil
}

// ParseRefreshToken splits a wire-format refresh token into its halves.
func ParseRefreshToken(s string) (RefreshToken, error) {
	id, secret, ok := strings.Cut(s, ".")
	if !ok || id == "" || secret == "" {
		return RefreshToken{}, fmt.Errorf("%w: malformed refresh token", ErrInvalidToken)
	}
	return RefreshToken{ID: id, Secret: secret}, nil
}
