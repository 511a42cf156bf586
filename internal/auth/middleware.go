// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/harmonia-fm/harmonia/internal/logging"
)

type contextKey string

// identityKey stores the decoded Claims in the request context.
const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity attached by
// RequireAuth or OptionalAuth. ok is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(identityKey).(*Claims)
	return claims, ok
}

// ContextWithIdentity attaches an identity to a context. Exposed for tests
// and for the websocket upgrade path, which authenticates before upgrading.
func ContextWithIdentity(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, identityKey, claims)
}

// Middleware provides request authentication. Both variants are stateless
// per call; they share only the immutable TokenManager.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware creates authentication middleware backed by the given
// token manager.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// RequireAuth rejects requests without a valid bearer credential.
// Missing or malformed header -> 401 "authorization required".
// Present but invalid or expired  -> 401 "invalid token".
// Valid -> identity attached to the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Unauthorized: authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			logging.Debug().Err(err).Msg("bearer token rejected")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), claims)))
	})
}

// OptionalAuth attaches an identity when a valid bearer credential is
// present and otherwise lets the request proceed unauthenticated. Any
// verification failure is swallowed so public endpoints can personalize
// opportunistically.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			logging.Debug().Err(err).Msg("optional auth: proceeding unauthenticated")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), claims)))
	})
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
