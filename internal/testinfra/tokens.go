// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package testinfra

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestSecret is a 32+ character HS256 secret for tests.
const TestSecret = "ordertrail-test-secret-0123456789abcdef"

// TokenClaims mirrors the claims the credential validator reads.
type TokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken signs a token for userID with role, valid for ttl.
// A negative ttl yields an already expired token.
func SignToken(t testing.TB, secret, userID, role string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := TokenClaims{
		Email: userID + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return SignClaims(t, secret, jwt.SigningMethodHS256, claims)
}

// SignClaims signs arbitrary claims, for tests that need malformed tokens.
func SignClaims(t testing.TB, secret string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
