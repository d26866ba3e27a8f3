// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the bearer token claims issued by the identity provider.
// The user id travels in the standard "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// DefaultLeeway tolerates small clock skew between issuer and validator.
const DefaultLeeway = 30 * time.Second

// Validator verifies bearer tokens and extracts the Identity they carry.
// It holds no state beyond the shared secret and is safe for concurrent use.
type Validator struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewValidator creates a credential validator for HS256 tokens signed with secret.
//
// Config validation enforces the minimum secret length; this constructor only
// rejects an empty secret so that tests can use short fixed keys.
//
// Example:
//
//	v, err := auth.NewValidator(cfg.Security.JWTSecret)
//	if err != nil {
//	    return fmt.Errorf("credential validator: %w", err)
//	}
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	return &Validator{
		secret: []byte(secret),
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// Validate checks a bearer token and returns the identity it carries.
//
// Validation Steps:
//  1. Reject an empty token (ErrNoCredentials)
//  2. Parse and verify the HMAC-SHA256 signature
//  3. Reject any other signing algorithm (algorithm confusion)
//  4. Require and check exp; check nbf when present
//  5. Require a non-empty sub and a known role
//
// Every failure is an *AuthenticationError whose Kind is ErrNoCredentials,
// ErrInvalidCredentials or ErrExpiredCredentials.
func (v *Validator) Validate(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, authErr(ErrNoCredentials, nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authErr(ErrExpiredCredentials, err)
		}
		return nil, authErr(ErrInvalidCredentials, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, authErr(ErrInvalidCredentials, errors.New("invalid token claims"))
	}

	if claims.Subject == "" {
		return nil, authErr(ErrInvalidCredentials, errors.New("missing sub claim"))
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return nil, authErr(ErrInvalidCredentials, fmt.Errorf("unknown role %q", claims.Role))
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}
