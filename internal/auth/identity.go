// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package auth

import (
	"errors"
	"fmt"
)

// Role is the authorization role carried in a bearer token.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleDriver:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Identity is the authenticated principal behind a realtime session.
// It is fixed for the lifetime of the session.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// AuthenticationError is returned when a handshake credential is missing,
// invalid or expired. It is terminal for that connection attempt.
//
// Kind is one of ErrNoCredentials, ErrInvalidCredentials or
// ErrExpiredCredentials, so callers can use errors.Is on the result.
type AuthenticationError struct {
	Kind  error
	Cause error
}

func (e *AuthenticationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("authentication failed: %v", e.Kind)
	}
	return fmt.Sprintf("authentication failed: %v: %v", e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *AuthenticationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Reason returns a short machine-readable label for metrics.
func (e *AuthenticationError) Reason() string {
	switch {
	case errors.Is(e.Kind, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(e.Kind, ErrExpiredCredentials):
		return "expired_credentials"
	default:
		return "invalid_credentials"
	}
}

func authErr(kind, cause error) *AuthenticationError {
	return &AuthenticationError{Kind: kind, Cause: cause}
}
