// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package auth

import (
	"net/http"
	"strings"
)

const (
	// TokenQueryParam carries the token for browser clients that cannot set
	// headers on a websocket handshake.
	TokenQueryParam = "token"

	// TokenCookieName is checked last.
	TokenCookieName = "token"
)

// TokenFromRequest extracts a bearer token from a handshake or API request.
// Checks, in order: Authorization header, "token" query parameter, "token" cookie.
// Returns "" when none is present.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
	}

	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

// Authenticate extracts and validates the request's bearer token.
func (v *Validator) Authenticate(r *http.Request) (*Identity, error) {
	return v.Validate(TokenFromRequest(r))
}
