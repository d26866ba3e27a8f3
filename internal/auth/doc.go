// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package auth validates the bearer tokens presented at websocket handshake
// and on collaborator API calls.
//
// Tokens are issued elsewhere. This package only verifies HS256 signatures
// against a shared secret and maps the claims onto an Identity:
//
//	sub   -> Identity.UserID (required)
//	email -> Identity.Email
//	role  -> Identity.Role   (required: user, admin or driver)
//
// # Token Sources
//
// TokenFromRequest accepts the token from the Authorization header
// ("Bearer <token>"), the "token" query parameter used by browsers for
// websocket handshakes, or the "token" cookie.
//
// # Errors
//
// Failures are returned as *AuthenticationError:
//
//	id, err := validator.Authenticate(r)
//	if errors.Is(err, auth.ErrExpiredCredentials) {
//	    // prompt re-login
//	}
package auth
