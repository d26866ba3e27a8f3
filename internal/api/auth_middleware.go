// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/authz"
	"github.com/tomtom215/ordertrail/internal/logging"
)

type identityKey struct{}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*auth.Identity)
	return id, ok
}

// RequireCollaborator admits only callers whose role may emit events on
// behalf of the order-management service.
func (h *Handler) RequireCollaborator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rp := newReply(w, r)

		id, err := h.validator.Authenticate(r)
		if err != nil {
			reason := "invalid_credentials"
			var authErr *auth.AuthenticationError
			if errors.As(err, &authErr) {
				reason = authErr.Reason()
			}
			h.audit.LogCollaboratorRejected(remoteIP(r), r.URL.Path, reason)
			rp.fail(unauthorized())
			return
		}

		allowed, err := h.authz.Allowed(string(id.Role), authz.ActionCollaboratorEmit)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("authorization check failed")
			rp.fail(internalError("Authorization check failed"))
			return
		}
		if !allowed {
			h.audit.LogCollaboratorRejected(remoteIP(r), r.URL.Path, "forbidden_role")
			rp.fail(forbidden("Role " + string(id.Role) + " may not emit events"))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// remoteIP returns the client address; chi's RealIP has already applied
// forwarding headers.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
