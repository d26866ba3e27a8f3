// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ctxField is both the context key and the log field name.
type ctxField string

const (
	requestIDField ctxField = "request_id"
	sessionIDField ctxField = "session_id"
)

// correlated lists the fields Ctx copies onto the logger, in output order.
var correlated = []ctxField{requestIDField, sessionIDField}

func (f ctxField) from(ctx context.Context) string {
	s, _ := ctx.Value(f).(string)
	return s
}

// GenerateRequestID returns a random UUIDv4 string.
func GenerateRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID tags ctx with an HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDField, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return requestIDField.from(ctx)
}

// ContextWithSessionID tags ctx with a realtime session id, so everything
// logged while serving that connection can be correlated.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDField, id)
}

// SessionIDFromContext returns the session id, or "".
func SessionIDFromContext(ctx context.Context) string {
	return sessionIDField.from(ctx)
}

// Ctx returns the global logger with any ids carried by ctx attached.
//
//	logging.Ctx(ctx).Info().Str("order_id", id).Msg("order subscribed")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	for _, f := range correlated {
		if v := f.from(ctx); v != "" {
			lc = lc.Str(string(f), v)
		}
	}
	l := lc.Logger()
	return &l
}
