// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ordertrail/internal/logging"
)

// Envelope is the body of every API response, success or failure.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// ErrorBody carries a machine-readable code and optional details, such as
// the failing field of a validation error.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Meta is stamped on every response.
type Meta struct {
	RequestID  string    `json:"requestId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"durationMs"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
)

// problem is an error response that has not been written yet.
type problem struct {
	status  int
	code    string
	message string
	details interface{}
}

func badRequest(message string) problem {
	return problem{status: http.StatusBadRequest, code: ErrCodeBadRequest, message: message}
}

func validationFailed(message string, details interface{}) problem {
	return problem{status: http.StatusBadRequest, code: ErrCodeValidationFailed, message: message, details: details}
}

func unauthorized() problem {
	return problem{status: http.StatusUnauthorized, code: ErrCodeUnauthorized, message: "Authentication required"}
}

func forbidden(message string) problem {
	return problem{status: http.StatusForbidden, code: ErrCodeForbidden, message: message}
}

func internalError(message string) problem {
	return problem{status: http.StatusInternalServerError, code: ErrCodeInternalError, message: message}
}

func unavailable(message string, details interface{}) problem {
	return problem{status: http.StatusServiceUnavailable, code: ErrCodeServiceUnavailable, message: message, details: details}
}

// reply writes one envelope for a request. The duration in Meta is
// measured from newReply.
type reply struct {
	w     http.ResponseWriter
	r     *http.Request
	start time.Time
}

func newReply(w http.ResponseWriter, r *http.Request) reply {
	return reply{w: w, r: r, start: time.Now()}
}

// ok writes a success envelope. Collaborator endpoints answer 202 because
// delivery to sessions happens after the response.
func (rp reply) ok(status int, data interface{}) {
	rp.write(status, Envelope{Success: true, Data: data})
}

func (rp reply) fail(p problem) {
	rp.write(p.status, Envelope{
		Error: &ErrorBody{Code: p.code, Message: p.message, Details: p.details},
	})
}

func (rp reply) write(status int, env Envelope) {
	env.Meta = Meta{
		RequestID:  logging.RequestIDFromContext(rp.r.Context()),
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(rp.start).Milliseconds(),
	}

	h := rp.w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	rp.w.WriteHeader(status)

	if err := json.NewEncoder(rp.w).Encode(env); err != nil {
		logging.Ctx(rp.r.Context()).Warn().Err(err).Int("status", status).Msg("response body not written")
	}
}
