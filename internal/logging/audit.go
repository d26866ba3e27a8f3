// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// AuditEvent is a security-relevant realtime event: a handshake rejected,
// a session opened or closed, a command refused.
type AuditEvent struct {
	// Event is the event type, e.g. "handshake_rejected", "command_forbidden".
	Event string
	// UserID is the authenticated user (if known).
	UserID string
	// Email is the authenticated user's email (if known).
	Email string
	// Role is the session role.
	Role string
	// SessionID identifies the realtime session.
	SessionID string
	// IPAddress is the client's address.
	IPAddress string
	// UserAgent is the client's user agent (truncated).
	UserAgent string
	// Success indicates if the operation was allowed.
	Success bool
	// Error is the reason when Success is false.
	Error string
	// Details contains additional fields, sanitized by key name.
	Details map[string]string
}

// AuditLogger writes AuditEvents with sensitive values masked.
type AuditLogger struct {
	logger zerolog.Logger
}

// NewAuditLogger creates an audit logger on top of the global logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{
		logger: With().Str("component", "realtime-audit").Logger(),
	}
}

// NewAuditLoggerWithLogger creates an audit logger writing to logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewAuditLoggerWithLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With().Str("component", "realtime-audit").Logger(),
	}
}

// LogEvent logs an audit event with automatic sanitization.
func (l *AuditLogger) LogEvent(event *AuditEvent) {
	var e *zerolog.Event
	if event.Success {
		e = l.logger.Info()
	} else {
		e = l.logger.Warn()
	}
	e = e.Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.UserID != "" {
		e = e.Str("user_id", SanitizeUserID(event.UserID))
	}
	if event.Email != "" {
		e = e.Str("email", SanitizeEmail(event.Email))
	}
	if event.Role != "" {
		e = e.Str("role", event.Role)
	}
	if event.SessionID != "" {
		e = e.Str("session_id", event.SessionID)
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", SanitizeError(event.Error))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// LogHandshakeRejected logs a websocket handshake refused for bad credentials.
func (l *AuditLogger) LogHandshakeRejected(ip, userAgent, reason string) {
	l.LogEvent(&AuditEvent{
		Event:     "handshake_rejected",
		IPAddress: ip,
		UserAgent: userAgent,
		Error:     reason,
	})
}

// LogSessionOpened logs a newly established realtime session.
func (l *AuditLogger) LogSessionOpened(userID, email, role, sessionID, ip string) {
	l.LogEvent(&AuditEvent{
		Event:     "session_opened",
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		IPAddress: ip,
		Success:   true,
	})
}

// LogSessionClosed logs the end of a realtime session.
func (l *AuditLogger) LogSessionClosed(userID, sessionID, reason string) {
	l.LogEvent(&AuditEvent{
		Event:     "session_closed",
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// LogCommandForbidden logs a command refused by the authorization table.
func (l *AuditLogger) LogCommandForbidden(userID, role, sessionID, command string) {
	l.LogEvent(&AuditEvent{
		Event:     "command_forbidden",
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		Error:     "role not permitted",
		Details: map[string]string{
			"command": command,
		},
	})
}

// LogCollaboratorRejected logs a collaborator API call without admin rights.
func (l *AuditLogger) LogCollaboratorRejected(ip, path, reason string) {
	l.LogEvent(&AuditEvent{
		Event:     "collaborator_rejected",
		IPAddress: ip,
		Error:     reason,
		Details: map[string]string{
			"path": path,
		},
	})
}

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..." -> "eyJh...kpXV"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a user ID for privacy.
// Example: "user-12345678" -> "user...5678"
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return "***"
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeEmail masks an email address.
// Example: "john.doe@example.com" -> "jo***@example.com"
func SanitizeEmail(email string) string {
	if email == "" {
		return ""
	}
	atIndex := strings.Index(email, "@")
	if atIndex <= 0 {
		return "***"
	}
	localPart := email[:atIndex]
	domain := email[atIndex:]
	if len(localPart) <= 2 {
		return "***" + domain
	}
	return localPart[:2] + "***" + domain
}

var sensitiveErrorPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"bearer",
	"authorization",
	"cookie",
}

// SanitizeError replaces error messages that may carry credentials.
func SanitizeError(err string) string {
	lowerErr := strings.ToLower(err)
	for _, pattern := range sensitiveErrorPatterns {
		if strings.Contains(lowerErr, pattern) {
			return "authentication error"
		}
	}
	return truncateString(err, 200)
}

var sensitiveKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"password":      true,
	"secret":        true,
	"api_key":       true,
	"authorization": true,
	"bearer":        true,
	"cookie":        true,
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return SanitizeEmail(value)
	}
	return value
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
