// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `koanf:"server"`
	Security       SecurityConfig       `koanf:"security"`
	Realtime       RealtimeConfig       `koanf:"realtime"`
	NATS           NATSConfig           `koanf:"nats"`
	OrderDirectory OrderDirectoryConfig `koanf:"order_directory"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // "development", "staging", "production"
}

// SecurityConfig holds credential validation and authorization settings
type SecurityConfig struct {
	// JWTSecret is the shared HS256 secret used by the identity provider
	// that issues bearer tokens. Must be at least 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// CORSOrigins is the list of allowed origins for both CORS and the
	// websocket origin check. "*" allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`

	Casbin CasbinConfig `koanf:"casbin"`
}

// CasbinConfig holds command authorization settings.
// Empty paths use the policy embedded in the authz package.
type CasbinConfig struct {
	ModelPath    string        `koanf:"model_path"`
	PolicyPath   string        `koanf:"policy_path"`
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// RealtimeConfig holds session and emission settings.
type RealtimeConfig struct {
	// SendBuffer is the per-session outbound queue length. A session whose
	// queue is full when an event is fanned out is disconnected.
	SendBuffer int `koanf:"send_buffer"`

	// EmitBuffer is the hub's inbound emission queue length.
	EmitBuffer int `koanf:"emit_buffer"`

	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`

	// PongWait is how long a session may stay silent before it is dropped.
	// Pings are sent at 9/10 of this interval.
	PongWait time.Duration `koanf:"pong_wait"`

	// WriteWait bounds every outbound write.
	WriteWait time.Duration `koanf:"write_wait"`

	// InTransitStatus is the status value that must always carry an
	// estimated delivery time.
	InTransitStatus string `koanf:"in_transit_status"`

	// DefaultETAOffset is added to the current time when an in-transit
	// update arrives without an estimated delivery time.
	DefaultETAOffset time.Duration `koanf:"default_eta_offset"`
}

// NATSConfig holds cross-process relay settings.
type NATSConfig struct {
	// Enabled turns on the relay. A single process needs no relay.
	Enabled bool `koanf:"enabled"`

	// URL of the NATS server. Ignored when EmbeddedServer is true.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process nats-server for development.
	EmbeddedServer bool `koanf:"embedded_server"`

	// EmbeddedPort is the client port of the embedded server.
	EmbeddedPort int `koanf:"embedded_port"`

	// SubjectPrefix namespaces relay subjects: "<prefix>.events".
	SubjectPrefix string `koanf:"subject_prefix"`

	// BreakerMaxFailures consecutive publish failures open the circuit.
	BreakerMaxFailures uint32 `koanf:"breaker_max_failures"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// OrderDirectoryConfig holds the optional order-management lookup settings.
type OrderDirectoryConfig struct {
	// Enabled turns on ownership checks for order:subscribe and the
	// previous-status lookup for driver status updates.
	Enabled bool `koanf:"enabled"`

	// URL is the base URL of the order-management service.
	URL string `koanf:"url"`

	// ServiceToken is sent as a bearer token on lookups.
	ServiceToken string `koanf:"service_token"`

	Timeout  time.Duration `koanf:"timeout"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// PingPeriod returns the interval between keepalive pings.
func (r RealtimeConfig) PingPeriod() time.Duration {
	return (r.PongWait * 9) / 10
}

// Subject returns the relay subject for event fan-out.
func (n NATSConfig) Subject() string {
	return n.SubjectPrefix + ".events"
}
