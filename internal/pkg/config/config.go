package config

import (
	"io"
	"time"
)

// TimeConfig defines helpers for retrieving time-based configuration values.
type TimeConfig interface {
	// GetSecond returns the integer value for key as a number of seconds.
	GetSecond(key string) time.Duration

	// GetMinute returns the integer value for key as a number of minutes.
	GetMinute(key string) time.Duration
}

// Config is the read side of the application configuration.
//
// Missing keys resolve to the zero value of the requested type; callers that
// need a default pick it themselves.
type Config interface {
	io.Closer
	TimeConfig

	// IsSet reports whether key has a value from any source.
	IsSet(key string) bool

	GetInt(key string) int
	GetInt64(key string) int64
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetString(key string) string

	// GetBinary returns the value for key decoded from standard base64.
	GetBinary(key string) []byte

	// GetArray returns a list value. Both YAML sequences and
	// <element1>,<element2>,... strings (the env form) are accepted.
	GetArray(key string) []string

	// GetMap returns a map value stored as <key1>:<value1>,<key2>:<value2>,...
	GetMap(key string) map[string]string

	// Unmarshal decodes the subtree under key into out, using mapstructure tags.
	Unmarshal(key string, out any) error
}
