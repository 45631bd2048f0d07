package uid

import "github.com/google/uuid"

// StringID produces opaque unique string identifiers.
type StringID interface {
	Generate() string
}

// UUID generates time-ordered UUIDv7 strings, used as session token ids.
type UUID struct{}

// NewUUID returns a UUID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// Generate returns a new UUID string.
func (u *UUID) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
