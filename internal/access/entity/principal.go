package entity

import (
	"slices"
	"strings"
)

// PrincipalKind separates staff from the people whose records they read.
type PrincipalKind string

const (
	PrincipalKindOperator PrincipalKind = "operator"
	PrincipalKindSubject  PrincipalKind = "subject"
)

func (k PrincipalKind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k PrincipalKind) Valid() bool {
	return k == PrincipalKindOperator || k == PrincipalKindSubject
}

// Principal is an entry of the closed principal directory.
type Principal struct {
	ID   string        `mapstructure:"id"`
	Kind PrincipalKind `mapstructure:"kind"`
	Name string        `mapstructure:"name"`
	// Identifiers are the login handles (username, email, phone).
	Identifiers []string `mapstructure:"identifiers"`
	// Contacts are the channels a consent code may be sent to.
	Contacts []string `mapstructure:"contacts"`
}

// NormalizeIdentifier is the canonical form used for lookups and store keys.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HasIdentifier reports whether s is one of the principal's handles or its id.
func (p Principal) HasIdentifier(s string) bool {
	s = NormalizeIdentifier(s)
	if s == "" {
		return false
	}
	if NormalizeIdentifier(p.ID) == s {
		return true
	}
	return slices.ContainsFunc(p.Identifiers, func(v string) bool { return NormalizeIdentifier(v) == s })
}

// HasContact reports whether channel is a registered contact.
func (p Principal) HasContact(channel string) bool {
	channel = NormalizeIdentifier(channel)
	return slices.ContainsFunc(p.Contacts, func(v string) bool { return NormalizeIdentifier(v) == channel })
}
