package entity

import "time"

// ConsentGrant lets an operator session read exactly one subject's record.
type ConsentGrant struct {
	ID         int64     `cbor:"1,keyasint"`
	OperatorID string    `cbor:"2,keyasint"`
	SubjectID  string    `cbor:"3,keyasint"`
	SessionID  string    `cbor:"4,keyasint"`
	GrantedAt  time.Time `cbor:"5,keyasint"`
	ExpiresAt  time.Time `cbor:"6,keyasint"`
}

// Active reports whether the grant is usable at now.
func (g ConsentGrant) Active(now time.Time) bool {
	return now.Before(g.ExpiresAt)
}

// Record is the protected resource: a subject's profile as seen through the
// access layer.
type Record struct {
	SubjectID string
	Name      string
	Contacts  []string
	// Access is "self" or "consent".
	Access         string
	GrantExpiresAt time.Time
}
