package entity

import "time"

// Purpose names an OTP engine instance. Each purpose has its own key space
// and its own TTL and attempt ceiling.
type Purpose string

const (
	PurposeLogin   Purpose = "login"
	PurposeConsent Purpose = "consent"
)

func (p Purpose) String() string {
	return string(p)
}

// Tag keys stored on OTP records.
const (
	TagPrincipalID = "principal_id"
	TagSubjectID   = "subject_id"
	TagOperatorID  = "operator_id"
)

// OTPRecord is the stored state of a pending code. The raw code is never kept.
type OTPRecord struct {
	Identifier string            `cbor:"1,keyasint"`
	SecretHash []byte            `cbor:"2,keyasint"`
	Salt       []byte            `cbor:"3,keyasint"`
	ExpiresAt  time.Time         `cbor:"4,keyasint"`
	Attempts   int               `cbor:"5,keyasint"`
	Tags       map[string]string `cbor:"6,keyasint,omitempty"`
}

// Delivery is handed to the out-of-band channel after a code is issued.
type Delivery struct {
	Purpose  Purpose
	Channel  string
	Code     string
	Validity time.Duration
}
