package inbound

import "time"

type RequestOTPRequest struct {
	Identifier string `json:"identifier"`
}

type RequestOTPResponse struct {
	ExpiresIn int64 `json:"expires_in"`
}

func (RequestOTPResponse) Message() string {
	return "If the identifier is registered, a code has been sent."
}

type VerifyOTPRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

type VerifyOTPResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     string    `json:"subject"`
	Kind        string    `json:"kind"`
}

type RequestConsentOTPRequest struct {
	SubjectID string `json:"subject_id"`
	Channel   string `json:"channel"`
}

type RequestConsentOTPResponse struct {
	ExpiresIn int64 `json:"expires_in"`
}

func (RequestConsentOTPResponse) Message() string {
	return "A consent code has been sent to the subject."
}

type VerifyConsentOTPRequest struct {
	Channel string `json:"channel"`
	OTP     string `json:"otp"`
}

type VerifyConsentOTPResponse struct {
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

func (VerifyConsentOTPResponse) Message() string {
	return "Consent granted."
}

type ConsentStatusResponse struct {
	Status    string     `json:"status"`
	SubjectID string     `json:"subject_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RecordResponse struct {
	SubjectID      string     `json:"subject_id"`
	Name           string     `json:"name"`
	Contacts       []string   `json:"contacts"`
	Access         string     `json:"access"`
	GrantExpiresAt *time.Time `json:"grant_expires_at,omitempty"`
}
