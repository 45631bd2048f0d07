package inbound

import (
	"time"

	"github.com/shandysiswandi/carepass/internal/access/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/router"
)

// HTTPEndpoint exposes the login, consent and record endpoints.
type HTTPEndpoint struct {
	uc uc
}

// RequestOTP sends a login code to the principal owning the identifier.
// @Summary Request login code
// @Tags Access, Authentication
// @Accept json
// @Produce json
// @Param request body RequestOTPRequest true "Identifier"
// @Success 200 {object} router.successResponse{data=RequestOTPResponse}
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 503 {object} router.errorResponse "Store unavailable"
// @Router /api/v1/auth/otp/request [post]
func (h *HTTPEndpoint) RequestOTP(r *router.Request) (any, error) {
	var req RequestOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RequestOTP(r.Context(), usecase.RequestOTPInput{Identifier: req.Identifier})
	if err != nil {
		return nil, err
	}

	return RequestOTPResponse{ExpiresIn: resp.ExpiresIn}, nil
}

// VerifyOTP exchanges a login code for a session token.
// @Summary Verify login code
// @Tags Access, Authentication
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Identifier and code"
// @Success 200 {object} router.successResponse{data=VerifyOTPResponse}
// @Failure 401 {object} router.errorResponse "invalid or expired"
// @Failure 429 {object} router.errorResponse "too_many_attempts"
// @Router /api/v1/auth/otp/verify [post]
func (h *HTTPEndpoint) VerifyOTP(r *router.Request) (any, error) {
	var req VerifyOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.VerifyOTP(r.Context(), usecase.VerifyOTPInput{
		Identifier: req.Identifier,
		OTP:        req.OTP,
	})
	if err != nil {
		return nil, err
	}

	return VerifyOTPResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		ExpiresAt:   resp.ExpiresAt,
		Subject:     resp.Subject,
		Kind:        resp.Kind.String(),
	}, nil
}

// Logout revokes the bearer token.
// @Summary Logout
// @Tags Access, Authentication
// @Security BearerAuth
// @Success 204 "No Content"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Router /api/v1/auth/logout [post]
func (h *HTTPEndpoint) Logout(r *router.Request) (any, error) {
	return nil, h.uc.Logout(r.Context())
}

// RequestConsentOTP asks a subject to confirm access by the calling operator.
// @Summary Request consent code
// @Tags Access, Consent
// @Security BearerAuth
// @Param request body RequestConsentOTPRequest true "Subject and channel"
// @Success 200 {object} router.successResponse{data=RequestConsentOTPResponse}
// @Failure 403 {object} router.errorResponse "Not an operator"
// @Router /api/v1/consent/otp/request [post]
func (h *HTTPEndpoint) RequestConsentOTP(r *router.Request) (any, error) {
	var req RequestConsentOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.RequestConsentOTP(r.Context(), usecase.RequestConsentOTPInput{
		SubjectID: req.SubjectID,
		Channel:   req.Channel,
	})
	if err != nil {
		return nil, err
	}

	return RequestConsentOTPResponse{ExpiresIn: resp.ExpiresIn}, nil
}

// VerifyConsentOTP turns the subject's code into a grant on the session.
// @Summary Verify consent code
// @Tags Access, Consent
// @Security BearerAuth
// @Param request body VerifyConsentOTPRequest true "Channel and code"
// @Success 200 {object} router.successResponse{data=VerifyConsentOTPResponse}
// @Failure 401 {object} router.errorResponse "invalid or expired"
// @Failure 429 {object} router.errorResponse "too_many_attempts"
// @Router /api/v1/consent/otp/verify [post]
func (h *HTTPEndpoint) VerifyConsentOTP(r *router.Request) (any, error) {
	var req VerifyConsentOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.VerifyConsentOTP(r.Context(), usecase.VerifyConsentOTPInput{
		Channel: req.Channel,
		OTP:     req.OTP,
	})
	if err != nil {
		return nil, err
	}

	return VerifyConsentOTPResponse{
		SubjectID: resp.SubjectID,
		ExpiresAt: resp.ExpiresAt,
		ExpiresIn: resp.ExpiresIn,
	}, nil
}

// RevokeConsent drops the session's grant.
// @Summary Revoke consent
// @Tags Access, Consent
// @Security BearerAuth
// @Success 204 "No Content"
// @Router /api/v1/consent/revoke [post]
func (h *HTTPEndpoint) RevokeConsent(r *router.Request) (any, error) {
	return nil, h.uc.RevokeConsent(r.Context())
}

// ConsentStatus shows the grant attached to the session.
// @Summary Consent status
// @Tags Access, Consent
// @Security BearerAuth
// @Success 200 {object} router.successResponse{data=ConsentStatusResponse}
// @Router /api/v1/consent [get]
func (h *HTTPEndpoint) ConsentStatus(r *router.Request) (any, error) {
	resp, err := h.uc.ConsentStatus(r.Context())
	if err != nil {
		return nil, err
	}

	return ConsentStatusResponse{
		Status:    resp.Status,
		SubjectID: resp.SubjectID,
		ExpiresAt: optionalTime(resp.ExpiresAt),
	}, nil
}

// ReadRecord returns a subject's record.
// @Summary Read record
// @Tags Records
// @Security BearerAuth
// @Param subject_id path string true "Subject ID"
// @Success 200 {object} router.successResponse{data=RecordResponse}
// @Failure 403 {object} router.errorResponse "access_required, access_expired or subject_mismatch"
// @Router /api/v1/records/{subject_id} [get]
func (h *HTTPEndpoint) ReadRecord(r *router.Request) (any, error) {
	rec, err := h.uc.ReadRecord(r.Context(), usecase.ReadRecordInput{SubjectID: r.GetParam("subject_id")})
	if err != nil {
		return nil, err
	}

	contacts := rec.Contacts
	if contacts == nil {
		contacts = []string{}
	}

	return RecordResponse{
		SubjectID:      rec.SubjectID,
		Name:           rec.Name,
		Contacts:       contacts,
		Access:         rec.Access,
		GrantExpiresAt: optionalTime(rec.GrantExpiresAt),
	}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
