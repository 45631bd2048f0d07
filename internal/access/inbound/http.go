package inbound

import (
	"context"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/router"
)

type uc interface {
	RequestOTP(ctx context.Context, in usecase.RequestOTPInput) (*usecase.RequestOTPOutput, error)
	VerifyOTP(ctx context.Context, in usecase.VerifyOTPInput) (*usecase.VerifyOTPOutput, error)
	Logout(ctx context.Context) error

	RequestConsentOTP(ctx context.Context, in usecase.RequestConsentOTPInput) (*usecase.RequestConsentOTPOutput, error)
	VerifyConsentOTP(ctx context.Context, in usecase.VerifyConsentOTPInput) (*usecase.VerifyConsentOTPOutput, error)
	RevokeConsent(ctx context.Context) error
	ConsentStatus(ctx context.Context) (*usecase.ConsentStatusOutput, error)

	ReadRecord(ctx context.Context, in usecase.ReadRecordInput) (*entity.Record, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Login
	r.POST("/api/v1/auth/otp/request", end.RequestOTP)
	r.POST("/api/v1/auth/otp/verify", end.VerifyOTP)
	r.POST("/api/v1/auth/logout", end.Logout)

	// Delegated consent
	r.POST("/api/v1/consent/otp/request", end.RequestConsentOTP)
	r.POST("/api/v1/consent/otp/verify", end.VerifyConsentOTP)
	r.POST("/api/v1/consent/revoke", end.RevokeConsent)
	r.GET("/api/v1/consent", end.ConsentStatus)

	// Records
	r.GET("/api/v1/records/:subject_id", end.ReadRecord)
}
