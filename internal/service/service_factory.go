package service

import (
	"otp-gateway/internal/config"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	config     *config.Config
	adapter    Adapter
	records    DispatchRecordStore
	hasher     CodeHasher
	auditor    DispatchAuditor
	logger     *zap.Logger
	otpService *OTPService
}

// NewServiceFactory creates a new service factory. records and auditor may
// be nil when the corresponding stores are not configured.
func NewServiceFactory(
	cfg *config.Config,
	adapter Adapter,
	records DispatchRecordStore,
	hasher CodeHasher,
	auditor DispatchAuditor,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		config:  cfg,
		adapter: adapter,
		records: records,
		hasher:  hasher,
		auditor: auditor,
		logger:  logger,
	}
}

// OTPService returns the OTP dispatch service instance (singleton)
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		opts := []Option{
			WithTimeout(f.config.Dispatch.Timeout),
			WithSideEffectTimeout(f.config.Dispatch.AuditTimeout),
		}
		if f.records != nil {
			opts = append(opts, WithRecordStore(f.records, f.hasher, f.config.Dispatch.RecordTTL))
		}
		if f.auditor != nil {
			opts = append(opts, WithAuditor(f.auditor))
		}

		f.otpService = NewOTPService(
			f.adapter,
			f.config.Telegram.Credentials,
			f.logger.Named("otp"),
			opts...,
		)
	}
	return f.otpService
}
