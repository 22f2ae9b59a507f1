package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"otp-gateway/internal/config"
	"otp-gateway/internal/hashing"
	"otp-gateway/internal/models"
	"otp-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDispatchTimeout   = 10 * time.Second
	defaultDisconnectTimeout = 5 * time.Second
	defaultSideEffectTimeout = 2 * time.Second
	defaultRecordTTL         = 5 * time.Minute

	invalidPhoneMessage  = "Invalid phone format. Use international format, e.g. +628123456789"
	phoneRequiredMessage = "Phone number is required"
	internalErrorMessage = "OTP delivery hit an internal error, use the generated code"
	noCredentialsMessage = "Telegram delivery is not configured"
)

// Session is an open connection to the messaging platform. Its concrete type
// belongs to the adapter.
type Session any

// SentCode is what the platform returns for an accepted code request.
type SentCode struct {
	DeliveryReference string
}

// Adapter is the messaging-platform client the dispatcher drives. Connect and
// SendCode may block for a long time; the dispatcher bounds them itself.
type Adapter interface {
	Connect(ctx context.Context, creds config.Credentials) (Session, error)
	SendCode(ctx context.Context, session Session, creds config.Credentials, phone string) (*SentCode, error)
	Disconnect(ctx context.Context, session Session) error
}

// DispatchRecordStore keeps the latest dispatch per phone for a later
// verification step.
type DispatchRecordStore interface {
	SaveDispatchRecord(ctx context.Context, record *models.DispatchRecord, ttl time.Duration) error
}

// DispatchAuditor receives a summary of every completed dispatch.
type DispatchAuditor interface {
	RecordDispatch(ctx context.Context, dispatchID string, result *models.DispatchResult, duration time.Duration) error
}

// CodeHasher hashes fallback codes before they are stored.
type CodeHasher interface {
	HashOTP(otp string) (*hashing.HashResult, error)
}

// OTPService decides between real Telegram delivery and a locally generated
// fallback code, and guarantees the caller some usable code once the phone
// number has been validated.
type OTPService struct {
	adapter           Adapter
	credentials       config.Credentials
	timeout           time.Duration
	disconnectTimeout time.Duration
	sideEffectTimeout time.Duration
	recordTTL         time.Duration
	generateCode      func() int
	records           DispatchRecordStore
	auditor           DispatchAuditor
	hasher            CodeHasher
	logger            *zap.Logger
}

type Option func(*OTPService)

// WithTimeout bounds the combined connect+send attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *OTPService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithDisconnectTimeout(d time.Duration) Option {
	return func(s *OTPService) {
		if d > 0 {
			s.disconnectTimeout = d
		}
	}
}

// WithSideEffectTimeout bounds record storage and audit after a dispatch.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *OTPService) {
		if d > 0 {
			s.sideEffectTimeout = d
		}
	}
}

func WithCodeGenerator(generate func() int) Option {
	return func(s *OTPService) {
		if generate != nil {
			s.generateCode = generate
		}
	}
}

func WithRecordStore(store DispatchRecordStore, hasher CodeHasher, ttl time.Duration) Option {
	return func(s *OTPService) {
		s.records = store
		s.hasher = hasher
		if ttl > 0 {
			s.recordTTL = ttl
		}
	}
}

func WithAuditor(auditor DispatchAuditor) Option {
	return func(s *OTPService) {
		s.auditor = auditor
	}
}

// NewOTPService builds the dispatcher. credentials are copied and never
// re-read from the environment.
func NewOTPService(adapter Adapter, credentials config.Credentials, logger *zap.Logger, opts ...Option) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OTPService{
		adapter:           adapter,
		credentials:       credentials,
		timeout:           defaultDispatchTimeout,
		disconnectTimeout: defaultDisconnectTimeout,
		sideEffectTimeout: defaultSideEffectTimeout,
		recordTTL:         defaultRecordTTL,
		generateCode:      GenerateCode,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CredentialsConfigured reports whether the real delivery path is enabled.
func (s *OTPService) CredentialsConfigured() bool {
	return s.credentials.Present()
}

// Credentials returns the immutable credentials the service was built with.
func (s *OTPService) Credentials() config.Credentials {
	return s.credentials
}

// Dispatch runs one OTP dispatch for req. It returns a ValidationFailure
// only for bad input; every failure past validation becomes a simulated
// result carrying a usable code.
func (s *OTPService) Dispatch(ctx context.Context, req *models.OTPRequest) (result *models.DispatchResult) {
	start := time.Now()
	dispatchID := uuid.NewString()
	phone := ""

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("OTP dispatch panicked, falling back to simulation",
				util.String("dispatch_id", dispatchID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = s.simulate(phone, models.ReasonInternalError, internalErrorMessage)
		}
		if result.Kind != models.DispatchValidationFailure {
			s.afterDispatch(ctx, dispatchID, result, time.Since(start))
		}
	}()

	if req == nil {
		return s.simulate("", models.ReasonInternalError, internalErrorMessage)
	}

	normalized, err := NormalizePhone(req.Phone)
	if err != nil {
		s.logger.Debug("Rejected OTP request",
			util.String("dispatch_id", dispatchID),
			util.ErrorField(err),
		)
		return validationFailure(err)
	}
	phone = normalized

	if !s.credentials.Present() {
		s.logger.Info("Telegram credentials absent, simulating OTP",
			util.String("dispatch_id", dispatchID),
			util.Phone(phone),
		)
		return s.simulate(phone, models.ReasonNoCredentials, noCredentialsMessage)
	}

	reference, err := s.deliver(ctx, phone)
	if err == nil {
		s.logger.Info("OTP delivered via Telegram",
			util.String("dispatch_id", dispatchID),
			util.Phone(phone),
			util.Duration("duration", time.Since(start)),
		)
		return &models.DispatchResult{
			Kind:              models.DispatchRealSuccess,
			Phone:             phone,
			DeliveryReference: reference,
		}
	}

	classified := Classify(err.Error())
	s.logger.Warn("Telegram delivery failed, simulating OTP",
		util.String("dispatch_id", dispatchID),
		util.Phone(phone),
		util.String("error_kind", string(classified.Kind)),
		util.Bool("timeout", errors.Is(err, ErrConnectionTimeout)),
		util.ErrorField(err),
	)
	return s.simulate(phone, classified.Reason(), classified.HumanMessage)
}

// Fallback issues a simulated code without attempting delivery. The handler
// uses it when a request cannot be read at all.
func (s *OTPService) Fallback(ctx context.Context, cause error) *models.DispatchResult {
	dispatchID := uuid.NewString()
	s.logger.Error("Unreadable OTP request, falling back to simulation",
		util.String("dispatch_id", dispatchID),
		util.ErrorField(cause),
	)
	result := s.simulate("", models.ReasonInternalError, internalErrorMessage)
	s.afterDispatch(ctx, dispatchID, result, 0)
	return result
}

type deliveryOutcome struct {
	reference string
	err       error
}

// deliver races connect+send against the dispatch timeout. The attempt is
// detached from the caller's cancellation; on timeout it is abandoned and
// cleans up its own session when it eventually returns.
func (s *OTPService) deliver(ctx context.Context, phone string) (string, error) {
	if s.adapter == nil {
		return "", &ConnectError{Err: errors.New("telegram adapter not configured")}
	}

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	done := make(chan deliveryOutcome, 1)
	go func() {
		done <- s.attempt(attemptCtx, phone)
	}()

	select {
	case outcome := <-done:
		return outcome.reference, outcome.err
	case <-attemptCtx.Done():
		return "", ErrConnectionTimeout
	}
}

func (s *OTPService) attempt(ctx context.Context, phone string) (outcome deliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = deliveryOutcome{err: fmt.Errorf("adapter panicked: %v", r)}
		}
	}()

	session, err := s.adapter.Connect(ctx, s.credentials)
	if err != nil {
		var connectErr *ConnectError
		if !errors.As(err, &connectErr) {
			err = &ConnectError{Err: err}
		}
		return deliveryOutcome{err: err}
	}
	defer s.disconnect(session)

	sent, err := s.adapter.SendCode(ctx, session, s.credentials, phone)
	if err != nil {
		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			err = &SendError{Err: err}
		}
		return deliveryOutcome{err: err}
	}
	if sent == nil {
		return deliveryOutcome{err: &SendError{Err: errors.New("empty send code response")}}
	}
	return deliveryOutcome{reference: sent.DeliveryReference}
}

// disconnect is best-effort; failures are logged and swallowed.
func (s *OTPService) disconnect(session Session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.disconnectTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Adapter disconnect panicked", zap.Any("panic", r))
		}
	}()

	if err := s.adapter.Disconnect(ctx, session); err != nil {
		s.logger.Warn("Adapter disconnect failed", util.ErrorField(err))
	}
}

func (s *OTPService) simulate(phone string, reason models.Reason, message string) *models.DispatchResult {
	return &models.DispatchResult{
		Kind:    models.DispatchSimulated,
		Phone:   phone,
		Code:    s.generateCode(),
		Reason:  reason,
		Message: message,
	}
}

func validationFailure(err error) *models.DispatchResult {
	message := invalidPhoneMessage
	if errors.Is(err, ErrPhoneRequired) {
		message = phoneRequiredMessage
	}
	return &models.DispatchResult{
		Kind:    models.DispatchValidationFailure,
		Message: message,
	}
}

// afterDispatch stores the dispatch record and emits the audit event. Neither
// may change the result returned to the caller.
func (s *OTPService) afterDispatch(ctx context.Context, dispatchID string, result *models.DispatchResult, duration time.Duration) {
	if s.records == nil && s.auditor == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()

	if s.records != nil && result.Phone != "" {
		if err := s.saveRecord(ctx, dispatchID, result); err != nil {
			s.logger.Warn("Failed to store dispatch record",
				util.String("dispatch_id", dispatchID),
				util.ErrorField(err),
			)
		}
	}

	if s.auditor != nil {
		if err := s.auditor.RecordDispatch(ctx, dispatchID, result, duration); err != nil {
			s.logger.Warn("Failed to audit dispatch",
				util.String("dispatch_id", dispatchID),
				util.ErrorField(err),
			)
		}
	}
}

func (s *OTPService) saveRecord(ctx context.Context, dispatchID string, result *models.DispatchResult) error {
	record := &models.DispatchRecord{
		DispatchID: dispatchID,
		Phone:      result.Phone,
		Method:     result.Method(),
		Reason:     string(result.Reason),
		CreatedAt:  time.Now().UTC(),
	}

	switch result.Kind {
	case models.DispatchRealSuccess:
		record.DeliveryReference = result.DeliveryReference
	case models.DispatchSimulated:
		if s.hasher == nil {
			return errors.New("no code hasher configured")
		}
		hashed, err := s.hasher.HashOTP(strconv.Itoa(result.Code))
		if err != nil {
			return fmt.Errorf("failed to hash fallback code: %w", err)
		}
		record.CodeHash = hashed.Hash
		record.CodeSalt = hashed.Salt
		record.PepperVersion = hashed.PepperVersion
		record.HashAlgorithm = hashed.Algorithm
	}

	return s.records.SaveDispatchRecord(ctx, record, s.recordTTL)
}
