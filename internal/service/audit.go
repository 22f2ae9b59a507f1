package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"otp-gateway/internal/encryption"
	"otp-gateway/internal/models"
	"otp-gateway/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AuditSink is a destination for dispatch events (Kafka, ClickHouse,
// Elasticsearch, ScyllaDB).
type AuditSink interface {
	Name() string
	WriteDispatchEvent(ctx context.Context, event *models.DispatchEvent) error
}

// PhoneEncryptor seals the phone number carried in audit events.
type PhoneEncryptor interface {
	EncryptField(ctx context.Context, plaintext string) (*encryption.EncryptedData, error)
}

// PhoneBucketer assigns phones to audit partitions.
type PhoneBucketer interface {
	GetPhoneBucket(phone string) int
}

// AuditRecorder builds a DispatchEvent and fans it out to every sink in
// parallel. A failing sink never blocks the others.
type AuditRecorder struct {
	sinks     []AuditSink
	encryptor PhoneEncryptor
	bucketer  PhoneBucketer
	logger    *zap.Logger
}

func NewAuditRecorder(encryptor PhoneEncryptor, bucketer PhoneBucketer, logger *zap.Logger, sinks ...AuditSink) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{
		sinks:     sinks,
		encryptor: encryptor,
		bucketer:  bucketer,
		logger:    logger,
	}
}

// Sinks returns the names of the configured sinks.
func (a *AuditRecorder) Sinks() []string {
	names := make([]string, 0, len(a.sinks))
	for _, sink := range a.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// RecordDispatch implements DispatchAuditor.
func (a *AuditRecorder) RecordDispatch(ctx context.Context, dispatchID string, result *models.DispatchResult, duration time.Duration) error {
	if len(a.sinks) == 0 {
		return nil
	}

	event, err := a.buildEvent(ctx, dispatchID, result, duration)
	if err != nil {
		return err
	}

	var g errgroup.Group
	errs := make([]error, len(a.sinks))
	for i, sink := range a.sinks {
		g.Go(func() error {
			if err := sink.WriteDispatchEvent(ctx, event); err != nil {
				a.logger.Warn("Audit sink write failed",
					util.String("sink", sink.Name()),
					util.String("dispatch_id", dispatchID),
					util.ErrorField(err),
				)
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (a *AuditRecorder) buildEvent(ctx context.Context, dispatchID string, result *models.DispatchResult, duration time.Duration) (*models.DispatchEvent, error) {
	event := &models.DispatchEvent{
		DispatchID:     dispatchID,
		Method:         result.Method(),
		Reason:         string(result.Reason),
		Delivered:      result.Kind == models.DispatchRealSuccess,
		DurationMillis: duration.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}

	if result.Phone == "" {
		return event, nil
	}

	sum := sha256.Sum256([]byte(result.Phone))
	event.PhoneHash = hex.EncodeToString(sum[:])

	if a.bucketer != nil {
		event.PhoneBucket = a.bucketer.GetPhoneBucket(result.Phone)
	}

	if a.encryptor != nil {
		encrypted, err := a.encryptor.EncryptField(ctx, result.Phone)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt phone for audit: %w", err)
		}
		event.PhoneEncrypted = encrypted.EncryptedValue
		event.PhoneDEK = encrypted.EncryptedDEK
		event.PhoneKeyID = encrypted.KeyID
	}

	return event, nil
}
