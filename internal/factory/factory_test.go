package factory

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-gateway/internal/config"
	"otp-gateway/internal/models"
	"otp-gateway/internal/service"
	"otp-gateway/internal/util"
)

type captureSink struct {
	mu     sync.Mutex
	events []*models.DispatchEvent
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) WriteDispatchEvent(_ context.Context, event *models.DispatchEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func minimalConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Logging:     config.LoggingConfig{Level: "error", Format: "json"},
		Telegram:    config.TelegramConfig{Transport: "tcp"},
		Dispatch: config.DispatchConfig{
			Timeout:      time.Second,
			RecordTTL:    time.Minute,
			AuditTimeout: time.Second,
		},
		Hashing:   config.HashingConfig{Pepper: "test-pepper"},
		Bucketing: config.BucketingConfig{PhoneBuckets: 16},
	}
}

func TestNew_WithoutStores(t *testing.T) {
	f, err := New(minimalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Nil(t, f.DispatchCache())
	assert.Nil(t, f.TLSManager())
	assert.Equal(t, 0, f.auditSinkCount())
	assert.Empty(t, f.HealthCheck(context.Background()))
	assert.True(t, f.LogStoreHealth(context.Background()))

	svc := f.ServiceFactory().OTPService()
	assert.Same(t, svc, f.ServiceFactory().OTPService())
	assert.False(t, svc.CredentialsConfigured())

	result := svc.Dispatch(context.Background(), &models.OTPRequest{Phone: "+628123456789"})
	assert.Equal(t, models.DispatchSimulated, result.Kind)
	assert.Equal(t, models.ReasonNoCredentials, result.Reason)
}

func TestClose_Idempotent(t *testing.T) {
	f, err := New(minimalConfig())
	require.NoError(t, err)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestPhoneEncryptor(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	tests := []struct {
		name        string
		environment string
		localKey    string
		want        bool
	}{
		{"default config", "development", "", false},
		{"local key in development", "development", key, true},
		{"local key in production", "production", key, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			cfg.Environment = tt.environment
			cfg.KMS.LocalKey = tt.localKey

			f, err := New(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = f.Close() })

			if tt.want {
				assert.NotNil(t, f.phoneEncryptor())
			} else {
				assert.Nil(t, f.phoneEncryptor())
			}
		})
	}
}

func TestDefaultAuditEventCarriesNoPhoneCiphertext(t *testing.T) {
	f, err := New(minimalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	sink := &captureSink{}
	recorder := service.NewAuditRecorder(f.phoneEncryptor(), f.BucketingManager(), util.Named("audit"), sink)

	err = recorder.RecordDispatch(context.Background(), "d-1", &models.DispatchResult{
		Kind:   models.DispatchSimulated,
		Phone:  "+628123456789",
		Code:   12345,
		Reason: models.ReasonNoCredentials,
	}, time.Millisecond)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.NotEmpty(t, event.PhoneHash)
	assert.Empty(t, event.PhoneEncrypted)
	assert.Empty(t, event.PhoneDEK)
	assert.Empty(t, event.PhoneKeyID)
	assert.NotContains(t, event.PhoneHash, "628123456789")
}

func TestNew_RejectsMalformedLocalKey(t *testing.T) {
	cfg := minimalConfig()
	cfg.KMS.LocalKey = "too-short"

	_, err := New(cfg)
	assert.Error(t, err)
}
