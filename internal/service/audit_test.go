package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"otp-gateway/internal/encryption"
	"otp-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	name   string
	err    error
	mu     sync.Mutex
	events []*models.DispatchEvent
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) WriteDispatchEvent(_ context.Context, event *models.DispatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeEncryptor struct {
	err error
}

func (f fakeEncryptor) EncryptField(_ context.Context, plaintext string) (*encryption.EncryptedData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &encryption.EncryptedData{EncryptedValue: "sealed", EncryptedDEK: "dek", KeyID: "key-1"}, nil
}

type fixedBucketer int

func (b fixedBucketer) GetPhoneBucket(string) int { return int(b) }

func TestAuditRecorderFansOutToAllSinks(t *testing.T) {
	kafka := &fakeSink{name: "kafka"}
	clickhouse := &fakeSink{name: "clickhouse", err: errors.New("table missing")}
	elastic := &fakeSink{name: "elasticsearch"}
	recorder := NewAuditRecorder(fakeEncryptor{}, fixedBucketer(7), zap.NewNop(), kafka, clickhouse, elastic)

	result := &models.DispatchResult{
		Kind:   models.DispatchSimulated,
		Phone:  "+628123456789",
		Code:   12345,
		Reason: models.ReasonFloodLimited,
	}
	err := recorder.RecordDispatch(context.Background(), "dispatch-1", result, 1500*time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse")
	assert.Equal(t, []string{"kafka", "clickhouse", "elasticsearch"}, recorder.Sinks())

	for _, sink := range []*fakeSink{kafka, clickhouse, elastic} {
		require.Len(t, sink.events, 1, sink.name)
	}

	event := kafka.events[0]
	assert.Equal(t, "dispatch-1", event.DispatchID)
	assert.Equal(t, models.MethodSimulation, event.Method)
	assert.Equal(t, "FloodLimited", event.Reason)
	assert.False(t, event.Delivered)
	assert.EqualValues(t, 1500, event.DurationMillis)
	assert.Equal(t, 7, event.PhoneBucket)
	assert.Equal(t, "sealed", event.PhoneEncrypted)
	assert.Equal(t, "dek", event.PhoneDEK)
	assert.Len(t, event.PhoneHash, 64)
	assert.NotContains(t, event.PhoneHash, "628123456789")
}

func TestAuditRecorderRealDelivery(t *testing.T) {
	sink := &fakeSink{name: "kafka"}
	recorder := NewAuditRecorder(nil, nil, zap.NewNop(), sink)

	err := recorder.RecordDispatch(context.Background(), "dispatch-2", &models.DispatchResult{
		Kind:              models.DispatchRealSuccess,
		Phone:             "+628123456789",
		DeliveryReference: "ref",
	}, time.Second)

	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].Delivered)
	assert.Equal(t, models.MethodTelegram, sink.events[0].Method)
	assert.NotEmpty(t, sink.events[0].PhoneHash)
	assert.Empty(t, sink.events[0].PhoneEncrypted)
	assert.Empty(t, sink.events[0].PhoneDEK)
	assert.Empty(t, sink.events[0].PhoneKeyID)
}

func TestAuditRecorderEncryptionFailureSkipsSinks(t *testing.T) {
	sink := &fakeSink{name: "kafka"}
	recorder := NewAuditRecorder(fakeEncryptor{err: errors.New("kms unavailable")}, nil, zap.NewNop(), sink)

	err := recorder.RecordDispatch(context.Background(), "dispatch-3", &models.DispatchResult{
		Kind:  models.DispatchSimulated,
		Phone: "+628123456789",
	}, 0)

	require.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestAuditRecorderWithoutSinks(t *testing.T) {
	recorder := NewAuditRecorder(fakeEncryptor{err: errors.New("unused")}, nil, zap.NewNop())
	assert.NoError(t, recorder.RecordDispatch(context.Background(), "id", &models.DispatchResult{Phone: "+628123456789"}, 0))
}
