package scylla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-gateway/internal/models"
)

type recordingExecutor struct {
	stmt   string
	values []interface{}
	err    error
}

func (r *recordingExecutor) Exec(_ context.Context, stmt string, values ...interface{}) error {
	r.stmt = stmt
	r.values = values
	return r.err
}

type dayBucketer struct{}

func (dayBucketer) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func TestDispatchEventRepository_Write(t *testing.T) {
	exec := &recordingExecutor{}
	repo := newDispatchEventRepository(exec, "INSERT", dayBucketer{})

	created := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	event := &models.DispatchEvent{
		DispatchID:     "d-1",
		PhoneHash:      "abc",
		PhoneEncrypted: "enc",
		PhoneDEK:       "dek",
		PhoneKeyID:     "local",
		PhoneBucket:    17,
		Method:         models.MethodSimulation,
		Reason:         string(models.ReasonFloodLimited),
		DurationMillis: 42,
		CreatedAt:      created,
	}

	require.NoError(t, repo.WriteDispatchEvent(context.Background(), event))
	assert.Equal(t, "scylla", repo.Name())
	assert.Equal(t, "INSERT", exec.stmt)
	require.Len(t, exec.values, 13)
	assert.Equal(t, 17, exec.values[0])
	assert.Equal(t, "2024-03-09", exec.values[1])
	assert.Equal(t, created, exec.values[2])
	assert.Equal(t, "d-1", exec.values[3])
	assert.Equal(t, false, exec.values[10])
	assert.Equal(t, int64(42), exec.values[11])
	assert.Equal(t, 30*24*3600, exec.values[12])
}

func TestDispatchEventRepository_WriteError(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("unavailable")}
	repo := newDispatchEventRepository(exec, "INSERT", dayBucketer{})

	err := repo.WriteDispatchEvent(context.Background(), &models.DispatchEvent{DispatchID: "d-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.err)
}
