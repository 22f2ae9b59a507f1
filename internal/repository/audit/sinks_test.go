package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-gateway/internal/models"
)

func sampleEvent() *models.DispatchEvent {
	return &models.DispatchEvent{
		DispatchID:     "d-1",
		PhoneHash:      "f00d",
		PhoneEncrypted: "ciphertext",
		PhoneDEK:       "dek",
		PhoneKeyID:     "local",
		PhoneBucket:    12,
		Method:         models.MethodSimulation,
		Reason:         string(models.ReasonNoCredentials),
		DurationMillis: 7,
		CreatedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

type captureProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (c *captureProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	c.topic, c.key, c.value, c.headers = topic, key, value, headers
	return c.err
}

func TestKafkaSink(t *testing.T) {
	producer := &captureProducer{}
	sink := NewKafkaSink(producer, "otp.dispatch")

	require.NoError(t, sink.WriteDispatchEvent(context.Background(), sampleEvent()))
	assert.Equal(t, "kafka", sink.Name())
	assert.Equal(t, "otp.dispatch", producer.topic)
	assert.Equal(t, []byte("f00d"), producer.key)
	assert.Equal(t, "otp.dispatched", producer.headers["event_type"])
	assert.Equal(t, "NoCredentials", producer.headers["reason"])

	var decoded models.DispatchEvent
	require.NoError(t, json.Unmarshal(producer.value, &decoded))
	assert.Equal(t, *sampleEvent(), decoded)
}

func TestKafkaSink_Error(t *testing.T) {
	producer := &captureProducer{err: errors.New("broker down")}
	err := NewKafkaSink(producer, "t").WriteDispatchEvent(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, producer.err)
}

type captureExec struct {
	query string
	args  []interface{}
	err   error
}

func (c *captureExec) Exec(_ context.Context, query string, args ...interface{}) error {
	c.query, c.args = query, args
	return c.err
}

func TestClickHouseSink(t *testing.T) {
	exec := &captureExec{}
	sink := NewClickHouseSink(exec)

	require.NoError(t, sink.WriteDispatchEvent(context.Background(), sampleEvent()))
	assert.Equal(t, "clickhouse", sink.Name())
	assert.Contains(t, exec.query, "INSERT INTO dispatch_events")
	require.Len(t, exec.args, 8)
	assert.Equal(t, "d-1", exec.args[0])
	assert.Equal(t, uint16(12), exec.args[3])
	assert.Equal(t, uint32(7), exec.args[7])
	for _, arg := range exec.args {
		assert.NotEqual(t, "ciphertext", arg)
	}
}

func TestClickHouseSink_Error(t *testing.T) {
	exec := &captureExec{err: errors.New("timeout")}
	err := NewClickHouseSink(exec).WriteDispatchEvent(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, exec.err)
}

type captureIndexer struct {
	index string
	id    string
	doc   interface{}
}

func (c *captureIndexer) IndexDocument(_ context.Context, index, id string, document interface{}) error {
	c.index, c.id, c.doc = index, id, document
	return nil
}

func TestElasticsearchSink(t *testing.T) {
	indexer := &captureIndexer{}
	sink := NewElasticsearchSink(indexer, "otp-dispatch")

	require.NoError(t, sink.WriteDispatchEvent(context.Background(), sampleEvent()))
	assert.Equal(t, "elasticsearch", sink.Name())
	assert.Equal(t, "otp-dispatch", indexer.index)
	assert.Equal(t, "d-1", indexer.id)

	raw, err := json.Marshal(indexer.doc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ciphertext")
	assert.Contains(t, string(raw), `"@timestamp":"2024-05-01T10:00:00Z"`)
}
