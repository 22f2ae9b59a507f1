package audit

import (
	"context"
	"time"

	"otp-gateway/internal/client"
	"otp-gateway/internal/models"
)

// DocumentIndexer stores one document under an explicit id.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

var _ DocumentIndexer = (*client.ESClient)(nil)

type dispatchDocument struct {
	DispatchID  string    `json:"dispatch_id"`
	PhoneHash   string    `json:"phone_hash"`
	PhoneBucket int       `json:"phone_bucket"`
	Method      string    `json:"method"`
	Reason      string    `json:"reason,omitempty"`
	Delivered   bool      `json:"delivered"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"@timestamp"`
}

// ElasticsearchSink indexes searchable dispatch documents. The dispatch id is
// the document id, so a retried write replaces rather than duplicates.
type ElasticsearchSink struct {
	indexer DocumentIndexer
	index   string
}

func NewElasticsearchSink(indexer DocumentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string {
	return "elasticsearch"
}

func (s *ElasticsearchSink) WriteDispatchEvent(ctx context.Context, event *models.DispatchEvent) error {
	doc := dispatchDocument{
		DispatchID:  event.DispatchID,
		PhoneHash:   event.PhoneHash,
		PhoneBucket: event.PhoneBucket,
		Method:      event.Method,
		Reason:      event.Reason,
		Delivered:   event.Delivered,
		DurationMS:  event.DurationMillis,
		Timestamp:   event.CreatedAt,
	}
	return s.indexer.IndexDocument(ctx, s.index, event.DispatchID, doc)
}
