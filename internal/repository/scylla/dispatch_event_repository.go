package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-gateway/internal/models"
	"otp-gateway/internal/util"
)

// Dispatch events expire after this long.
const dispatchEventRetention = 30 * 24 * time.Hour

// DateBucketer maps an event time to its day partition.
type DateBucketer interface {
	GetDateBucket(t time.Time) string
}

// StatementExecutor runs a single CQL statement.
type StatementExecutor interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
}

// DispatchEventRepository writes dispatch events into a table partitioned by
// (phone_bucket, day).
type DispatchEventRepository struct {
	exec      StatementExecutor
	statement string
	dates     DateBucketer
}

func NewDispatchEventRepository(client *ScyllaClient, dates DateBucketer) *DispatchEventRepository {
	return newDispatchEventRepository(client, client.Prepared.InsertDispatchEvent, dates)
}

func newDispatchEventRepository(exec StatementExecutor, statement string, dates DateBucketer) *DispatchEventRepository {
	return &DispatchEventRepository{exec: exec, statement: statement, dates: dates}
}

func (r *DispatchEventRepository) Name() string {
	return "scylla"
}

func (r *DispatchEventRepository) WriteDispatchEvent(ctx context.Context, event *models.DispatchEvent) error {
	if err := r.exec.Exec(ctx, r.statement, r.values(event)...); err != nil {
		util.Error("Failed to insert dispatch event",
			zap.String("dispatch_id", event.DispatchID),
			zap.Int("phone_bucket", event.PhoneBucket),
			zap.Error(err))
		return fmt.Errorf("failed to insert dispatch event: %w", err)
	}
	return nil
}

func (r *DispatchEventRepository) values(event *models.DispatchEvent) []interface{} {
	return []interface{}{
		event.PhoneBucket,
		r.dates.GetDateBucket(event.CreatedAt),
		event.CreatedAt,
		event.DispatchID,
		event.PhoneHash,
		event.PhoneEncrypted,
		event.PhoneDEK,
		event.PhoneKeyID,
		event.Method,
		event.Reason,
		event.Delivered,
		event.DurationMillis,
		int(dispatchEventRetention.Seconds()),
	}
}
