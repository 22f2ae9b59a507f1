package audit

import (
	"context"
	"fmt"

	"otp-gateway/internal/client"
	"otp-gateway/internal/models"
)

const insertDispatchEventQuery = `
INSERT INTO dispatch_events (
    dispatch_id, created_at, phone_hash, phone_bucket,
    method, reason, delivered, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// QueryExecutor runs a single write statement.
type QueryExecutor interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

var _ QueryExecutor = (*client.ClickHouseClient)(nil)

// ClickHouseSink stores the analytics columns of each event. Encrypted phone
// material is not copied to ClickHouse.
type ClickHouseSink struct {
	exec QueryExecutor
}

func NewClickHouseSink(exec QueryExecutor) *ClickHouseSink {
	return &ClickHouseSink{exec: exec}
}

func (s *ClickHouseSink) Name() string {
	return "clickhouse"
}

func (s *ClickHouseSink) WriteDispatchEvent(ctx context.Context, event *models.DispatchEvent) error {
	err := s.exec.Exec(ctx, insertDispatchEventQuery,
		event.DispatchID,
		event.CreatedAt,
		event.PhoneHash,
		uint16(event.PhoneBucket),
		event.Method,
		event.Reason,
		event.Delivered,
		uint32(event.DurationMillis),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch event: %w", err)
	}
	return nil
}
