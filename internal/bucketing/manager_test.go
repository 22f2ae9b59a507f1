package bucketing

import (
	"fmt"
	"testing"
	"time"

	"otp-gateway/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestGetPhoneBucketIsStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(&config.Config{Bucketing: config.BucketingConfig{PhoneBuckets: 16}})

	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		phone := fmt.Sprintf("+62812%07d", i)
		bucket := bm.GetPhoneBucket(phone)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 16)
		assert.Equal(t, bucket, bm.GetPhoneBucket(phone))
		seen[bucket] = true
	}
	assert.Greater(t, len(seen), 8, "phones should spread over most buckets")
}

func TestNewBucketingManagerDefaultsBucketCount(t *testing.T) {
	bm := NewBucketingManager(&config.Config{})
	assert.Equal(t, 256, bm.PhoneBuckets())
}

func TestGetDateBucketUsesUTC(t *testing.T) {
	bm := NewBucketingManager(&config.Config{})
	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2026, 3, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-01", bm.GetDateBucket(ts))
}
