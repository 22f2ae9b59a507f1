package bucketing

import (
	"hash"
	"sync"
	"time"

	"otp-gateway/internal/config"

	"github.com/spaolacci/murmur3"
)

const defaultPhoneBuckets = 256

// BucketingManager spreads phone-keyed audit rows over a fixed number of
// partitions so that a single busy number cannot create a hot partition.
type BucketingManager struct {
	phoneBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	buckets := cfg.Bucketing.PhoneBuckets
	if buckets <= 0 {
		buckets = defaultPhoneBuckets
	}

	bm := &BucketingManager{phoneBuckets: buckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// GetPhoneBucket returns a stable bucket in [0, PhoneBuckets()) for phone.
func (bm *BucketingManager) GetPhoneBucket(phone string) int {
	return int(bm.getHash(phone) % uint64(bm.phoneBuckets))
}

// GetDateBucket returns the UTC day partition for t.
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) PhoneBuckets() int {
	return bm.phoneBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
