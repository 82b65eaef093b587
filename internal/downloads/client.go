package downloads

import (
	"context"
	"encoding/json"
	"strings"
)

// Bucket names a delivery-queue state grouping in a status snapshot.
type Bucket string

const (
	BucketQueued      Bucket = "queued"
	BucketResolving   Bucket = "resolving"
	BucketLocating    Bucket = "locating"
	BucketDownloading Bucket = "downloading"
	BucketComplete    Bucket = "complete"
	BucketError       Bucket = "error"
	BucketCancelled   Bucket = "cancelled"
)

var allBuckets = []Bucket{
	BucketQueued,
	BucketResolving,
	BucketLocating,
	BucketDownloading,
	BucketComplete,
	BucketError,
	BucketCancelled,
}

var bucketSet = func() map[Bucket]struct{} {
	set := make(map[Bucket]struct{}, len(allBuckets))
	for _, bucket := range allBuckets {
		set[bucket] = struct{}{}
	}
	return set
}()

// ParseBucket converts a string into a known Bucket.
func ParseBucket(value string) (Bucket, bool) {
	normalized := Bucket(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := bucketSet[normalized]
	return normalized, ok
}

// Snapshot maps delivery buckets to the external delivery/source ids
// currently in them. Values are opaque queue payloads.
type Snapshot map[Bucket]map[string]json.RawMessage

// ReleaseQueuer enqueues a concrete release for asynchronous delivery on
// behalf of a user.
type ReleaseQueuer interface {
	QueueRelease(ctx context.Context, release json.RawMessage, priority int, ownerID int64, ownerUsername string) error
}

// StatusProvider reports the external queue's current snapshot.
type StatusProvider interface {
	QueueStatus(ctx context.Context) (Snapshot, error)
}
