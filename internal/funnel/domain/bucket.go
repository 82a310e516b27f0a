// Package domain provides core business rules for the re-engagement funnel
// bounded context. It is pure: no I/O, no clock, no storage.
package domain

// Bucket is the authoritative coarse lifecycle state of a funnel entity.
// It is simultaneously the storage partition and the board column. Downstream
// code branches on this enum exclusively and never re-derives lifecycle from
// message counts or order status.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketCompleted Bucket = "completed"
	BucketExited    Bucket = "exited"
)

var knownBuckets = map[Bucket]struct{}{
	BucketPending:   {},
	BucketCompleted: {},
	BucketExited:    {},
}

// IsKnownBucket reports whether the value is one of the three lifecycle buckets.
func IsKnownBucket(b Bucket) bool {
	_, ok := knownBuckets[b]
	return ok
}

// Buckets returns the three lifecycle buckets in board order.
func Buckets() []Bucket {
	return []Bucket{BucketPending, BucketCompleted, BucketExited}
}
