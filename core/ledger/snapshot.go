package ledger

import (
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/kv"
	"golang.org/x/xerrors"
)

// bucketSnapshot is the adapter of a database bucket to a store snapshot. The
// values are copied out of the bucket as they are only valid during the
// transaction.
//
// - implements store.Snapshot
type bucketSnapshot struct {
	bucket kv.Bucket
}

func newBucketSnapshot(bucket kv.Bucket) store.Snapshot {
	return bucketSnapshot{bucket: bucket}
}

// Get implements store.Readable. It returns a copy of the value or nil if the
// key does not exist.
func (snap bucketSnapshot) Get(key []byte) ([]byte, error) {
	if snap.bucket == nil {
		return nil, nil
	}

	value := snap.bucket.Get(key)
	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

// Set implements store.Writable. It writes the value in the bucket.
func (snap bucketSnapshot) Set(key, value []byte) error {
	if snap.bucket == nil {
		return xerrors.New("snapshot is read-only")
	}

	return snap.bucket.Set(key, value)
}

// Delete implements store.Writable. It removes the key from the bucket.
func (snap bucketSnapshot) Delete(key []byte) error {
	if snap.bucket == nil {
		return xerrors.New("snapshot is read-only")
	}

	return snap.bucket.Delete(key)
}
