package store

// Store is a bucketed key-value interface. The shipped implementation is
// bbolt; the interface keeps credential and queue code independent of the
// engine.
type Store interface {
	Get(bucket, key []byte) ([]byte, error)
	Put(bucket, key, value []byte) error

	// PutIfAbsent writes value only when key is vacant, in one atomic
	// step, and reports whether it wrote.
	PutIfAbsent(bucket, key, value []byte) (bool, error)

	Delete(bucket, key []byte) error
	ForEach(bucket []byte, fn func(key, value []byte) error) error

	// ForEachPrefix visits keys sharing prefix in byte order. Queue
	// consumers rely on the ordering to replay in arrival order.
	ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) error) error

	// NextSeq returns a bucket-scoped counter that never repeats.
	NextSeq(bucket []byte) (uint64, error)

	Snapshot(bucket []byte) (map[string][]byte, error)
	Close() error
}
