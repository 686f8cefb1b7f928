package cache

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Storage holds named cache buckets.
// Each bucket is a key-value store of serialized responses, keyed by request descriptor.
// Buckets are created on first use and live until they are deleted as a whole.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the bucket with the given name, creating it if it does not exist.
	Open(name string) (Bucket, error)
	// Has checks if a bucket with the given name exists.
	Has(name string) (bool, error)
	// Delete removes the bucket and all of its entries.
	// It returns false if there was no such bucket.
	Delete(name string) (bool, error)
	// Keys returns the names of all buckets, in creation order.
	Keys() ([]string, error)
	// Close releases the storage. Buckets must not be used afterwards.
	Close() error
}

// Bucket is a single named cache.
// Writes to the same key are not ordered; the last completed write is retained.
type Bucket interface {
	Name() string
	// Get returns the entry stored under key, if any.
	Get(key string) (CacheEntry, bool, error)
	// Put stores the entry, replacing any previous entry with the same key.
	Put(entry CacheEntry) error
	// PutAll stores all of the entries or none of them.
	PutAll(entries []CacheEntry) error
	// Delete removes the entry stored under key.
	Delete(key string) (bool, error)
	// Keys returns the keys of all entries, in insertion order.
	Keys() ([]string, error)
}

type CacheEntry struct {
	Key      string
	StoredAt time.Time
	Bytes    []byte
}
