// Package bbolt provides a BBolt-backed storage.Backend, for hosts that
// keep several stores in one database file.
package bbolt

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/fxaccount/storage"
)

const defaultBucket = "documents"

// Backend stores one document under a key of a bucket.
type Backend struct {
	db     *bbolt.DB
	bucket []byte
	key    []byte
}

var _ storage.Backend = (*Backend)(nil)

// New returns a Backend storing its document under key in the default
// bucket of db.
func New(db *bbolt.DB, key string) *Backend {
	return NewInBucket(db, defaultBucket, key)
}

// NewInBucket returns a Backend storing its document under bucket/key.
func NewInBucket(db *bbolt.DB, bucket, key string) *Backend {
	return &Backend{db: db, bucket: []byte(bucket), key: []byte(key)}
}

// OpenDB opens the BBolt database at path.
func OpenDB(path string, options *bbolt.Options) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return db, nil
}

func (b *Backend) Load() ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return fmt.Errorf("%s: %w", b.bucket, storage.ErrNotFound)
		}
		v := bucket.Get(b.key)
		if v == nil {
			return fmt.Errorf("%s/%s: %w", b.bucket, b.key, storage.ErrNotFound)
		}
		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *Backend) Save(data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", b.bucket, err)
		}
		return bucket.Put(b.key, data)
	})
}
