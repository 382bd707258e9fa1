package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"
)

const boltFileMode os.FileMode = 0o600

var defaultBoltOptions = &bbolt.Options{Timeout: 5 * time.Second, NoGrowSync: true}

// Bolt is a Store persisted in one bucket of a bbolt database.
//
// bbolt gives single-writer/multi-reader transactions, so the store only
// guards its closed state.
type Bolt[T any] struct {
	db     *bbolt.DB
	bucket []byte
	codec  Codec[T]
	closed *atomic.Bool
}

var _ Store[struct{}] = (*Bolt[struct{}])(nil)

// OpenBolt opens or creates the database at path and the named bucket in it.
// A nil codec defaults to CBOR.
func OpenBolt[T any](path, bucket string, codec Codec[T]) (*Bolt[T], error) {
	if codec == nil {
		codec = CBOR[T]()
	}
	options := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &options)
	if err != nil {
		return nil, fmt.Errorf("storage: opening boltdb: %w", err)
	}
	name := []byte(bucket)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(name)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: initializing boltdb bucket: %w", err)
	}
	return &Bolt[T]{db: db, bucket: name, codec: codec, closed: atomic.NewBool(false)}, nil
}

func (s *Bolt[T]) ensureOpen(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return contextErr(ctx)
}

func (s *Bolt[T]) tx(fn func(*bbolt.Bucket) error) func(*bbolt.Tx) error {
	return func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("storage: bucket %q missing", s.bucket)
		}
		return fn(b)
	}
}

func (s *Bolt[T]) Put(ctx context.Context, key string, value T) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Update(s.tx(func(b *bbolt.Bucket) error {
		return b.Put([]byte(key), data)
	}))
}

func (s *Bolt[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var (
		v     T
		found bool
	)
	if err := s.ensureOpen(ctx); err != nil {
		return v, false, err
	}
	err := s.db.View(s.tx(func(b *bbolt.Bucket) error {
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		decoded, err := s.codec.Unmarshal(raw)
		if err != nil {
			return fmt.Errorf("storage: decode %q: %w", key, err)
		}
		v, found = decoded, true
		return nil
	}))
	return v, found, err
}

func (s *Bolt[T]) Delete(ctx context.Context, key string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	return s.db.Update(s.tx(func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	}))
}

// Values walks the bucket in key order.
func (s *Bolt[T]) Values(ctx context.Context) ([]T, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	var out []T
	err := s.db.View(s.tx(func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, raw []byte) error {
			v, err := s.codec.Unmarshal(raw)
			if err != nil {
				return fmt.Errorf("storage: decode %q: %w", k, err)
			}
			out = append(out, v)
			return nil
		})
	}))
	return out, err
}

// Close releases the database handle. The file is kept.
func (s *Bolt[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
