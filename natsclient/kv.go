package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KV sentinel errors.
var (
	ErrKVKeyNotFound = stderrors.New("kv key not found")
	ErrKVConflict    = stderrors.New("kv revision conflict")
)

// KVEntry wraps a KV value with its revision for CAS operations.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVStore provides revision-aware operations over one KV bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
}

// NewKVStore wraps a KV bucket. All operations get a per-call timeout.
func (c *Client) NewKVStore(bucket jetstream.KeyValue) *KVStore {
	return &KVStore{
		bucket:  bucket,
		timeout: 5 * time.Second,
	}
}

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.timeout > 0 {
		return context.WithTimeout(ctx, kv.timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Create stores a value only if the key does not already exist. A key
// collision returns ErrKVConflict, which callers use as a uniqueness
// constraint.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	revision, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKVConflict
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	return revision, nil
}

// Update stores a value only if the current revision matches, for
// optimistic concurrency control.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	next, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongRevisionError(err) {
			return 0, ErrKVConflict
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	return next, nil
}

// Put stores a value unconditionally.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	revision, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	return revision, nil
}

// Delete removes a key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrKVKeyNotFound
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys in the bucket.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

// IsKVConflictError reports whether err denotes a create/update conflict.
func IsKVConflictError(err error) bool {
	return stderrors.Is(err, ErrKVConflict)
}

// IsKVNotFoundError reports whether err denotes a missing key.
func IsKVNotFoundError(err error) bool {
	return stderrors.Is(err, ErrKVKeyNotFound)
}

func isWrongRevisionError(err error) bool {
	if err == nil {
		return false
	}
	// jetstream surfaces CAS mismatches as an API error without a typed
	// sentinel; match on the stable fragment.
	return stderrors.Is(err, jetstream.ErrKeyExists) ||
		strings.Contains(strings.ToLower(err.Error()), "wrong last sequence")
}
