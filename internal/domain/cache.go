package domain

import (
	"context"
	"io"
	"time"
)

// MarketCache caches market records keyed by id.
type MarketCache interface {
	Get(ctx context.Context, id int64) (FriendMarket, error)
	Set(ctx context.Context, m FriendMarket) error
	Invalidate(ctx context.Context, id int64) error
}

// LockManager provides distributed mutual exclusion, used to serialize
// concurrent transitions on the same market across processes.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function. It returns ErrLockHeld if the lock is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key across processes.
type RateLimiter interface {
	// Allow reports whether a request for key is admitted under the
	// limit-per-window budget, counting it when admitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}

// StreamMessage is a single durable message read from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the pub/sub and durable-stream event transport.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter writes objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader reads objects back from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// CapabilityChecker is the narrow interface to the external membership/role
// service that gates market creation.
type CapabilityChecker interface {
	MayCreate(ctx context.Context, marketType MarketType, addr string) (bool, error)
}
