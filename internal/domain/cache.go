package domain

import (
	"context"
	"time"
)

// QuestionCache provides fast question record lookups.
type QuestionCache interface {
	Set(ctx context.Context, q QuestionData) error
	Get(ctx context.Context, id QuestionID) (QuestionData, error)
	Invalidate(ctx context.Context, id QuestionID) error
}

// LockManager provides distributed locking, used to serialize mutating
// operations on a single question across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of lifecycle events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles requests per key, used by the HTTP surface to shield
// the oracle and settlement collaborators from request floods.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
