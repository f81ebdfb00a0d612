package memory

import (
	"context"
	"sync"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// QuestionCache implements domain.QuestionCache with a process-local map.
// Entries never expire; standalone deployments are single-writer so staleness
// is bounded by the service's own invalidation calls.
type QuestionCache struct {
	mu      sync.RWMutex
	entries map[domain.QuestionID]domain.QuestionData
}

// NewQuestionCache creates an empty QuestionCache.
func NewQuestionCache() *QuestionCache {
	return &QuestionCache{entries: make(map[domain.QuestionID]domain.QuestionData)}
}

// Set stores a question record.
func (c *QuestionCache) Set(ctx context.Context, q domain.QuestionData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[q.QuestionID] = q.Clone()
	return nil
}

// Get retrieves a question record, returning ErrNotFound on a miss.
func (c *QuestionCache) Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[id]
	if !ok {
		return domain.QuestionData{}, domain.ErrNotFound
	}
	return q.Clone(), nil
}

// Invalidate removes a cached record.
func (c *QuestionCache) Invalidate(ctx context.Context, id domain.QuestionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// LockManager implements domain.LockManager with process-local mutexes. TTLs
// are ignored; locks are released only via the returned unlock function.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]bool)}
}

// Acquire takes the named lock, returning domain.ErrLockHeld when it is
// already taken.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.locks[key] {
		return nil, domain.ErrLockHeld
	}
	lm.locks[key] = true

	released := false
	return func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.locks, key)
	}, nil
}

// SignalBus implements domain.SignalBus with in-process channels.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every subscriber of channel. Slow subscribers
// drop messages rather than block the publisher.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	for _, ch := range sb.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for channel. The returned channel is
// closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	sb.mu.Lock()
	sb.subs[channel] = append(sb.subs[channel], ch)
	sb.mu.Unlock()

	go func() {
		<-ctx.Done()
		sb.mu.Lock()
		defer sb.mu.Unlock()
		subs := sb.subs[channel]
		for i, c := range subs {
			if c == ch {
				sb.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// AuditStore implements domain.AuditStore with an in-process slice.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns audit entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AuditEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.QuestionCache = (*QuestionCache)(nil)
	_ domain.LockManager   = (*LockManager)(nil)
	_ domain.SignalBus     = (*SignalBus)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
)
