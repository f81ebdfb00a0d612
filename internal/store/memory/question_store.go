// Package memory provides process-local implementations of the domain store
// and cache interfaces, used by standalone mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// QuestionStore implements domain.QuestionStore with an in-process map.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[domain.QuestionID]domain.QuestionData
}

// NewQuestionStore creates an empty QuestionStore.
func NewQuestionStore() *QuestionStore {
	return &QuestionStore{
		questions: make(map[domain.QuestionID]domain.QuestionData),
	}
}

// Create inserts a new record, failing with ErrAlreadyExists on duplicates.
func (s *QuestionStore) Create(ctx context.Context, q domain.QuestionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.QuestionID]; ok {
		return domain.ErrAlreadyExists
	}
	s.questions[q.QuestionID] = q.Clone()
	return nil
}

// Update replaces an existing record, failing with ErrNotFound when absent.
func (s *QuestionStore) Update(ctx context.Context, q domain.QuestionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.QuestionID]; !ok {
		return domain.ErrNotFound
	}
	s.questions[q.QuestionID] = q.Clone()
	return nil
}

// Get returns a deep copy of the stored record.
func (s *QuestionStore) Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.QuestionData{}, domain.ErrNotFound
	}
	return q.Clone(), nil
}

// ListUnresolved returns unresolved questions ordered by creation time.
func (s *QuestionStore) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.QuestionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.QuestionData
	for _, q := range s.questions {
		if !q.Resolved {
			out = append(out, q.Clone())
		}
	}
	sortByCreatedAt(out)
	return paginate(out, opts), nil
}

// ListResolvedBefore returns resolved questions last updated before the given
// time, ordered by creation time.
func (s *QuestionStore) ListResolvedBefore(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.QuestionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.QuestionData
	for _, q := range s.questions {
		if q.Resolved && q.UpdatedAt.Before(before) {
			out = append(out, q.Clone())
		}
	}
	sortByCreatedAt(out)
	return paginate(out, opts), nil
}

// Count returns the number of stored records.
func (s *QuestionStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.questions)), nil
}

func sortByCreatedAt(qs []domain.QuestionData) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].QuestionID.Hex() < qs[j].QuestionID.Hex()
		}
		return qs[i].CreatedAt.Before(qs[j].CreatedAt)
	})
}

func paginate(qs []domain.QuestionData, opts domain.ListOpts) []domain.QuestionData {
	if opts.Offset > 0 {
		if opts.Offset >= len(qs) {
			return nil
		}
		qs = qs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(qs) {
		qs = qs[:opts.Limit]
	}
	return qs
}

// Compile-time interface check.
var _ domain.QuestionStore = (*QuestionStore)(nil)
