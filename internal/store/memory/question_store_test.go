package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

func sampleQuestion(data string, createdAt time.Time) domain.QuestionData {
	return domain.QuestionData{
		QuestionID:       domain.DeriveQuestionID([]byte(data)),
		AncillaryData:    []byte(data),
		RequestTimestamp: createdAt.Unix(),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestQuestionStoreCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewQuestionStore()

	q := sampleQuestion("q1", time.Unix(1000, 0))
	if err := s.Create(ctx, q); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, q); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate create err=%v want ErrAlreadyExists", err)
	}

	got, err := s.Get(ctx, q.QuestionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.AncillaryData) != "q1" {
		t.Fatalf("ancillary=%q", got.AncillaryData)
	}

	// Mutating the returned copy must not affect stored state.
	got.AncillaryData[0] = 'z'
	again, _ := s.Get(ctx, q.QuestionID)
	if string(again.AncillaryData) != "q1" {
		t.Fatalf("store aliases returned record")
	}

	got.Resolved = true
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	final, _ := s.Get(ctx, q.QuestionID)
	if !final.Resolved {
		t.Fatalf("update not persisted")
	}

	if err := s.Update(ctx, sampleQuestion("missing", time.Unix(1, 0))); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing err=%v want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, domain.DeriveQuestionID([]byte("missing"))); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get missing err=%v want ErrNotFound", err)
	}
}

func TestQuestionStoreListUnresolved(t *testing.T) {
	ctx := context.Background()
	s := NewQuestionStore()

	q1 := sampleQuestion("a", time.Unix(100, 0))
	q2 := sampleQuestion("b", time.Unix(200, 0))
	q3 := sampleQuestion("c", time.Unix(300, 0))
	q3.Resolved = true
	for _, q := range []domain.QuestionData{q2, q1, q3} {
		if err := s.Create(ctx, q); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListUnresolved(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if !got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Fatalf("not ordered by creation time")
	}

	limited, _ := s.ListUnresolved(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	if len(limited) != 1 || string(limited[0].AncillaryData) != "b" {
		t.Fatalf("pagination wrong: %+v", limited)
	}
}

func TestQuestionStoreListResolvedBefore(t *testing.T) {
	ctx := context.Background()
	s := NewQuestionStore()

	old := sampleQuestion("old", time.Unix(100, 0))
	old.Resolved = true
	recent := sampleQuestion("recent", time.Unix(100, 0))
	recent.Resolved = true
	recent.UpdatedAt = time.Unix(5000, 0)
	open := sampleQuestion("open", time.Unix(100, 0))

	for _, q := range []domain.QuestionData{old, recent, open} {
		if err := s.Create(ctx, q); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListResolvedBefore(ctx, time.Unix(1000, 0), domain.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || string(got[0].AncillaryData) != "old" {
		t.Fatalf("got %d records, want only the old resolved one", len(got))
	}
}

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()

	unlock, err := lm.Acquire(ctx, "q:1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "q:1", time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err=%v want ErrLockHeld", err)
	}
	if _, err := lm.Acquire(ctx, "q:2", time.Second); err != nil {
		t.Fatalf("unrelated key blocked: %v", err)
	}

	unlock()
	unlock() // safe to call twice
	if _, err := lm.Acquire(ctx, "q:1", time.Second); err != nil {
		t.Fatalf("reacquire after unlock: %v", err)
	}
}
