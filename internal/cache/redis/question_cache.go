package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

const questionTTL = 5 * time.Minute

// QuestionCache implements domain.QuestionCache using Redis hashes with
// JSON-serialized question data.
//
// Key schema:
//
//	question:{id} - hash with field "data" containing JSON
type QuestionCache struct {
	rdb *redis.Client
}

// NewQuestionCache creates a QuestionCache backed by the given Client.
func NewQuestionCache(c *Client) *QuestionCache {
	return &QuestionCache{rdb: c.Underlying()}
}

func questionKey(id domain.QuestionID) string { return "question:" + id.Hex() }

// Set stores a question record in the cache with a 5-minute TTL.
func (qc *QuestionCache) Set(ctx context.Context, q domain.QuestionData) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal question %s: %w", q.QuestionID.Hex(), err)
	}

	key := questionKey(q.QuestionID)

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, questionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set question %s: %w", q.QuestionID.Hex(), err)
	}
	return nil
}

// Get retrieves a question record by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (qc *QuestionCache) Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	data, err := qc.rdb.HGet(ctx, questionKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.QuestionData{}, domain.ErrNotFound
		}
		return domain.QuestionData{}, fmt.Errorf("redis: get question %s: %w", id.Hex(), err)
	}

	var q domain.QuestionData
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.QuestionData{}, fmt.Errorf("redis: unmarshal question %s: %w", id.Hex(), err)
	}
	return q, nil
}

// Invalidate removes a question record from the cache.
func (qc *QuestionCache) Invalidate(ctx context.Context, id domain.QuestionID) error {
	if err := qc.rdb.Del(ctx, questionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate question %s: %w", id.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuestionCache = (*QuestionCache)(nil)
