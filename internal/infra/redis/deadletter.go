package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/geyserpg/internal/core/domain"
)

// deadLetterTTL caps how long a dropped batch is kept for inspection.
const deadLetterTTL = 72 * time.Hour

// DeadLetter is one dropped batch: a bounded data-loss event recorded for
// operator inspection. Record payloads are summarized, not replayed, so the
// entry stays small even for large batches.
type DeadLetter struct {
	BatchID   string            `json:"batch_id"`
	Kind      domain.RecordKind `json:"kind"`
	Records   int               `json:"records"`
	Attempts  int               `json:"attempts"`
	Reason    string            `json:"reason"`
	Error     string            `json:"error"`
	DroppedAt time.Time         `json:"dropped_at"`
}

// DeadLetterSink records dropped batches in a Redis sorted set keyed by drop
// time, with the full entry stored alongside.
type DeadLetterSink struct {
	rdb *redis.Client
}

// NewDeadLetterSink creates a Redis-backed dead-letter sink.
func NewDeadLetterSink(client *Client) *DeadLetterSink {
	return &DeadLetterSink{rdb: client.rdb}
}

func queueKey() string {
	return "geyserpg:dead_letters"
}

func entryKey(batchID string) string {
	return fmt.Sprintf("geyserpg:dead_letter:%s", batchID)
}

// Record stores a dead letter. Failures here are returned for logging only;
// the caller has already committed to dropping the batch.
func (s *DeadLetterSink) Record(ctx context.Context, dl *DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := s.rdb.Set(ctx, entryKey(dl.BatchID), data, deadLetterTTL).Err(); err != nil {
		return fmt.Errorf("failed to set dead letter: %w", err)
	}

	z := redis.Z{Score: float64(dl.DroppedAt.Unix()), Member: dl.BatchID}
	if err := s.rdb.ZAdd(ctx, queueKey(), z).Err(); err != nil {
		return fmt.Errorf("failed to index dead letter: %w", err)
	}
	return nil
}

// List returns up to limit dead letters, oldest first.
func (s *DeadLetterSink) List(ctx context.Context, limit int64) ([]*DeadLetter, error) {
	ids, err := s.rdb.ZRange(ctx, queueKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	letters := make([]*DeadLetter, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, entryKey(id)).Result()
		if err == redis.Nil {
			// Entry expired; drop the dangling index member.
			_ = s.rdb.ZRem(ctx, queueKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get failed: %w", err)
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(data), &dl); err != nil {
			return nil, fmt.Errorf("invalid dead letter %s: %w", id, err)
		}
		letters = append(letters, &dl)
	}
	return letters, nil
}

// Remove deletes a dead letter by batch ID.
func (s *DeadLetterSink) Remove(ctx context.Context, batchID string) error {
	if err := s.rdb.ZRem(ctx, queueKey(), batchID).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	return s.rdb.Del(ctx, entryKey(batchID)).Err()
}

// Clear deletes every dead letter.
func (s *DeadLetterSink) Clear(ctx context.Context) error {
	ids, err := s.rdb.ZRange(ctx, queueKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange failed: %w", err)
	}
	for _, id := range ids {
		if err := s.rdb.Del(ctx, entryKey(id)).Err(); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, queueKey()).Err()
}
