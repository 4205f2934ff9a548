package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const attemptKeyPrefix = "attempt:"

// attemptStore is the expiring key-value store for one assignment's
// attempts. The TTL (time limit plus the grace window) is fixed at creation
// and applied when an attempt is first written; mutations keep the remaining
// TTL so an attempt's lifetime is anchored to its start.
type attemptStore struct {
	client       *redis.Client
	assignmentID string
	ttl          time.Duration
}

func (s *attemptStore) key(studentID string) string {
	return fmt.Sprintf("%s%s:%s", attemptKeyPrefix, s.assignmentID, studentID)
}

// Get loads an attempt. The second return is false when no attempt exists
// (never started, or evicted by TTL).
func (s *attemptStore) Get(ctx context.Context, studentID string) (Attempt, bool, error) {
	data, err := s.client.Get(ctx, s.key(studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("loading attempt: %w", err)
	}

	var att Attempt
	if err := json.Unmarshal([]byte(data), &att); err != nil {
		return Attempt{}, false, fmt.Errorf("decoding attempt: %w", err)
	}
	return att, true, nil
}

// Create writes a fresh attempt with the store's TTL.
func (s *attemptStore) Create(ctx context.Context, att Attempt) error {
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("encoding attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.key(att.StudentID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing attempt: %w", err)
	}
	return nil
}

// Update mutates an attempt in place, preserving its remaining TTL.
func (s *attemptStore) Update(ctx context.Context, att Attempt) error {
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("encoding attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.key(att.StudentID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("updating attempt: %w", err)
	}
	return nil
}
