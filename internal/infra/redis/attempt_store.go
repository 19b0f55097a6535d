package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"interactive-video-service/internal/domain"
)

// AttemptStore persists attempts in Redis. The uniqueness key is claimed with
// SETNX so concurrent resolves for the same (user, element) pair race safely:
//
//	SETNX attempt:{userID}:{elementID} 1
//	RPUSH attempts:{userID}            {json record}
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) Record(ctx context.Context, record domain.AttemptRecord, allowResubmission bool) error {
	key := s.uniqueKey(record.UserID, record.ElementID)

	if allowResubmission {
		if err := s.client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
			return err
		}
	} else {
		claimed, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
		if err != nil {
			return err
		}
		if !claimed {
			return domain.ErrDuplicateAttempt
		}
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	listKey := s.listKey(record.UserID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, listKey, raw)
	if s.ttl > 0 {
		pipe.Expire(ctx, listKey, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *AttemptStore) uniqueKey(userID, elementID string) string {
	return "attempt:" + userID + ":" + elementID
}

func (s *AttemptStore) listKey(userID string) string {
	return "attempts:" + userID
}
