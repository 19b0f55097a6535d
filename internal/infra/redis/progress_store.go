package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"interactive-video-service/internal/domain"
)

// ProgressStore persists resume state in Redis:
//
//	SET  progress:{userID}:{videoID}:pos        {lastPosition}
//	SADD progress:{userID}:{videoID}:completed  {elementID...}
//
// Position writes are last-write-wins; the completed set is a union, so
// concurrent writers cannot lose IDs.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) Load(ctx context.Context, userID, videoID string) (domain.ProgressRecord, error) {
	record := domain.ProgressRecord{UserID: userID, VideoID: videoID}

	raw, err := s.client.Get(ctx, s.posKey(userID, videoID)).Result()
	if err == nil {
		if pos, perr := strconv.ParseFloat(raw, 64); perr == nil {
			record.LastPosition = pos
		}
	} else if err != redis.Nil {
		return record, err
	}

	ids, err := s.client.SMembers(ctx, s.completedKey(userID, videoID)).Result()
	if err != nil && err != redis.Nil {
		return record, err
	}
	record.CompletedInteractionIDs = ids
	return record, nil
}

func (s *ProgressStore) Save(ctx context.Context, record domain.ProgressRecord) error {
	posKey := s.posKey(record.UserID, record.VideoID)
	completedKey := s.completedKey(record.UserID, record.VideoID)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, posKey, strconv.FormatFloat(record.LastPosition, 'f', -1, 64), s.ttl)
	if len(record.CompletedInteractionIDs) > 0 {
		members := make([]interface{}, 0, len(record.CompletedInteractionIDs))
		for _, id := range record.CompletedInteractionIDs {
			members = append(members, id)
		}
		pipe.SAdd(ctx, completedKey, members...)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, completedKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *ProgressStore) posKey(userID, videoID string) string {
	return "progress:" + userID + ":" + videoID + ":pos"
}

func (s *ProgressStore) completedKey(userID, videoID string) string {
	return "progress:" + userID + ":" + videoID + ":completed"
}
