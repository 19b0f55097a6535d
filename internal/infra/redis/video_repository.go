package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"interactive-video-service/internal/domain"
)

// VideoLoader fetches video descriptors from a backing store (e.g., document DB).
type VideoLoader interface {
	LoadVideo(ctx context.Context, videoID string) (domain.Video, error)
}

// VideoRepository caches whole descriptor sets in Redis (JSON per video) and
// falls back to a loader on cache miss:
//
//	SET video:{videoID}:descriptor {json} EX ttl
type VideoRepository struct {
	client *redis.Client
	loader VideoLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewVideoRepository(client *redis.Client, loader VideoLoader, ttl time.Duration) *VideoRepository {
	return &VideoRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *VideoRepository) GetVideo(ctx context.Context, videoID string) (domain.Video, error) {
	key := r.descriptorKey(videoID)

	if video, ok := r.cached(ctx, key); ok {
		return video, nil
	}

	result, err, _ := r.sf.Do(videoID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if video, ok := r.cached(ctx, key); ok {
			return video, nil
		}

		video, err := r.loader.LoadVideo(ctx, videoID)
		if err != nil {
			return domain.Video{}, err
		}

		if raw, err := json.Marshal(video); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return video, nil
	})
	if err != nil {
		return domain.Video{}, err
	}
	return result.(domain.Video), nil
}

func (r *VideoRepository) cached(ctx context.Context, key string) (domain.Video, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Video{}, false
	}
	var video domain.Video
	if err := json.Unmarshal(raw, &video); err != nil {
		return domain.Video{}, false
	}
	// Parsed actions are not serialized; rebuild them from the raw grammar.
	if err := domain.ParseElementActions(video.Elements); err != nil {
		return domain.Video{}, false
	}
	return video, true
}

func (r *VideoRepository) descriptorKey(videoID string) string {
	return "video:" + videoID + ":descriptor"
}

func (r *VideoRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
