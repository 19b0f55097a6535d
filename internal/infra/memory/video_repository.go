package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"interactive-video-service/internal/domain"
)

// VideoLoader fetches video descriptors from a backing store (e.g., document DB).
type VideoLoader interface {
	LoadVideo(ctx context.Context, videoID string) (domain.Video, error)
}

// VideoRepository caches descriptor sets with TTL to avoid repeated DB hits.
type VideoRepository struct {
	loader VideoLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedVideo
}

type cachedVideo struct {
	video     domain.Video
	expiresAt time.Time
}

func NewVideoRepository(loader VideoLoader, ttl time.Duration) *VideoRepository {
	return &VideoRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedVideo),
	}
}

func (r *VideoRepository) GetVideo(ctx context.Context, videoID string) (domain.Video, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[videoID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.video, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(videoID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[videoID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.video, nil
		}
		r.mu.RUnlock()

		video, err := r.loader.LoadVideo(ctx, videoID)
		if err != nil {
			return domain.Video{}, err
		}

		r.mu.Lock()
		r.cache[videoID] = cachedVideo{
			video:     video,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return video, nil
	})
	if err != nil {
		return domain.Video{}, err
	}
	return result.(domain.Video), nil
}

func (r *VideoRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticVideoLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticVideoLoader struct {
	videos map[string]domain.Video
}

func NewStaticVideoLoader(videos map[string]domain.Video) (*StaticVideoLoader, error) {
	for id, video := range videos {
		if err := domain.ParseElementActions(video.Elements); err != nil {
			return nil, err
		}
		videos[id] = video
	}
	return &StaticVideoLoader{videos: videos}, nil
}

func (l *StaticVideoLoader) LoadVideo(_ context.Context, videoID string) (domain.Video, error) {
	if video, ok := l.videos[videoID]; ok {
		return video, nil
	}
	return domain.Video{}, domain.ErrVideoNotFound
}
