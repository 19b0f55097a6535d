package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/infra/memory"
)

func TestVideoRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{VideoLoader: newStaticLoader(t)}
	repo := NewVideoRepository(client, loader, time.Minute)

	video, err := repo.GetVideo(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("video:video-1:descriptor") {
		t.Fatalf("expected descriptor cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	video, err = repo.GetVideo(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("get video 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	// Parsed actions survive the cache round-trip.
	opt := video.Elements[0].Options[1]
	if opt.ParsedAction == nil || opt.ParsedAction.Kind != domain.ActionSeek {
		t.Fatalf("expected parsed action after cache hit, got %+v", opt.ParsedAction)
	}
}

type countingLoader struct {
	VideoLoader
	calls int
}

func (l *countingLoader) LoadVideo(ctx context.Context, videoID string) (domain.Video, error) {
	l.calls++
	return l.VideoLoader.LoadVideo(ctx, videoID)
}

func newStaticLoader(t *testing.T) *memory.StaticVideoLoader {
	t.Helper()
	loader, err := memory.NewStaticVideoLoader(map[string]domain.Video{
		"video-1": {
			ID:        "video-1",
			SourceURL: "https://cdn.example.com/media/video-1.mp4",
			Duration:  300,
			Elements: []domain.InteractiveElement{
				{
					ID:        "q1",
					Type:      domain.TypeQuiz,
					StartTime: 10,
					Duration:  5,
					Options: []domain.Option{
						{ID: "o1", Text: "Right", IsCorrect: true},
						{ID: "o2", Text: "Skip", Action: "jump:60"},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("build loader: %v", err)
	}
	return loader
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
