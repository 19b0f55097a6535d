package memory

import (
	"context"
	"testing"
	"time"

	"interactive-video-service/internal/domain"
)

func TestVideoRepositoryCaches(t *testing.T) {
	loader := &countingLoader{VideoLoader: newLoader(t)}
	repo := NewVideoRepository(loader, time.Minute)

	if _, err := repo.GetVideo(context.Background(), "video-1"); err != nil {
		t.Fatalf("get video: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetVideo(context.Background(), "video-1"); err != nil {
		t.Fatalf("get video 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestStaticLoaderParsesActions(t *testing.T) {
	loader := newLoader(t)
	video, err := loader.LoadVideo(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opt := video.Elements[0].Options[1]
	if opt.ParsedAction == nil || opt.ParsedAction.Kind != domain.ActionSeek {
		t.Fatalf("expected parsed jump action, got %+v", opt.ParsedAction)
	}
}

func TestStaticLoaderRejectsMalformedActions(t *testing.T) {
	_, err := NewStaticVideoLoader(map[string]domain.Video{
		"bad": {
			ID: "bad",
			Elements: []domain.InteractiveElement{
				{ID: "e1", Options: []domain.Option{{ID: "o1", Action: "jump:nope"}}},
			},
		},
	})
	if err == nil {
		t.Fatalf("expected malformed action to fail the load")
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

func newLoader(t *testing.T) *StaticVideoLoader {
	t.Helper()
	loader, err := NewStaticVideoLoader(map[string]domain.Video{
		"video-1": sampleVideo(),
	})
	if err != nil {
		t.Fatalf("build loader: %v", err)
	}
	return loader
}

func sampleVideo() domain.Video {
	return domain.Video{
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
					{ID: "o2", Text: "Skip ahead", Action: "jump:60"},
				},
				Behavior: domain.Behavior{PauseVideo: true},
			},
		},
	}
}
