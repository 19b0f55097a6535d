// Package app wires the engine to its collaborators and exposes the
// mount/resolve/unmount use cases consumed by the transport layer.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/engine"
	"interactive-video-service/internal/player"
)

// PlayerService owns session lifecycle for the interactive video engine.
type PlayerService struct {
	videos   engine.VideoRepository
	progress engine.ProgressStore
	attempts engine.AttemptStore
	notifier engine.Notifier
	registry *player.Registry
	settings domain.Settings
	sessions *engine.Manager
	now      func() time.Time
}

func NewPlayerService(
	videos engine.VideoRepository,
	progress engine.ProgressStore,
	attempts engine.AttemptStore,
	notifier engine.Notifier,
	registry *player.Registry,
	settings domain.Settings,
) *PlayerService {
	return &PlayerService{
		videos:   videos,
		progress: progress,
		attempts: attempts,
		notifier: notifier,
		registry: registry,
		settings: settings,
		sessions: engine.NewManager(),
		now:      time.Now,
	}
}

// MountParams describe a player mounting against a video. An empty UserID
// means an anonymous viewer with no persistence. StartTime, when set, takes
// precedence over any persisted resume position.
type MountParams struct {
	VideoID   string
	UserID    string
	StartTime *float64
}

// Mount loads the video, normalizes its source, reconciles persisted progress
// with the requested start time, and returns a live session.
func (s *PlayerService) Mount(ctx context.Context, params MountParams) (*engine.Session, error) {
	video, err := s.videos.GetVideo(ctx, params.VideoID)
	if err != nil {
		return nil, err
	}

	embed, err := s.registry.Normalize(video.SourceURL)
	if err != nil {
		return nil, err
	}

	start := 0.0
	var completed []string
	if params.UserID != "" {
		record, err := s.progress.Load(ctx, params.UserID, params.VideoID)
		if err == nil {
			completed = record.CompletedInteractionIDs
			if record.LastPosition > 0 {
				start = record.LastPosition
			}
		}
		// A load failure only costs the resume position; the session still starts.
	}
	if params.StartTime != nil {
		start = *params.StartTime
	}

	session := engine.NewSession(uuid.NewString(), video, embed, engine.Config{
		UserID:        params.UserID,
		Settings:      s.settings,
		StartPosition: start,
		Completed:     completed,
		Videos:        s.videos,
		Registry:      s.registry,
		Progress:      s.progress,
		Attempts:      s.attempts,
		Notifier:      s.notifier,
		Now:           s.now,
	})
	s.sessions.Add(session)
	return session, nil
}

// Get returns a mounted session.
func (s *PlayerService) Get(sessionID string) (*engine.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Unmount closes the session and releases it. Safe to call twice.
func (s *PlayerService) Unmount(sessionID string) {
	session, ok := s.sessions.Remove(sessionID)
	if !ok {
		return
	}
	_ = session.Close()
}
