// Package engine maps a seekable, pausable playback clock onto time-windowed
// interactive elements. All scheduling and state transitions happen inside the
// position-tick path of a Session; persistence and webhook dispatch are
// fire-and-forget with respect to ticks.
package engine

import (
	"context"

	"interactive-video-service/internal/domain"
)

// VideoRepository loads video descriptors (from cache/backing store).
type VideoRepository interface {
	GetVideo(ctx context.Context, videoID string) (domain.Video, error)
}

// ProgressStore persists resume state per (user, video). Load returns a zero
// record with no error when nothing has been stored yet.
type ProgressStore interface {
	Load(ctx context.Context, userID, videoID string) (domain.ProgressRecord, error)
	Save(ctx context.Context, record domain.ProgressRecord) error
}

// AttemptStore persists interaction attempts. Record returns
// domain.ErrDuplicateAttempt when a record already exists for the
// (user, element) key and allowResubmission is false.
type AttemptStore interface {
	Record(ctx context.Context, record domain.AttemptRecord, allowResubmission bool) error
}

// Notifier delivers best-effort attempt notifications. Implementations must
// swallow delivery failures; the engine never retries them.
type Notifier interface {
	Notify(ctx context.Context, record domain.AttemptRecord)
}
