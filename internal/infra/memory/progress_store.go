package memory

import (
	"context"
	"sync"

	"interactive-video-service/internal/domain"
)

// ProgressStore keeps resume state in process memory. Writes are
// last-write-wins on position and a set-union on completed IDs.
type ProgressStore struct {
	mu      sync.RWMutex
	records map[progressKey]domain.ProgressRecord
}

type progressKey struct {
	userID  string
	videoID string
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{records: make(map[progressKey]domain.ProgressRecord)}
}

func (s *ProgressStore) Load(_ context.Context, userID, videoID string) (domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[progressKey{userID, videoID}]; ok {
		return record, nil
	}
	return domain.ProgressRecord{UserID: userID, VideoID: videoID}, nil
}

func (s *ProgressStore) Save(_ context.Context, record domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{record.UserID, record.VideoID}
	existing, ok := s.records[key]
	if !ok {
		s.records[key] = record
		return nil
	}
	existing.LastPosition = record.LastPosition
	existing.CompletedInteractionIDs = unionIDs(existing.CompletedInteractionIDs, record.CompletedInteractionIDs)
	s.records[key] = existing
	return nil
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, ids := range [][]string{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
