package memory

import (
	"context"
	"sync"

	"interactive-video-service/internal/domain"
)

// AttemptStore keeps attempts in process memory. Records are append-only;
// the (user, element) key is unique unless resubmission is allowed.
type AttemptStore struct {
	mu       sync.Mutex
	attempts []domain.AttemptRecord
	byKey    map[attemptKey]int
}

type attemptKey struct {
	userID    string
	elementID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{byKey: make(map[attemptKey]int)}
}

func (s *AttemptStore) Record(_ context.Context, record domain.AttemptRecord, allowResubmission bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{record.UserID, record.ElementID}
	if _, exists := s.byKey[key]; exists && !allowResubmission {
		return domain.ErrDuplicateAttempt
	}
	s.attempts = append(s.attempts, record)
	s.byKey[key]++
	return nil
}

// Attempts returns a copy of everything recorded, in insertion order.
func (s *AttemptStore) Attempts() []domain.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AttemptRecord, len(s.attempts))
	copy(out, s.attempts)
	return out
}
