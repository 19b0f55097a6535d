package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

// EventType tags events emitted by a session.
type EventType string

const (
	EventActivated EventType = "activated"
	EventAnswered  EventType = "answered"
	EventSkipped   EventType = "skipped"
	EventResolved  EventType = "resolved"
	EventCommand   EventType = "command"
	EventProgress  EventType = "progress"
)

// Event is delivered to session subscribers. Command events carry playback
// instructions for the hosting player; the rest describe element transitions.
type Event struct {
	Type      EventType                `json:"type"`
	ElementID string                   `json:"elementId,omitempty"`
	Status    domain.InteractionStatus `json:"status,omitempty"`
	Position  float64                  `json:"position"`
	Command   *domain.Command          `json:"command,omitempty"`
	Result    *domain.AttemptResult    `json:"result,omitempty"`
	Progress  *domain.ProgressRecord   `json:"progress,omitempty"`
}

const (
	defaultProgressDelta = 5.0 // seconds of position delta between persists
	seekClampEpsilon     = 0.1
	persistTimeout       = 3 * time.Second
)

// Config carries the collaborators and initial state for a session.
type Config struct {
	UserID        string
	Settings      domain.Settings
	StartPosition float64
	Completed     []string // element IDs already resolved in prior viewings
	ProgressDelta float64

	Videos   VideoRepository
	Registry *player.Registry
	Progress ProgressStore
	Attempts AttemptStore
	Notifier Notifier
	Now      func() time.Time
}

// Session owns the runtime state for one viewer watching one video. All
// transitions happen under a single lock inside the tick/resolve path;
// persistence and webhook dispatch never block it.
type Session struct {
	id            string
	userID        string
	settings      domain.Settings
	progressDelta float64

	videos        VideoRepository
	registry      *player.Registry
	progressStore ProgressStore
	attempts      AttemptStore
	notifier      Notifier
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	writes sync.WaitGroup

	mu            sync.Mutex
	video         domain.Video
	embed         player.Embed
	position      float64
	playState     domain.PlayState
	score         int
	runtime       map[string]*runtimeState
	activeID      string
	completed     map[string]struct{}
	lastPersisted float64
	closed        bool
	subscribers   map[chan Event]struct{}
}

// NewSession builds a session for an already-loaded video and embed.
// Completed IDs are premarked resolved so reloads do not re-trigger them.
func NewSession(id string, video domain.Video, embed player.Embed, cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	delta := cfg.ProgressDelta
	if delta <= 0 {
		delta = defaultProgressDelta
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            id,
		userID:        cfg.UserID,
		settings:      cfg.Settings,
		progressDelta: delta,
		videos:        cfg.Videos,
		registry:      cfg.Registry,
		progressStore: cfg.Progress,
		attempts:      cfg.Attempts,
		notifier:      cfg.Notifier,
		now:           now,
		ctx:           ctx,
		cancel:        cancel,
		video:         video,
		embed:         embed,
		position:      cfg.StartPosition,
		playState:     domain.StatePaused,
		runtime:       make(map[string]*runtimeState),
		completed:     make(map[string]struct{}),
		lastPersisted: cfg.StartPosition,
		subscribers:   make(map[chan Event]struct{}),
	}
	for _, elementID := range cfg.Completed {
		s.runtime[elementID] = &runtimeState{
			status:    domain.StatusResolved,
			rearmable: true,
			compliant: true,
		}
		s.completed[elementID] = struct{}{}
	}
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) UserID() string  { return s.userID }
func (s *Session) VideoID() string { s.mu.Lock(); defer s.mu.Unlock(); return s.video.ID }

// Video returns the current video descriptor.
func (s *Session) Video() domain.Video { s.mu.Lock(); defer s.mu.Unlock(); return s.video }

// Embed returns the normalized source for the current video.
func (s *Session) Embed() player.Embed { s.mu.Lock(); defer s.mu.Unlock(); return s.embed }

func (s *Session) Position() float64 { s.mu.Lock(); defer s.mu.Unlock(); return s.position }

func (s *Session) PlayState() domain.PlayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playState
}

func (s *Session) Score() int { s.mu.Lock(); defer s.mu.Unlock(); return s.score }

// Settings returns the session-wide engine options.
func (s *Session) Settings() domain.Settings { return s.settings }

// Status reports the lifecycle state of one element, defaulting to pending.
func (s *Session) Status(elementID string) domain.InteractionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtime[elementID]; ok {
		return rt.status
	}
	return domain.StatusPending
}

// Compliant reports whether the element was handled within its window or was
// allowed to be skipped. Gating policies layered on top read this flag.
func (s *Session) Compliant(elementID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtime[elementID]; ok {
		return rt.compliant
	}
	return true
}

// Subscribe returns a channel receiving session events. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Tick advances the playback clock. Seeks in either direction arrive through
// the same path; transitions depend only on the new position.
func (s *Session) Tick(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.playState == domain.StatePaused {
		s.playState = domain.StatePlaying
	}
	s.position = position
	s.evaluateLocked()
	s.maybePersistLocked()
	return nil
}

// Resolve records the viewer's response for the active element, scores it,
// and executes any navigation action attached to the chosen option. The
// attempt is recorded before navigation so it survives a navigation failure.
func (s *Session) Resolve(ctx context.Context, elementID, optionID string) (domain.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.AttemptResult{}, domain.ErrSessionClosed
	}

	el, ok := s.video.Element(elementID)
	if !ok {
		return domain.AttemptResult{}, domain.ErrElementNotFound
	}
	opt, ok := el.Option(optionID)
	if !ok {
		return domain.AttemptResult{}, domain.ErrOptionNotFound
	}
	rt := s.runtime[elementID]
	if rt == nil || rt.status != domain.StatusActive {
		return domain.AttemptResult{}, domain.ErrElementNotActive
	}

	rt.status = domain.StatusAnswered
	s.broadcastLocked(Event{Type: EventAnswered, ElementID: elementID, Status: domain.StatusAnswered, Position: s.position})

	var correct *bool
	if el.Scored() {
		c := opt.IsCorrect
		correct = &c
	}
	record := domain.AttemptRecord{
		VideoID:   s.video.ID,
		ElementID: elementID,
		UserID:    s.userID,
		OptionID:  optionID,
		IsCorrect: correct,
		Timestamp: s.now(),
	}

	duplicate := false
	if s.userID != "" && s.attempts != nil {
		if err := s.attempts.Record(ctx, record, s.allowResubmission(el)); err != nil {
			if errors.Is(err, domain.ErrDuplicateAttempt) {
				duplicate = true
			} else {
				// At-least-once: a failed write never blocks the viewer.
				log.Printf("session %s: record attempt for %s: %v", s.id, elementID, err)
			}
		}
	}

	awarded := 0
	if !duplicate {
		awarded = el.ScoreFor(opt)
		s.score += awarded
	}

	rt.status = domain.StatusResolved
	rt.rearmable = false
	s.completed[elementID] = struct{}{}
	s.activeID = ""

	result := domain.AttemptResult{
		ElementID:  elementID,
		OptionID:   optionID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: s.score,
	}
	if !s.settings.ShowFeedback {
		result.Correct = nil
	}
	s.broadcastLocked(Event{Type: EventResolved, ElementID: elementID, Status: domain.StatusResolved, Position: s.position, Result: &result})

	if !duplicate && s.notifier != nil {
		go s.notifier.Notify(s.ctx, record)
	}

	var navErr error
	if opt.ParsedAction != nil {
		navErr = s.navigateLocked(ctx, *opt.ParsedAction)
	} else if s.playState == domain.StatePausedForInteraction && (el.Behavior.ResumeAfterCompletion || s.settings.AutoAdvance) {
		s.playState = domain.StatePlaying
		s.dispatchLocked(domain.Command{Kind: domain.CommandPlay})
	}

	// Another window may contain the current position now that no element
	// holds the active slot.
	s.evaluateLocked()

	if duplicate {
		return result, domain.ErrDuplicateAttempt
	}
	return result, navErr
}

// Reopen returns a resolved element to pending so it can be answered again.
// Only allowed when resubmission is permitted for the element and session.
func (s *Session) Reopen(elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	el, ok := s.video.Element(elementID)
	if !ok {
		return domain.ErrElementNotFound
	}
	rt := s.runtime[elementID]
	if rt == nil || rt.status != domain.StatusResolved {
		return domain.ErrElementNotActive
	}
	if !s.allowResubmission(el) {
		return domain.ErrDuplicateAttempt
	}
	rt.status = domain.StatusPending
	rt.rearmable = false
	s.evaluateLocked()
	return nil
}

// Close tears the session down: no further ticks or callbacks, pending
// throttled writes are cancelled, and progress is flushed once best-effort.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var final *domain.ProgressRecord
	if s.userID != "" && s.progressStore != nil {
		rec := s.progressRecordLocked()
		final = &rec
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.writes.Wait()

	if final != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.progressStore.Save(ctx, *final); err != nil {
			log.Printf("session %s: final progress flush: %v", s.id, err)
		}
	}
	return nil
}

func (s *Session) allowResubmission(el domain.InteractiveElement) bool {
	return el.Behavior.AllowResubmission && !s.settings.PreventReattempt
}

// evaluateLocked applies the scheduler policy at the current position:
// exit the active element if its window no longer contains the position,
// then activate at most one eligible element.
func (s *Session) evaluateLocked() {
	t := s.position

	if s.activeID != "" {
		el, ok := s.video.Element(s.activeID)
		rt := s.runtime[s.activeID]
		if !ok || !el.InWindow(t) {
			if rt != nil && rt.status == domain.StatusActive {
				rt.status = domain.StatusSkipped
				rt.compliant = el.Behavior.AllowSkipping
				s.broadcastLocked(Event{Type: EventSkipped, ElementID: s.activeID, Status: domain.StatusSkipped, Position: t})
				if s.playState == domain.StatePausedForInteraction {
					// The position moved past the window, so playback is
					// already progressing; drop the interaction hold.
					s.playState = domain.StatePlaying
				}
			}
			s.activeID = ""
		}
	}

	for id, rt := range s.runtime {
		if rt.status == domain.StatusResolved && !rt.rearmable {
			if el, ok := s.video.Element(id); ok && !el.InWindow(t) {
				rt.rearmable = true
			}
		}
	}

	if s.activeID == "" {
		if id := nextActivation(t, s.video.Elements, s.runtime, s.allowResubmission); id != "" {
			s.activateLocked(id)
		}
	}
}

func (s *Session) activateLocked(elementID string) {
	el, _ := s.video.Element(elementID)
	rt, ok := s.runtime[elementID]
	if !ok {
		rt = &runtimeState{compliant: true}
		s.runtime[elementID] = rt
	}
	rt.status = domain.StatusActive
	rt.rearmable = false
	s.activeID = elementID
	s.broadcastLocked(Event{Type: EventActivated, ElementID: elementID, Status: domain.StatusActive, Position: s.position})

	if el.Behavior.PauseVideo || s.settings.PauseOnInteraction {
		s.playState = domain.StatePausedForInteraction
		s.dispatchLocked(domain.Command{Kind: domain.CommandPause})
	}
}

// navigateLocked executes a branching action. Failures leave playback in
// paused-for-interaction and surface ErrNavigationTarget to the caller.
func (s *Session) navigateLocked(ctx context.Context, action domain.Action) error {
	switch action.Kind {
	case domain.ActionSeek:
		target := action.Seconds
		if d := s.video.Duration; d > 0 && target >= d {
			target = math.Max(0, d-seekClampEpsilon)
		}
		s.position = target
		wasHeld := s.playState == domain.StatePausedForInteraction
		s.playState = domain.StatePlaying
		s.dispatchLocked(domain.Command{Kind: domain.CommandSeek, Position: target})
		if wasHeld {
			s.dispatchLocked(domain.Command{Kind: domain.CommandPlay})
		}
		return nil

	case domain.ActionSwitchVideo:
		video, err := s.videos.GetVideo(ctx, action.VideoID)
		if err != nil {
			s.playState = domain.StatePausedForInteraction
			return fmt.Errorf("%w: video %q: %v", domain.ErrNavigationTarget, action.VideoID, err)
		}
		embed, err := s.registry.Normalize(video.SourceURL)
		if err != nil {
			s.playState = domain.StatePausedForInteraction
			return fmt.Errorf("%w: source for video %q: %v", domain.ErrNavigationTarget, action.VideoID, err)
		}
		s.video = video
		s.embed = embed
		s.runtime = make(map[string]*runtimeState)
		s.completed = make(map[string]struct{})
		s.activeID = ""
		s.position = 0
		s.lastPersisted = 0
		s.playState = domain.StatePlaying
		s.dispatchLocked(domain.Command{Kind: domain.CommandSwitchVideo, VideoID: video.ID, EmbedURL: embed.EmbedURL})
		return nil

	case domain.ActionOpenURL:
		// The viewer resumes manually after returning from the external page.
		s.playState = domain.StatePausedForInteraction
		s.dispatchLocked(domain.Command{Kind: domain.CommandOpenURL, URL: action.URL})
		return nil
	}
	return fmt.Errorf("%w: unknown action kind %q", domain.ErrNavigationTarget, action.Kind)
}

// maybePersistLocked writes progress once the position has drifted far enough
// from the last persisted value. The write runs off the tick path; on failure
// the watermark is rolled back so the next qualifying tick retries.
func (s *Session) maybePersistLocked() {
	if s.userID == "" || s.progressStore == nil {
		return
	}
	if math.Abs(s.position-s.lastPersisted) < s.progressDelta {
		return
	}
	snapshot := s.progressRecordLocked()
	prev := s.lastPersisted
	s.lastPersisted = s.position

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
		defer cancel()
		if err := s.progressStore.Save(ctx, snapshot); err != nil {
			log.Printf("session %s: persist progress: %v", s.id, err)
			s.mu.Lock()
			if s.lastPersisted == snapshot.LastPosition {
				s.lastPersisted = prev
			}
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.broadcastLocked(Event{Type: EventProgress, Position: snapshot.LastPosition, Progress: &snapshot})
		s.mu.Unlock()
	}()
}

func (s *Session) progressRecordLocked() domain.ProgressRecord {
	ids := make([]string, 0, len(s.completed))
	for id := range s.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return domain.ProgressRecord{
		UserID:                  s.userID,
		VideoID:                 s.video.ID,
		LastPosition:            s.position,
		CompletedInteractionIDs: ids,
	}
}

func (s *Session) dispatchLocked(cmd domain.Command) {
	s.broadcastLocked(Event{Type: EventCommand, Position: s.position, Command: &cmd})
}

func (s *Session) broadcastLocked(ev Event) {
	if s.closed {
		return
	}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event so slow consumers never block
			// the tick path.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
