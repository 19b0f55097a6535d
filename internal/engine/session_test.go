package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/engine"
	"interactive-video-service/internal/infra/memory"
	"interactive-video-service/internal/player"
)

func TestOverlappingWindowsActivateOne(t *testing.T) {
	video := testVideo(
		element("a", 5, 10, domain.Behavior{AllowSkipping: true}),
		element("b", 8, 10, domain.Behavior{AllowSkipping: true}),
	)
	session := newTestSession(t, video, engine.Config{UserID: "u1"})
	events, cancel := session.Subscribe()
	defer cancel()

	if err := session.Tick(9); err != nil {
		t.Fatalf("tick: %v", err)
	}
	activated := eventsOfType(drain(events), engine.EventActivated)
	if len(activated) != 1 || activated[0].ElementID != "a" {
		t.Fatalf("expected only a active at t=9, got %+v", activated)
	}

	if err := session.Tick(12); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := session.Resolve(context.Background(), "a", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.Status("b") != domain.StatusActive {
		t.Fatalf("expected b active after a resolved at t=12, got %s", session.Status("b"))
	}
}

func TestEqualStartTimeTieBreaksByID(t *testing.T) {
	video := testVideo(
		element("b", 10, 5, domain.Behavior{}),
		element("a", 10, 5, domain.Behavior{}),
	)
	session := newTestSession(t, video, engine.Config{})

	if err := session.Tick(11); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if session.Status("a") != domain.StatusActive {
		t.Fatalf("expected a to win the tie-break, got a=%s b=%s", session.Status("a"), session.Status("b"))
	}
}

func TestSeekPastWindowSkips(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{AllowSkipping: true}))
	session := newTestSession(t, video, engine.Config{})

	_ = session.Tick(11)
	if session.Status("q1") != domain.StatusActive {
		t.Fatalf("expected active, got %s", session.Status("q1"))
	}
	_ = session.Tick(40)
	if session.Status("q1") != domain.StatusSkipped {
		t.Fatalf("expected skipped after seek past window, got %s", session.Status("q1"))
	}

	// Skip is terminal for this viewing: re-entering the window does not reactivate.
	_ = session.Tick(11)
	if session.Status("q1") != domain.StatusSkipped {
		t.Fatalf("expected skip to be terminal, got %s", session.Status("q1"))
	}
}

func TestNonSkippableSkipFlagsNonCompliant(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{AllowSkipping: false}))
	session := newTestSession(t, video, engine.Config{})

	_ = session.Tick(11)
	_ = session.Tick(40)
	if session.Status("q1") != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %s", session.Status("q1"))
	}
	if session.Compliant("q1") {
		t.Fatalf("expected non-compliant skip for allowSkipping=false")
	}
}

func TestPauseOnActivateAndResumeOnResolve(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{
		PauseVideo:            true,
		ResumeAfterCompletion: true,
	}))
	attempts := memory.NewAttemptStore()
	session := newTestSession(t, video, engine.Config{UserID: "u1", Attempts: attempts})
	events, cancel := session.Subscribe()
	defer cancel()

	if err := session.Tick(11); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got := drain(events)
	if n := countCommands(got, domain.CommandPause); n != 1 {
		t.Fatalf("expected exactly one pause command, got %d", n)
	}
	if session.PlayState() != domain.StatePausedForInteraction {
		t.Fatalf("expected paused-for-interaction, got %s", session.PlayState())
	}

	result, err := session.Resolve(context.Background(), "q1", "o1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Awarded != domain.QuizScoreIncrement || session.Score() != domain.QuizScoreIncrement {
		t.Fatalf("expected quiz increment %d, got awarded=%d score=%d", domain.QuizScoreIncrement, result.Awarded, session.Score())
	}
	if session.Status("q1") != domain.StatusResolved {
		t.Fatalf("expected resolved, got %s", session.Status("q1"))
	}

	got = drain(events)
	if n := countCommands(got, domain.CommandPlay); n != 1 {
		t.Fatalf("expected one play command after resolution, got %d", n)
	}
	if len(attempts.Attempts()) != 1 {
		t.Fatalf("expected one persisted attempt, got %d", len(attempts.Attempts()))
	}
}

func TestResolveOrderingAnsweredBeforeResolved(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	session := newTestSession(t, video, engine.Config{})
	events, cancel := session.Subscribe()
	defer cancel()

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var sequence []engine.EventType
	for _, ev := range drain(events) {
		if ev.ElementID == "q1" {
			sequence = append(sequence, ev.Type)
		}
	}
	want := []engine.EventType{engine.EventActivated, engine.EventAnswered, engine.EventResolved}
	if len(sequence) != len(want) {
		t.Fatalf("expected %v, got %v", want, sequence)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sequence)
		}
	}
}

func TestResolveRequiresActiveElement(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	session := newTestSession(t, video, engine.Config{})

	if _, err := session.Resolve(context.Background(), "q1", "o1"); !errors.Is(err, domain.ErrElementNotActive) {
		t.Fatalf("expected ErrElementNotActive for pending element, got %v", err)
	}
	if session.Status("q1") != domain.StatusPending {
		t.Fatalf("resolved must never be reached from pending, got %s", session.Status("q1"))
	}
}

func TestDuplicateAttemptRejected(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	attempts := memory.NewAttemptStore()

	first := newTestSession(t, video, engine.Config{UserID: "u1", Attempts: attempts})
	_ = first.Tick(11)
	if _, err := first.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// A fresh session for the same user re-activates the element (progress
	// was never persisted), but the attempt store still holds the key.
	second := newTestSession(t, video, engine.Config{UserID: "u1", Attempts: attempts})
	_ = second.Tick(11)
	result, err := second.Resolve(context.Background(), "q1", "o1")
	if !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected ErrDuplicateAttempt, got %v", err)
	}
	if result.Awarded != 0 || second.Score() != 0 {
		t.Fatalf("duplicate must not change score, got awarded=%d score=%d", result.Awarded, second.Score())
	}
	if len(attempts.Attempts()) != 1 {
		t.Fatalf("expected exactly one persisted attempt, got %d", len(attempts.Attempts()))
	}
}

func TestJumpActionClampsToDuration(t *testing.T) {
	el := element("d1", 10, 5, domain.Behavior{PauseVideo: true})
	el.Type = domain.TypeDecision
	el.Options = []domain.Option{{ID: "o1", Text: "Skip to the end", Action: "jump:400"}}
	video := testVideo(el)
	video.Duration = 300

	session := newTestSession(t, video, engine.Config{})
	events, cancel := session.Subscribe()
	defer cancel()

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "d1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var seek *domain.Command
	for _, ev := range drain(events) {
		if ev.Command != nil && ev.Command.Kind == domain.CommandSeek {
			seek = ev.Command
		}
	}
	if seek == nil {
		t.Fatalf("expected a seek command")
	}
	if seek.Position >= 300 {
		t.Fatalf("expected clamped position < 300, got %v", seek.Position)
	}
	if session.PlayState() != domain.StatePlaying {
		t.Fatalf("expected playback to continue after jump, got %s", session.PlayState())
	}
}

func TestSwitchVideoNavigation(t *testing.T) {
	el := element("d1", 10, 5, domain.Behavior{PauseVideo: true})
	el.Type = domain.TypeDecision
	el.Options = []domain.Option{{ID: "o1", Text: "Watch the sequel", Action: "sequel"}}
	main := testVideo(el)
	sequel := domain.Video{
		ID:        "sequel",
		SourceURL: "https://cdn.example.com/media/sequel.mp4",
		Duration:  120,
	}

	session := newTestSessionWithCatalog(t, map[string]domain.Video{main.ID: main, "sequel": sequel}, main.ID, engine.Config{})
	events, cancel := session.Subscribe()
	defer cancel()

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "d1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if session.VideoID() != "sequel" {
		t.Fatalf("expected session switched to sequel, got %s", session.VideoID())
	}
	if session.Position() != 0 {
		t.Fatalf("expected playback at 0 after switch, got %v", session.Position())
	}
	found := false
	for _, ev := range drain(events) {
		if ev.Command != nil && ev.Command.Kind == domain.CommandSwitchVideo && ev.Command.VideoID == "sequel" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a switchVideo command")
	}
}

func TestSwitchToUnknownVideoSurfacesNavigationError(t *testing.T) {
	el := element("d1", 10, 5, domain.Behavior{PauseVideo: true})
	el.Type = domain.TypeDecision
	el.Options = []domain.Option{{ID: "o1", Text: "Broken branch", Action: "missing-video"}}
	video := testVideo(el)

	attempts := memory.NewAttemptStore()
	session := newTestSession(t, video, engine.Config{UserID: "u1", Attempts: attempts})

	_ = session.Tick(11)
	_, err := session.Resolve(context.Background(), "d1", "o1")
	if !errors.Is(err, domain.ErrNavigationTarget) {
		t.Fatalf("expected ErrNavigationTarget, got %v", err)
	}
	if session.PlayState() != domain.StatePausedForInteraction {
		t.Fatalf("expected playback to remain paused, got %s", session.PlayState())
	}
	// The attempt was recorded before navigation failed.
	if len(attempts.Attempts()) != 1 {
		t.Fatalf("expected attempt persisted despite navigation failure, got %d", len(attempts.Attempts()))
	}
}

func TestOpenURLLeavesPlaybackHeld(t *testing.T) {
	el := element("d1", 10, 5, domain.Behavior{PauseVideo: true})
	el.Type = domain.TypeDecision
	el.Options = []domain.Option{{ID: "o1", Text: "Read more", Action: "https://example.com/docs"}}
	video := testVideo(el)

	session := newTestSession(t, video, engine.Config{})
	events, cancel := session.Subscribe()
	defer cancel()

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "d1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if session.PlayState() != domain.StatePausedForInteraction {
		t.Fatalf("expected paused-for-interaction after openUrl, got %s", session.PlayState())
	}
	if n := countCommands(drain(events), domain.CommandOpenURL); n != 1 {
		t.Fatalf("expected one openUrl command, got %d", n)
	}
}

func TestResubmissionReactivatesOnWindowReentry(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{AllowResubmission: true}))
	session := newTestSession(t, video, engine.Config{})

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Still inside the window: no immediate reactivation loop.
	_ = session.Tick(12)
	if session.Status("q1") != domain.StatusResolved {
		t.Fatalf("expected resolved inside window, got %s", session.Status("q1"))
	}
	// Leave and re-enter the window.
	_ = session.Tick(20)
	_ = session.Tick(11)
	if session.Status("q1") != domain.StatusActive {
		t.Fatalf("expected reactivation on re-entry with allowResubmission, got %s", session.Status("q1"))
	}
}

func TestPreventReattemptOverridesResubmission(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{AllowResubmission: true}))
	session := newTestSession(t, video, engine.Config{Settings: domain.Settings{PreventReattempt: true}})

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_ = session.Tick(20)
	_ = session.Tick(11)
	if session.Status("q1") != domain.StatusResolved {
		t.Fatalf("expected preventReattempt to block reactivation, got %s", session.Status("q1"))
	}
	if err := session.Reopen("q1"); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected reopen rejected, got %v", err)
	}
}

func TestReopenReturnsElementToPending(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{AllowResubmission: true}))
	session := newTestSession(t, video, engine.Config{})

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := session.Reopen("q1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	// Position is still inside the window, so it activates immediately.
	if session.Status("q1") != domain.StatusActive {
		t.Fatalf("expected active after reopen inside window, got %s", session.Status("q1"))
	}
}

func TestPremarkedCompletedDoNotReactivate(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	session := newTestSession(t, video, engine.Config{
		UserID:        "u1",
		StartPosition: 0,
		Completed:     []string{"q1"},
	})

	_ = session.Tick(11)
	if session.Status("q1") != domain.StatusResolved {
		t.Fatalf("expected premarked element to stay resolved, got %s", session.Status("q1"))
	}
}

func TestAnonymousSessionSkipsPersistence(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	attempts := memory.NewAttemptStore()
	progress := memory.NewProgressStore()
	session := newTestSession(t, video, engine.Config{
		UserID:   "",
		Attempts: attempts,
		Progress: progress,
	})

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_ = session.Tick(50)
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(attempts.Attempts()) != 0 {
		t.Fatalf("anonymous viewers must not persist attempts, got %d", len(attempts.Attempts()))
	}
	record, _ := progress.Load(context.Background(), "", video.ID)
	if record.LastPosition != 0 || len(record.CompletedInteractionIDs) != 0 {
		t.Fatalf("anonymous viewers must not persist progress, got %+v", record)
	}
}

func TestCloseStopsTicksAndFlushesProgress(t *testing.T) {
	video := testVideo(element("q1", 10, 5, domain.Behavior{}))
	progress := memory.NewProgressStore()
	session := newTestSession(t, video, engine.Config{UserID: "u1", Progress: progress})
	events, cancel := session.Subscribe()
	defer cancel()

	_ = session.Tick(11)
	if _, err := session.Resolve(context.Background(), "q1", "o1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	drain(events)

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Tick(12); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after close, got %v", err)
	}
	// The subscriber channel drains any buffered events and then closes.
	for {
		if _, ok := <-events; !ok {
			break
		}
	}

	record, err := progress.Load(context.Background(), "u1", video.ID)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if record.LastPosition != 11 {
		t.Fatalf("expected final flush at position 11, got %v", record.LastPosition)
	}
	if len(record.CompletedInteractionIDs) != 1 || record.CompletedInteractionIDs[0] != "q1" {
		t.Fatalf("expected q1 in completed set, got %v", record.CompletedInteractionIDs)
	}
}

// --- helpers ---

func element(id string, start, duration float64, behavior domain.Behavior) domain.InteractiveElement {
	return domain.InteractiveElement{
		ID:        id,
		Type:      domain.TypeQuiz,
		StartTime: start,
		Duration:  duration,
		Options: []domain.Option{
			{ID: "o1", Text: "Right", IsCorrect: true},
			{ID: "o2", Text: "Wrong"},
		},
		Behavior: behavior,
	}
}

func testVideo(elements ...domain.InteractiveElement) domain.Video {
	return domain.Video{
		ID:        "video-1",
		SourceURL: "https://cdn.example.com/media/video-1.mp4",
		Duration:  600,
		Elements:  elements,
	}
}

func newTestSession(t *testing.T, video domain.Video, cfg engine.Config) *engine.Session {
	t.Helper()
	return newTestSessionWithCatalog(t, map[string]domain.Video{video.ID: video}, video.ID, cfg)
}

func newTestSessionWithCatalog(t *testing.T, catalog map[string]domain.Video, videoID string, cfg engine.Config) *engine.Session {
	t.Helper()
	loader, err := memory.NewStaticVideoLoader(catalog)
	if err != nil {
		t.Fatalf("build loader: %v", err)
	}
	repo := memory.NewVideoRepository(loader, time.Minute)
	video, err := repo.GetVideo(context.Background(), videoID)
	if err != nil {
		t.Fatalf("load video: %v", err)
	}
	registry := player.DefaultRegistry()
	embed, err := registry.Normalize(video.SourceURL)
	if err != nil {
		t.Fatalf("normalize source: %v", err)
	}
	cfg.Videos = repo
	cfg.Registry = registry
	session := engine.NewSession("session-1", video, embed, cfg)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func drain(ch <-chan engine.Event) []engine.Event {
	var out []engine.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(events []engine.Event, typ engine.EventType) []engine.Event {
	var out []engine.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func countCommands(events []engine.Event, kind domain.CommandKind) int {
	n := 0
	for _, ev := range events {
		if ev.Command != nil && ev.Command.Kind == kind {
			n++
		}
	}
	return n
}
