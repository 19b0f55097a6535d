package domain

import "time"

// ElementType enumerates the supported interactive element kinds.
type ElementType string

const (
	TypeQuiz         ElementType = "quiz"
	TypePoll         ElementType = "poll"
	TypeHotspot      ElementType = "hotspot"
	TypeDecision     ElementType = "decision"
	TypeImageHotspot ElementType = "image-hotspot"
)

// QuizScoreIncrement is awarded for a correct answer on a quiz element
// unless the element carries an explicit Points value.
const QuizScoreIncrement = 10

// Behavior controls how an element interacts with playback.
type Behavior struct {
	PauseVideo            bool `json:"pauseVideo"`
	AllowSkipping         bool `json:"allowSkipping"`
	ResumeAfterCompletion bool `json:"resumeAfterCompletion"`
	AllowResubmission     bool `json:"allowResubmission"`
}

// Option represents a possible response for an element. Action, when present,
// holds the raw navigation grammar; ParsedAction is filled at load time.
type Option struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	IsCorrect    bool    `json:"isCorrect"`
	Action       string  `json:"action,omitempty"`
	ParsedAction *Action `json:"-"`
}

// InteractiveElement is an immutable descriptor overlaid on the video timeline.
// The active window is the half-open interval [StartTime, StartTime+Duration).
type InteractiveElement struct {
	ID        string      `json:"id"`
	Type      ElementType `json:"type"`
	Title     string      `json:"title,omitempty"`
	StartTime float64     `json:"startTime"`
	Duration  float64     `json:"duration"`
	Options   []Option    `json:"options"`
	Behavior  Behavior    `json:"behavior"`
	Points    int         `json:"points,omitempty"` // explicit override; otherwise per-type constant
}

// InWindow reports whether position t falls inside the element's window.
func (e InteractiveElement) InWindow(t float64) bool {
	return t >= e.StartTime && t < e.StartTime+e.Duration
}

// Option returns the option with the given ID.
func (e InteractiveElement) Option(optionID string) (Option, bool) {
	for _, opt := range e.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Scored reports whether the element type carries a correctness signal.
func (e InteractiveElement) Scored() bool {
	return e.Type == TypeQuiz || e.Points > 0
}

// ScoreFor computes the score delta for choosing opt on element e.
// Quiz elements award a fixed increment for correct answers; other types
// award nothing unless the element is explicitly scored via Points.
func (e InteractiveElement) ScoreFor(opt Option) int {
	if !opt.IsCorrect {
		return 0
	}
	if e.Points > 0 {
		return e.Points
	}
	if e.Type == TypeQuiz {
		return QuizScoreIncrement
	}
	return 0
}

// Video bundles a playable source with its interactive elements. Elements need
// not be sorted or non-overlapping; the scheduler tolerates both.
type Video struct {
	ID        string               `json:"id"`
	Title     string               `json:"title,omitempty"`
	SourceURL string               `json:"sourceUrl"`
	Duration  float64              `json:"duration"`
	Elements  []InteractiveElement `json:"elements"`
}

// Element returns the element with the given ID.
func (v Video) Element(elementID string) (InteractiveElement, bool) {
	for _, e := range v.Elements {
		if e.ID == elementID {
			return e, true
		}
	}
	return InteractiveElement{}, false
}

// InteractionStatus is the per-session lifecycle state of one element.
type InteractionStatus string

const (
	StatusPending  InteractionStatus = "pending"
	StatusActive   InteractionStatus = "active"
	StatusAnswered InteractionStatus = "answered"
	StatusSkipped  InteractionStatus = "skipped"
	StatusResolved InteractionStatus = "resolved"
)

// PlayState is the session-level playback mode.
type PlayState string

const (
	StatePlaying              PlayState = "playing"
	StatePaused               PlayState = "paused"
	StatePausedForInteraction PlayState = "paused-for-interaction"
)

// Settings are the recognized per-session engine options.
// PreventReattempt maps to AllowResubmission=false engine-wide.
type Settings struct {
	PauseOnInteraction bool   `json:"pauseOnInteraction" yaml:"pauseOnInteraction"`
	ShowFeedback       bool   `json:"showFeedback" yaml:"showFeedback"`
	AutoAdvance        bool   `json:"autoAdvance" yaml:"autoAdvance"`
	PreventReattempt   bool   `json:"preventReattempt" yaml:"preventReattempt"`
	WebhookURL         string `json:"webhookUrl,omitempty" yaml:"webhookUrl"`
}

// AttemptRecord is the persisted fact for one resolved interaction.
// Uniqueness key is (UserID, ElementID) unless the element allows resubmission.
type AttemptRecord struct {
	VideoID   string    `json:"videoId"`
	ElementID string    `json:"elementId"`
	UserID    string    `json:"userId"`
	OptionID  string    `json:"optionId"`
	IsCorrect *bool     `json:"isCorrect"` // nil for non-scored types
	Timestamp time.Time `json:"timestamp"`
}

// AttemptResult summarizes the outcome of a resolution for the viewer.
type AttemptResult struct {
	ElementID  string `json:"elementId"`
	OptionID   string `json:"optionId"`
	Correct    *bool  `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// ProgressRecord is the persisted resume state for one (user, video) pair.
type ProgressRecord struct {
	UserID                  string   `json:"userId"`
	VideoID                 string   `json:"videoId"`
	LastPosition            float64  `json:"lastPosition"`
	CompletedInteractionIDs []string `json:"completedInteractionIds"`
}

// CommandKind enumerates playback commands the engine emits to the adapter.
type CommandKind string

const (
	CommandPause       CommandKind = "pause"
	CommandPlay        CommandKind = "play"
	CommandSeek        CommandKind = "seek"
	CommandSwitchVideo CommandKind = "switchVideo"
	CommandOpenURL     CommandKind = "openUrl"
)

// Command is a playback instruction for the hosting player.
type Command struct {
	Kind     CommandKind `json:"kind"`
	Position float64     `json:"position,omitempty"`
	VideoID  string      `json:"videoId,omitempty"`
	EmbedURL string      `json:"embedUrl,omitempty"`
	URL      string      `json:"url,omitempty"`
}
