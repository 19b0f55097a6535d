package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind tags the navigation variants of the option action grammar.
type ActionKind string

const (
	ActionSeek        ActionKind = "seek"
	ActionSwitchVideo ActionKind = "switchVideo"
	ActionOpenURL     ActionKind = "openUrl"
)

// Action is the parsed form of an option's action string:
//
//	"jump:<seconds>"  -> seek within the current video
//	absolute URL      -> open externally
//	anything else     -> switch to that video ID
//
// Parsing happens once at load time so malformed actions are rejected
// eagerly instead of at navigation time.
type Action struct {
	Kind    ActionKind
	Seconds float64
	VideoID string
	URL     string
}

// ParseAction parses raw according to the grammar above. Empty input is an
// error; callers should only parse options that carry an action.
func ParseAction(raw string) (Action, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Action{}, fmt.Errorf("%w: empty action", ErrMalformedAction)
	}

	if rest, ok := strings.CutPrefix(raw, "jump:"); ok {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil || seconds < 0 {
			return Action{}, fmt.Errorf("%w: bad jump offset %q", ErrMalformedAction, rest)
		}
		return Action{Kind: ActionSeek, Seconds: seconds}, nil
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return Action{Kind: ActionOpenURL, URL: raw}, nil
	}

	if strings.ContainsAny(raw, " \t") {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, raw)
	}
	return Action{Kind: ActionSwitchVideo, VideoID: raw}, nil
}

// ParseElementActions resolves the action field on every option of every
// element, in place. The first malformed action aborts the load.
func ParseElementActions(elements []InteractiveElement) error {
	for i := range elements {
		for j := range elements[i].Options {
			opt := &elements[i].Options[j]
			if opt.Action == "" {
				continue
			}
			action, err := ParseAction(opt.Action)
			if err != nil {
				return fmt.Errorf("element %s option %s: %w", elements[i].ID, opt.ID, err)
			}
			opt.ParsedAction = &action
		}
	}
	return nil
}
