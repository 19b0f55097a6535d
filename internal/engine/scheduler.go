package engine

import "interactive-video-service/internal/domain"

// runtimeState is the per-session lifecycle of one element, keyed by element
// ID so repeated visits to the same window never duplicate state.
type runtimeState struct {
	status domain.InteractionStatus
	// rearmable marks a resolved element whose window has been exited since
	// resolution; re-entry may reactivate it when resubmission is allowed.
	rearmable bool
	// compliant is false when a non-skippable element was exited unanswered.
	compliant bool
}

// nextActivation picks the element to activate at position t, or "" if none.
// Eligible are pending elements whose window contains t, plus resolved
// elements that left their window and re-entered it, when resubmission is
// allowed. Skipped is terminal for the viewing session. Selection is smallest
// StartTime, tie-broken by lexicographically smallest ID.
func nextActivation(t float64, elements []domain.InteractiveElement, runtime map[string]*runtimeState, allowResub func(domain.InteractiveElement) bool) string {
	var (
		bestID    string
		bestStart float64
	)
	for _, el := range elements {
		if !el.InWindow(t) {
			continue
		}
		rt := runtime[el.ID]
		eligible := false
		switch {
		case rt == nil || rt.status == domain.StatusPending:
			eligible = true
		case rt.status == domain.StatusResolved && rt.rearmable && allowResub(el):
			eligible = true
		}
		if !eligible {
			continue
		}
		if bestID == "" || el.StartTime < bestStart || (el.StartTime == bestStart && el.ID < bestID) {
			bestID = el.ID
			bestStart = el.StartTime
		}
	}
	return bestID
}
