// Package webhook delivers best-effort attempt notifications over HTTP.
// Delivery failures are logged and swallowed; the engine never retries.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"interactive-video-service/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Notifier posts interaction attempts to a configured URL.
type Notifier struct {
	url    string
	client *http.Client
}

// New returns a notifier, or nil when no URL is configured so callers can
// skip dispatch entirely.
func New(url string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

type attemptPayload struct {
	Event     string    `json:"event"`
	VideoID   string    `json:"videoId"`
	ElementID string    `json:"elementId"`
	UserID    string    `json:"userId"`
	OptionID  string    `json:"optionId"`
	IsCorrect *bool     `json:"isCorrect"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify posts the interaction_attempt event. Errors are logged only.
func (n *Notifier) Notify(ctx context.Context, record domain.AttemptRecord) {
	body, err := json.Marshal(attemptPayload{
		Event:     "interaction_attempt",
		VideoID:   record.VideoID,
		ElementID: record.ElementID,
		UserID:    record.UserID,
		OptionID:  record.OptionID,
		IsCorrect: record.IsCorrect,
		Timestamp: record.Timestamp,
	})
	if err != nil {
		log.Printf("webhook: marshal payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("webhook: deliver attempt for %s: %v", record.ElementID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("webhook: deliver attempt for %s: status %d", record.ElementID, resp.StatusCode)
	}
}
