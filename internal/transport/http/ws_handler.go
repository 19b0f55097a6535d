package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/engine"
)

type WSHandler struct {
	service  *app.PlayerService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PlayerService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type tickPayload struct {
	Position float64 `json:"position"`
}

type resolvePayload struct {
	ElementID string `json:"elementId"`
	OptionID  string `json:"optionId"`
}

type reopenPayload struct {
	ElementID string `json:"elementId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// manifestOption omits correctness and raw actions so answer keys never
// reach the client.
type manifestOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type manifestElement struct {
	ID        string             `json:"id"`
	Type      domain.ElementType `json:"type"`
	Title     string             `json:"title,omitempty"`
	StartTime float64            `json:"startTime"`
	Duration  float64            `json:"duration"`
	Options   []manifestOption   `json:"options"`
	Behavior  domain.Behavior    `json:"behavior"`
}

type readyPayload struct {
	SessionID string            `json:"sessionId"`
	VideoID   string            `json:"videoId"`
	Title     string            `json:"title,omitempty"`
	Provider  string            `json:"provider"`
	EmbedURL  string            `json:"embedUrl"`
	Duration  float64           `json:"duration"`
	Position  float64           `json:"position"`
	Elements  []manifestElement `json:"elements"`
}

// ServeWS upgrades HTTP requests to websockets and mounts a playback session.
// Inbound messages carry the position stream and resolutions; outbound
// messages carry activation events and playback commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		http.Error(w, "missing videoId", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId") // empty means anonymous, no persistence

	var startTime *float64
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid start time", http.StatusBadRequest)
			return
		}
		startTime = &parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.service.Mount(r.Context(), app.MountParams{
		VideoID:   videoID,
		UserID:    userID,
		StartTime: startTime,
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Unmount(session.ID())

	events, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "ready", Payload: buildReady(session)}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "tick", "seek":
			var payload tickPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid tick payload"}}
				continue
			}
			if err := session.Tick(payload.Position); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "resolve":
			var payload resolvePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid resolve payload"}}
				continue
			}
			before := session.VideoID()
			result, err := session.Resolve(r.Context(), payload.ElementID, payload.OptionID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				if !errors.Is(err, domain.ErrDuplicateAttempt) {
					continue
				}
			}
			send <- outboundMessage[any]{Type: "attemptResult", Payload: result}
			if session.VideoID() != before {
				// Branching switched the video; re-send the manifest.
				send <- outboundMessage[any]{Type: "ready", Payload: buildReady(session)}
			}
		case "reopen":
			var payload reopenPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid reopen payload"}}
				continue
			}
			if err := session.Reopen(payload.ElementID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func buildReady(session *engine.Session) readyPayload {
	video := session.Video()
	embed := session.Embed()

	elements := make([]manifestElement, 0, len(video.Elements))
	for _, el := range video.Elements {
		options := make([]manifestOption, 0, len(el.Options))
		for _, opt := range el.Options {
			options = append(options, manifestOption{ID: opt.ID, Text: opt.Text})
		}
		elements = append(elements, manifestElement{
			ID:        el.ID,
			Type:      el.Type,
			Title:     el.Title,
			StartTime: el.StartTime,
			Duration:  el.Duration,
			Options:   options,
			Behavior:  el.Behavior,
		})
	}

	return readyPayload{
		SessionID: session.ID(),
		VideoID:   video.ID,
		Title:     video.Title,
		Provider:  embed.Provider,
		EmbedURL:  embed.EmbedURL,
		Duration:  video.Duration,
		Position:  session.Position(),
		Elements:  elements,
	}
}
