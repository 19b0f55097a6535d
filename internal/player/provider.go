// Package player normalizes heterogeneous video sources into a uniform
// embeddable form and defines the playback command surface the engine drives.
package player

import (
	"fmt"
	"regexp"
	"strings"

	"interactive-video-service/internal/domain"
)

// Embed describes a source after normalization. For iframe-hosted providers
// only position/ready/ended are observable; all other playback failures are
// opaque and must not be retried automatically.
type Embed struct {
	Provider string `json:"provider"`
	VideoKey string `json:"videoKey"`
	EmbedURL string `json:"embedUrl"`
	Opaque   bool   `json:"opaque"` // true when low-level errors cannot be intercepted
}

// Provider turns one family of source URLs into an Embed.
type Provider interface {
	Name() string
	Normalize(rawURL string) (Embed, bool)
}

// Registry resolves a source URL against the registered providers in
// registration order. New providers extend the table without touching
// the scheduler or session code.
type Registry struct {
	providers []Provider
}

func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Register appends a provider to the lookup table.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Normalize returns the first successful normalization, or
// ErrAdapterUnavailable when no provider recognizes the URL.
func (r *Registry) Normalize(rawURL string) (Embed, error) {
	for _, p := range r.providers {
		if embed, ok := p.Normalize(rawURL); ok {
			return embed, nil
		}
	}
	return Embed{}, fmt.Errorf("%w: no provider for %q", domain.ErrAdapterUnavailable, rawURL)
}

// DefaultRegistry covers the built-in providers.
func DefaultRegistry() *Registry {
	return NewRegistry(YouTubeProvider{}, VimeoProvider{}, HostedFileProvider{})
}

// youtubePatterns match watch URLs, short links, embed links, and
// channel-embedded forms, capturing the 11-character video key.
var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtu\.be/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/embed/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/(?:c/|channel/)[^/]+/video/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/shorts/)([A-Za-z0-9_-]{11})`),
}

// YouTubeProvider extracts video keys from the known YouTube URL shapes.
type YouTubeProvider struct{}

func (YouTubeProvider) Name() string { return "youtube" }

func (YouTubeProvider) Normalize(rawURL string) (Embed, bool) {
	for _, pattern := range youtubePatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			return Embed{
				Provider: "youtube",
				VideoKey: m[1],
				EmbedURL: "https://www.youtube.com/embed/" + m[1] + "?enablejsapi=1",
				Opaque:   true,
			}, true
		}
	}
	return Embed{}, false
}

var vimeoPattern = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)

// VimeoProvider extracts numeric video keys from vimeo.com URLs.
type VimeoProvider struct{}

func (VimeoProvider) Name() string { return "vimeo" }

func (VimeoProvider) Normalize(rawURL string) (Embed, bool) {
	if m := vimeoPattern.FindStringSubmatch(rawURL); m != nil {
		return Embed{
			Provider: "vimeo",
			VideoKey: m[1],
			EmbedURL: "https://player.vimeo.com/video/" + m[1],
			Opaque:   true,
		}, true
	}
	return Embed{}, false
}

var hostedExtensions = []string{".mp4", ".webm", ".ogv", ".m3u8", ".mov"}

// HostedFileProvider accepts direct file URLs playable in a native element.
type HostedFileProvider struct{}

func (HostedFileProvider) Name() string { return "file" }

func (HostedFileProvider) Normalize(rawURL string) (Embed, bool) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return Embed{}, false
	}
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	lower := strings.ToLower(trimmed)
	for _, ext := range hostedExtensions {
		if strings.HasSuffix(lower, ext) {
			return Embed{Provider: "file", VideoKey: rawURL, EmbedURL: rawURL}, true
		}
	}
	return Embed{}, false
}
