// Package remote defines the protocol types and client for blockcast-server communication.
package remote

import (
	"strings"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// VideoPathPrefix is the server path under which stored videos are served.
const VideoPathPrefix = "/api/v1/videos/"

// VideoURL returns the server-relative URL of a stored video.
func VideoURL(hash string) string {
	return VideoPathPrefix + hash
}

// VideoHashFromURL extracts the hash from a server-relative video URL.
// Any other URL (external hosts, placeholders) reports false.
func VideoHashFromURL(url string) (string, bool) {
	hash, ok := strings.CutPrefix(url, VideoPathPrefix)
	if !ok || hash == "" || strings.Contains(hash, "/") {
		return "", false
	}
	return hash, true
}

// Credentials is the body of register and login requests.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse confirms a new account.
type RegisterResponse struct {
	Username string `json:"username"`
}

// LoginResponse carries a session token. The raw token is only ever sent here.
type LoginResponse struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PublishRequest uploads a recording to the library.
type PublishRequest struct {
	Title     string            `json:"title"`
	Recording *models.Recording `json:"recording"`
}

// RecordingList is the response of the library listing.
type RecordingList struct {
	Recordings []*models.RecordingInfo `json:"recordings"`
}

// PlaybackState is a server-side preview of a recording at a point in time.
type PlaybackState struct {
	ID          string   `json:"id"`
	At          int64    `json:"at"`
	Position    int      `json:"position"`
	LastApplied *int64   `json:"last_applied,omitempty"`
	Document    string   `json:"document"`
	Highlight   string   `json:"highlight,omitempty"`
	Blocks      []string `json:"blocks"`
}

// GCResult contains the outcome of a video garbage collection run.
type GCResult struct {
	VideosScanned    int `json:"videos_scanned"`
	VideosDeleted    int `json:"videos_deleted"`
	ReferencedVideos int `json:"referenced_videos"`
}

// SweepResult reports how many expired sessions an admin sweep removed.
type SweepResult struct {
	Deleted int64 `json:"deleted"`
}

// ErrorResponse is the structured error format returned by the server.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}
