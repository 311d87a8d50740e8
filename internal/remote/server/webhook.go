package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// EventRecordingPublished is sent after a new recording enters the library.
const EventRecordingPublished = "recording.published"

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Blockcast-Signature"

// WebhookEvent represents the payload sent to webhook URLs.
type WebhookEvent struct {
	Event       string `json:"event"`
	RecordingID string `json:"recording_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	DurationMs  int64  `json:"duration_ms"`
	VideoURL    string `json:"video_url,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// WebhookConfig holds the configured webhook URLs and optional signing secret.
type WebhookConfig struct {
	URLs   []string
	Secret string
}

// WebhookNotifier sends HTTP POST notifications to configured webhook URLs.
// A nil notifier is valid and does nothing.
type WebhookNotifier struct {
	config     *WebhookConfig
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		config:     cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryDelay: time.Second,
	}
}

// NotifyPublished announces a new recording. Delivery is asynchronous.
func (wn *WebhookNotifier) NotifyPublished(info *models.RecordingInfo) {
	if wn == nil {
		return
	}

	event := &WebhookEvent{
		Event:       EventRecordingPublished,
		RecordingID: info.ID,
		Title:       info.Title,
		Author:      info.Author,
		DurationMs:  info.DurationMs,
		VideoURL:    info.VideoURL,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Close waits for in-flight deliveries.
func (wn *WebhookNotifier) Close() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// send delivers the webhook event to all configured URLs.
func (wn *WebhookNotifier) send(event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(url, data); err != nil {
			wn.logger.Warn("webhook: delivery failed", "url", url, "error", err)
		} else {
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event)
		}
	}
}

// post sends a single webhook POST with retry (up to 2 retries).
func (wn *WebhookNotifier) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "blockcast-server/1.0")
		if wn.config.Secret != "" {
			req.Header.Set(SignatureHeader, "sha256="+Sign(wn.config.Secret, data))
		}

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * wn.retryDelay)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
		time.Sleep(time.Duration(attempt+1) * wn.retryDelay)
	}

	return lastErr
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
