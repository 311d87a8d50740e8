package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// RetryConfig controls how RetryClient backs off between attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // share of the delay randomized in both directions, 0..1
}

// DefaultRetryConfig is used when NewRetryClient gets a nil config.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient decorates a RemoteClient, repeating calls that failed with a
// transient error. Uploads are only repeated when the body can be rewound.
type RetryClient struct {
	inner  RemoteClient
	config *RetryConfig
	jitter func() float64
}

func NewRetryClient(inner RemoteClient, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg, jitter: rand.Float64}
}

// isTransient reports whether err could succeed on a later attempt.
// Server faults and rate limiting qualify, as do transport failures.
// Malformed recordings and cancellation never do.
func isTransient(err error) bool {
	var (
		re *RemoteError
		le *models.LoadError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &re):
		return re.Status == http.StatusTooManyRequests || re.Status >= http.StatusInternalServerError
	case errors.As(err, &le):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// backoff returns the wait before retry number attempt (zero based):
// InitialBackoff doubled per attempt, capped, then jittered.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	limit := rc.config.MaxBackoff
	d := rc.config.InitialBackoff
	for i := 0; i < attempt && d < limit; i++ {
		d <<= 1
	}
	if d > limit {
		d = limit
	}
	if f := rc.config.JitterFraction; f > 0 {
		d += time.Duration(float64(d) * f * (2*rc.jitter() - 1))
	}
	return max(d, 0)
}

// delay picks the wait after err. A server supplied Retry-After wins over
// the computed backoff as long as it stays within MaxBackoff.
func (rc *RetryClient) delay(attempt int, err error) time.Duration {
	d := rc.backoff(attempt)
	var re *RemoteError
	if errors.As(err, &re) && re.RetryAfter > d {
		d = min(re.RetryAfter, rc.config.MaxBackoff)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, fails permanently, or the retry budget
// is spent. operation prefixes the returned error.
func (rc *RetryClient) retry(ctx context.Context, operation string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == rc.config.MaxRetries {
			return fmt.Errorf("%s: %w (after %d retries)", operation, err, attempt)
		}
		if serr := sleep(ctx, rc.delay(attempt, err)); serr != nil {
			return fmt.Errorf("%s: %w (retry cancelled)", operation, err)
		}
	}
}

// Register is not retried: a lost response would turn success into a duplicate.
func (rc *RetryClient) Register(ctx context.Context, username, password string) error {
	return rc.inner.Register(ctx, username, password)
}

func (rc *RetryClient) Login(ctx context.Context, username, password string) (resp *LoginResponse, err error) {
	err = rc.retry(ctx, "login", func() error {
		resp, err = rc.inner.Login(ctx, username, password)
		return err
	})
	return
}

func (rc *RetryClient) Logout(ctx context.Context) error {
	return rc.retry(ctx, "logout", func() error {
		return rc.inner.Logout(ctx)
	})
}

func (rc *RetryClient) ListRecordings(ctx context.Context, author string) (list []*models.RecordingInfo, err error) {
	err = rc.retry(ctx, "list recordings", func() error {
		list, err = rc.inner.ListRecordings(ctx, author)
		return err
	})
	return
}

func (rc *RetryClient) GetRecording(ctx context.Context, id string) (rec *models.Recording, err error) {
	err = rc.retry(ctx, "get recording", func() error {
		rec, err = rc.inner.GetRecording(ctx, id)
		return err
	})
	return
}

// PublishRecording is idempotent on the server (content-addressed IDs), so
// retrying is safe.
func (rc *RetryClient) PublishRecording(ctx context.Context, title string, rec *models.Recording) (info *models.RecordingInfo, err error) {
	err = rc.retry(ctx, "publish recording", func() error {
		info, err = rc.inner.PublishRecording(ctx, title, rec)
		return err
	})
	return
}

func (rc *RetryClient) DeleteRecording(ctx context.Context, id string) error {
	return rc.retry(ctx, "delete recording", func() error {
		return rc.inner.DeleteRecording(ctx, id)
	})
}

func (rc *RetryClient) State(ctx context.Context, id string, atMs int64) (state *PlaybackState, err error) {
	err = rc.retry(ctx, "recording state", func() error {
		state, err = rc.inner.State(ctx, id, atMs)
		return err
	})
	return
}

func (rc *RetryClient) UploadVideo(ctx context.Context, hash string, r io.Reader, contentType string) error {
	// A reader is consumed on the first attempt. Seekable readers are rewound.
	seeker, ok := r.(io.Seeker)
	if !ok {
		return rc.inner.UploadVideo(ctx, hash, r, contentType)
	}
	return rc.retry(ctx, "upload video", func() error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind video: %w", err)
		}
		return rc.inner.UploadVideo(ctx, hash, r, contentType)
	})
}

func (rc *RetryClient) DownloadVideo(ctx context.Context, hash string) (reader io.ReadCloser, contentType string, err error) {
	err = rc.retry(ctx, "download video", func() error {
		if reader != nil {
			reader.Close()
			reader = nil
		}
		reader, contentType, err = rc.inner.DownloadVideo(ctx, hash)
		return err
	})
	return
}
