// Package capture pairs editor recordings with a screen video produced by an
// external recorder process writing to a file.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kilupskalvis/blockcast/internal/recording"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
)

// OutputPlaceholder is replaced by the output path in recorder arguments.
const OutputPlaceholder = "{output}"

// ErrEmptyVideo is returned when the recorder produced no bytes.
var ErrEmptyVideo = errors.New("captured video is empty")

// FileCapture implements recording.VideoCapture over a file written by an
// external recorder (for example ffmpeg). Stopped captures are moved into a
// content-addressed video store.
type FileCapture struct {
	output      string
	command     []string
	contentType string
	videos      blobstore.VideoStore
	stopTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a FileCapture.
type Option func(*FileCapture)

// WithCommand runs argv for the duration of the capture. Any argument equal
// to or containing OutputPlaceholder receives the output path.
func WithCommand(argv ...string) Option {
	return func(c *FileCapture) { c.command = argv }
}

// WithContentType sets the stored video's content type.
func WithContentType(ct string) Option {
	return func(c *FileCapture) { c.contentType = ct }
}

// WithStopTimeout bounds how long Stop waits for the recorder to exit after
// an interrupt before killing it.
func WithStopTimeout(d time.Duration) Option {
	return func(c *FileCapture) { c.stopTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *FileCapture) { c.logger = l }
}

// NewFileCapture creates a capture that reads the video from output.
func NewFileCapture(output string, videos blobstore.VideoStore, opts ...Option) *FileCapture {
	c := &FileCapture{
		output:      output,
		contentType: blobstore.DefaultContentType,
		videos:      videos,
		stopTimeout: 10 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start truncates the output file and launches the recorder, if any.
func (c *FileCapture) Start(ctx context.Context) (recording.CaptureSession, error) {
	if err := os.MkdirAll(filepath.Dir(c.output), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(c.output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open capture output: %w", err)
	}
	f.Close()

	s := &fileSession{capture: c, done: make(chan error, 1)}
	if len(c.command) == 0 {
		return s, nil
	}

	args := make([]string, len(c.command))
	for i, a := range c.command {
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, c.output)
	}
	// Stdout and stderr stay nil so Wait never blocks on pipes held open by
	// the recorder's own children.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %s: %w", args[0], err)
	}
	s.cmd = cmd
	go func() { s.done <- cmd.Wait() }()

	c.logger.Debug("recorder started", "command", args[0], "pid", cmd.Process.Pid, "output", c.output)
	return s, nil
}

type fileSession struct {
	capture *FileCapture
	cmd     *exec.Cmd
	done    chan error
	once    sync.Once
	stopErr error
	url     string
}

// Stop ends the recorder and stores the video. Calling it twice returns the
// first result.
func (s *fileSession) Stop(ctx context.Context) (string, error) {
	s.once.Do(func() {
		s.url, s.stopErr = s.stop(ctx)
	})
	return s.url, s.stopErr
}

func (s *fileSession) stop(ctx context.Context) (string, error) {
	c := s.capture
	if s.cmd != nil {
		if err := s.terminate(ctx); err != nil {
			c.logger.Warn("recorder exited uncleanly", "error", err)
		}
	}

	hash, size, err := hashFile(c.output)
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", ErrEmptyVideo
	}

	f, err := os.Open(c.output)
	if err != nil {
		return "", fmt.Errorf("open captured video: %w", err)
	}
	defer f.Close()

	if err := c.videos.Put(ctx, hash, f, c.contentType); err != nil {
		return "", fmt.Errorf("store captured video: %w", err)
	}

	c.logger.Info("video captured", "hash", hash[:12], "bytes", size)
	return remote.VideoURL(hash), nil
}

// terminate interrupts the recorder so it can finalize the container, then
// kills it if it does not exit in time.
func (s *fileSession) terminate(ctx context.Context) error {
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		// Already exited
		return <-s.done
	}

	timer := time.NewTimer(s.capture.stopTimeout)
	defer timer.Stop()

	select {
	case err := <-s.done:
		return err
	case <-timer.C:
	case <-ctx.Done():
	}
	s.cmd.Process.Kill()
	return <-s.done
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open captured video: %w", err)
	}
	defer f.Close()

	hash, n, err := blobstore.HashReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("hash captured video: %w", err)
	}
	return hash, n, nil
}
