// Package server implements the blockcast-server HTTP handlers and middleware.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/blockcast/internal/auth"
	"github.com/kilupskalvis/blockcast/internal/models"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyUsername  contextKey = "username"
	contextKeyToken     contextKey = "token"
)

// Authenticator manages accounts and sessions. Implemented by *auth.Manager.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.Session, string, error)
	Authenticate(ctx context.Context, rawToken string) (*models.Session, error)
	Logout(ctx context.Context, rawToken string) error
	Sweep(ctx context.Context) (int64, error)
}

// requestIDMiddleware tags every request with an id, reusing a well-formed
// X-Request-ID from the caller so ids survive proxies.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, reqID)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// loggingMiddleware writes one log line per request. Server errors log at warn.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			if rw.statusCode >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"bytes", rw.written,
				"latency_ms", time.Since(began).Milliseconds(),
				"request_id", requestIDFrom(r.Context()),
			)
		})
	}
}

// recoveryMiddleware turns a handler panic into a 500 unless a response has
// already started.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				logger.Error("handler panic", "panic", v, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
				if rw.statusCode == 0 {
					writeError(rw, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// sessionMiddleware validates bearer session tokens and puts the user in context.
func sessionMiddleware(users Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "auth_failed", "missing or invalid Authorization header")
				return
			}
			rawToken := strings.TrimPrefix(header, "Bearer ")

			sess, err := users.Authenticate(r.Context(), rawToken)
			if err != nil {
				msg := "invalid session"
				if errors.Is(err, auth.ErrSessionExpired) {
					msg = "session expired, log in again"
				} else if !errors.Is(err, auth.ErrInvalidSession) {
					writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
					return
				}
				writeError(w, http.StatusUnauthorized, "auth_failed", msg)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUsername, sess.Username)
			ctx = context.WithValue(ctx, contextKeyToken, rawToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usernameFrom(ctx context.Context) string {
	u, _ := ctx.Value(contextKeyUsername).(string)
	return u
}

// rateLimiter allows each caller limit requests per minute, counted from the
// caller's first request in the window. Signed-in callers are keyed by
// username, anonymous ones by client address.
type rateLimiter struct {
	limit int
	now   func() time.Time

	mu     sync.Mutex
	counts map[string]rateWindow
}

type rateWindow struct {
	opened time.Time
	n      int
}

// pruneAt is the map size at which expired windows are dropped.
const pruneAt = 1024

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		limit:  requestsPerMinute,
		now:    time.Now,
		counts: make(map[string]rateWindow),
	}
}

// take counts one request for key and reports whether it is allowed, and
// if not, how long until the caller's window closes.
func (rl *rateLimiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.counts) >= pruneAt {
		for k, win := range rl.counts {
			if now.Sub(win.opened) >= time.Minute {
				delete(rl.counts, k)
			}
		}
	}

	win := rl.counts[key]
	if win.opened.IsZero() || now.Sub(win.opened) >= time.Minute {
		win = rateWindow{opened: now}
	}
	win.n++
	rl.counts[key] = win

	if win.n > rl.limit {
		return false, win.opened.Add(time.Minute).Sub(now)
	}
	return true, 0
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := usernameFrom(r.Context())
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = "addr:" + host
		}

		if ok, wait := rl.take(key); !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
