package server

import (
	"compress/gzip"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/blockcast/internal/auth"
	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/kilupskalvis/blockcast/internal/playback"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
	"github.com/kilupskalvis/blockcast/internal/remote/metastore"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64  // bytes, for JSON endpoints
	MaxVideoSize      int64  // bytes, for video uploads
	RequestsPerMinute int    // per-user rate limit
	AdminToken        string // for admin endpoints
	Webhooks          *WebhookNotifier

	// ReadyCheck reports whether backing stores are reachable. Optional.
	ReadyCheck func(ctx context.Context) error
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    64 * 1024 * 1024,  // 64MB
		MaxVideoSize:      512 * 1024 * 1024, // 512MB
		RequestsPerMinute: 300,
	}
}

// library bundles what the recording and video handlers need.
type library struct {
	meta   metastore.MetaStore
	videos blobstore.VideoStore
	users  Authenticator
	cfg    *ServerConfig
	logger *slog.Logger
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(meta metastore.MetaStore, videos blobstore.VideoStore, users Authenticator, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	lib := &library{meta: meta, videos: videos, users: users, cfg: cfg, logger: logger}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	session := sessionMiddleware(users)

	// applyMiddleware runs the first item outermost.
	// Execution order: session -> rl -> handler
	withSession := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, session, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := meta.GetRecordingCount(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: recording store unavailable"))
			return
		}
		if cfg.ReadyCheck != nil {
			if err := cfg.ReadyCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready: user store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Admin endpoints
	if cfg.AdminToken != "" {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("POST /admin/gc", lib.handleAdminGC)
		adminMux.HandleFunc("POST /admin/sessions/sweep", lib.handleAdminSweep)
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Accounts (anonymous requests are limited per address)
	mux.Handle("POST /api/register", rl.middleware(http.HandlerFunc(lib.handleRegister)))
	mux.Handle("POST /api/login", rl.middleware(http.HandlerFunc(lib.handleLogin)))
	mux.Handle("POST /api/logout", withSession(lib.handleLogout))

	// Recordings
	mux.Handle("GET /api/v1/recordings", withSession(lib.handleListRecordings))
	mux.Handle("POST /api/v1/recordings", withSession(lib.handlePublishRecording))
	mux.Handle("GET /api/v1/recordings/{id}", withSession(lib.handleGetRecording))
	mux.Handle("DELETE /api/v1/recordings/{id}", withSession(lib.handleDeleteRecording))
	mux.Handle("GET /api/v1/recordings/{id}/state", withSession(lib.handleRecordingState))

	// Videos
	mux.Handle("GET /api/v1/videos/{hash}", withSession(lib.handleGetVideo))
	mux.Handle("POST /api/v1/videos/{hash}", withSession(lib.handlePostVideo))

	// Global middleware. Logging wraps recovery so recovered panics are
	// logged with their 500.
	handler := applyMiddleware(mux,
		requestIDMiddleware,
		loggingMiddleware(logger),
		recoveryMiddleware(logger),
	)

	return handler, cfg.Webhooks.Close
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// --- Account Handlers ---

func (l *library) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req remote.Credentials
	if err := readJSON(r, l.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	u, err := l.users.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, "user_exists", err.Error())
		return
	case err != nil:
		l.logger.Error("register", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, &remote.RegisterResponse{Username: u.Username})
}

func (l *library) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req remote.Credentials
	if err := readJSON(r, l.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sess, token, err := l.users.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "auth_failed", err.Error())
		return
	case err != nil:
		l.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &remote.LoginResponse{
		Username:  sess.Username,
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (l *library) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(contextKeyToken).(string)
	if err := l.users.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// --- Recording Handlers ---

func (l *library) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	list, err := l.meta.ListRecordings(r.Context(), r.URL.Query().Get("author"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if list == nil {
		list = []*models.RecordingInfo{}
	}
	writeJSON(w, http.StatusOK, &remote.RecordingList{Recordings: list})
}

func (l *library) handlePublishRecording(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid gzip body")
			return
		}
		defer gz.Close()
		body = gz
	}

	var req remote.PublishRequest
	if err := json.NewDecoder(io.LimitReader(body, l.cfg.MaxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Recording == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "recording is required")
		return
	}
	rec := req.Recording
	if rec.Events == nil {
		rec.Events = []models.Event{}
	}

	if err := rec.Validate(); err != nil {
		var le *models.LoadError
		detail := map[string]string{}
		if errors.As(err, &le) && le.Index >= 0 {
			detail["event_index"] = strconv.Itoa(le.Index)
		}
		writeJSON(w, http.StatusUnprocessableEntity, &remote.ErrorResponse{
			Error:   "invalid_recording",
			Message: err.Error(),
			Detail:  detail,
		})
		return
	}

	// A recording pointing at a stored video must not outlive it.
	if hash, ok := remote.VideoHashFromURL(rec.VideoURL); ok {
		has, err := l.videos.Has(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if !has {
			writeError(w, http.StatusUnprocessableEntity, "missing_video", fmt.Sprintf("video %s has not been uploaded", hash))
			return
		}
	}

	author := usernameFrom(r.Context())
	id, err := models.GenerateRecordingID(author, rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if existing, err := l.meta.GetRecordingInfo(r.Context(), id); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	} else if !errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "untitled"
	}
	info := models.NewRecordingInfo(id, title, author, rec, time.Now().UTC())
	if err := l.meta.InsertRecording(r.Context(), info, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	l.logger.Info("recording published", "id", info.ShortID(), "author", author, "events", info.EventCount)
	l.cfg.Webhooks.NotifyPublished(info)

	writeJSON(w, http.StatusCreated, info)
}

func (l *library) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, ok := l.loadRecording(w, r)
	if !ok {
		return
	}

	// Respond with gzip if client accepts it
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		gz := gzip.NewWriter(w)
		if err := json.NewEncoder(gz).Encode(rec); err != nil {
			l.logger.Warn("encode recording", "error", err)
		}
		gz.Close()
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (l *library) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := l.meta.GetRecordingInfo(r.Context(), id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recording not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if info.Author != usernameFrom(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden", "only the author can delete a recording")
		return
	}

	if err := l.meta.DeleteRecording(r.Context(), id); err != nil && !errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleRecordingState replays a recording on a fresh workspace up to ?at=.
func (l *library) handleRecordingState(w http.ResponseWriter, r *http.Request) {
	at, err := strconv.ParseInt(r.URL.Query().Get("at"), 10, 64)
	if err != nil || at < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "at must be a non-negative number of milliseconds")
		return
	}

	rec, ok := l.loadRecording(w, r)
	if !ok {
		return
	}

	ws := editor.NewWorkspace()
	player := playback.New(ws, l.logger)
	if err := player.Load(rec); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_recording", err.Error())
		return
	}
	player.Seek(at)

	doc, err := ws.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	state := &remote.PlaybackState{
		ID:        r.PathValue("id"),
		At:        at,
		Position:  player.Position(),
		Document:  doc,
		Highlight: ws.Highlighted(),
		Blocks:    ws.Blocks(),
	}
	if ts, ok := player.LastApplied(); ok {
		state.LastApplied = &ts
	}
	writeJSON(w, http.StatusOK, state)
}

func (l *library) loadRecording(w http.ResponseWriter, r *http.Request) (*models.Recording, bool) {
	rec, err := l.meta.GetRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recording not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return nil, false
	}
	return rec, true
}

// --- Video Handlers ---

func (l *library) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	reader, meta, err := l.videos.Get(r.Context(), hash)
	if err != nil {
		if errors.Is(err, blobstore.ErrVideoNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	if rs, ok := reader.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", time.Time{}, rs)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

func (l *library) handlePostVideo(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if !blobstore.ValidHash(hash) {
		writeError(w, http.StatusBadRequest, "bad_request", "video hash must be a lowercase hex sha256")
		return
	}

	body := http.MaxBytesReader(w, r.Body, l.cfg.MaxVideoSize)
	if err := l.videos.Put(r.Context(), hash, body, r.Header.Get("Content-Type")); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.Is(err, blobstore.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		case errors.Is(err, blobstore.ErrHashMismatch):
			writeError(w, http.StatusUnprocessableEntity, "hash_mismatch", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Admin ---

func adminAuth(adminToken string, next http.Handler) http.Handler {
	expected := "Bearer " + adminToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "auth_failed", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *library) handleAdminGC(w http.ResponseWriter, r *http.Request) {
	result, err := GarbageCollect(r.Context(), l.meta, l.videos, l.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (l *library) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	n, err := l.users.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &remote.SweepResult{Deleted: n})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &remote.ErrorResponse{Error: code, Message: message})
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
