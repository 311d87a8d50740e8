package remote

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoHashFromURL(t *testing.T) {
	hash, ok := VideoHashFromURL(VideoURL("abc123"))
	assert.True(t, ok)
	assert.Equal(t, "abc123", hash)

	for _, url := range []string{"", "placeholder", "https://cdn.example.com/v.webm", VideoPathPrefix, VideoPathPrefix + "a/b"} {
		_, ok := VideoHashFromURL(url)
		assert.False(t, ok, url)
	}
}

func TestHTTPClient_LoginUsesToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice", creds.Username)
		json.NewEncoder(w).Encode(&LoginResponse{Username: "alice", Token: "bc_tok", ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("GET /api/v1/recordings", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "alice", r.URL.Query().Get("author"))
		json.NewEncoder(w).Encode(&RecordingList{Recordings: []*models.RecordingInfo{{ID: "r1", Author: "alice"}}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewHTTPClient(ts.URL+"/", "")
	resp, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "bc_tok", resp.Token)

	list, err := c.ListRecordings(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, "Bearer bc_tok", gotAuth)
}

func TestHTTPClient_DecodesRemoteError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"auth_failed","message":"invalid credentials"}`))
	}))
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL, "").Login(context.Background(), "alice", "wrong")
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "auth_failed", re.Code)
}

func TestHTTPClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewHTTPClient(ts.URL, "tok").DeleteRecording(context.Background(), "r1")
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "unknown", re.Code)
	assert.Equal(t, http.StatusBadGateway, re.Status)
}

func TestHTTPClient_GetRecording_Gzip(t *testing.T) {
	body := `{"events":[{"timestamp":0,"type":"BLOCK_CREATE","data":{"document":"<xml/>"}}],"videoUrl":"placeholder"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/recordings/r1", r.URL.Path)
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(body))
		gz.Close()
	}))
	defer ts.Close()

	rec, err := NewHTTPClient(ts.URL, "tok").GetRecording(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, models.EventCreate, rec.Events[0].Type)
	assert.Equal(t, "placeholder", rec.VideoURL)
}

func TestHTTPClient_GetRecording_Invalid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[{"timestamp":5,"type":"CREATE","data":{}},{"timestamp":1,"type":"MOVE","data":{}}],"videoUrl":""}`))
	}))
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL, "tok").GetRecording(context.Background(), "r1")
	var le *models.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1, le.Index)
}

func TestHTTPClient_PublishRecording_Gzip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req PublishRequest
		if !assert.NoError(t, json.NewDecoder(gz).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "demo", req.Title)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&models.RecordingInfo{ID: "r1", Title: req.Title, EventCount: len(req.Recording.Events)})
	}))
	defer ts.Close()

	rec := &models.Recording{Events: []models.Event{{Timestamp: 0, Type: models.EventCreate}}, VideoURL: "placeholder"}
	info, err := NewHTTPClient(ts.URL, "tok").PublishRecording(context.Background(), "demo", rec)
	require.NoError(t, err)
	assert.Equal(t, "r1", info.ID)
	assert.Equal(t, 1, info.EventCount)
}

func TestHTTPClient_Videos(t *testing.T) {
	stored := map[string]string{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimPrefix(r.URL.Path, VideoPathPrefix)
		switch r.Method {
		case http.MethodPost:
			data, _ := io.ReadAll(r.Body)
			stored[hash] = string(data)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			w.Header().Set("Content-Type", "video/webm")
			w.Write([]byte(stored[hash]))
		}
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "tok")
	require.NoError(t, c.UploadVideo(context.Background(), "h1", strings.NewReader("frames"), "video/webm"))

	rc, contentType, err := c.DownloadVideo(context.Background(), "h1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))
	assert.Equal(t, "video/webm", contentType)
}
