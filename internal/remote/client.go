package remote

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/blockcast/internal/models"
)

// RemoteClient defines the contract for communicating with a blockcast-server.
type RemoteClient interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*LoginResponse, error)
	Logout(ctx context.Context) error

	ListRecordings(ctx context.Context, author string) ([]*models.RecordingInfo, error)
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
	PublishRecording(ctx context.Context, title string, rec *models.Recording) (*models.RecordingInfo, error)
	DeleteRecording(ctx context.Context, id string) error
	State(ctx context.Context, id string, atMs int64) (*PlaybackState, error)

	UploadVideo(ctx context.Context, hash string, r io.Reader, contentType string) error
	DownloadVideo(ctx context.Context, hash string) (io.ReadCloser, string, error)
}

// HTTPClient implements RemoteClient over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based remote client. The token may be empty
// for register and login.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetToken replaces the session token used for authenticated calls.
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Register creates an account.
func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	req := &Credentials{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/register", req, &RegisterResponse{}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Login opens a session and starts using its token.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	req := &Credentials{Username: username, Password: password}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.token = resp.Token
	return &resp, nil
}

// Logout ends the current session.
func (c *HTTPClient) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.token = ""
	return nil
}

// ListRecordings returns library entries, optionally for a single author.
func (c *HTTPClient) ListRecordings(ctx context.Context, author string) ([]*models.RecordingInfo, error) {
	path := "/api/v1/recordings"
	if author != "" {
		path += "?author=" + url.QueryEscape(author)
	}
	var resp RecordingList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return resp.Recordings, nil
}

// GetRecording downloads a recording in its persisted form.
func (c *HTTPClient) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	headers := map[string]string{"Accept-Encoding": "gzip"}

	resp, err := c.do(ctx, http.MethodGet, "/api/v1/recordings/"+url.PathEscape(id), nil, headers)
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decompress response: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	rec, err := models.DecodeRecording(reader)
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	return rec, nil
}

// PublishRecording uploads a recording with gzip compression.
func (c *HTTPClient) PublishRecording(ctx context.Context, title string, rec *models.Recording) (*models.RecordingInfo, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(&PublishRequest{Title: title, Recording: rec}); err != nil {
		gz.Close()
		return nil, fmt.Errorf("encode recording: %w", err)
	}
	gz.Close()

	headers := map[string]string{
		"Content-Type":     "application/json",
		"Content-Encoding": "gzip",
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/recordings", &buf, headers)
	if err != nil {
		return nil, fmt.Errorf("publish recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var info models.RecordingInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}

// DeleteRecording removes a recording the caller owns.
func (c *HTTPClient) DeleteRecording(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/v1/recordings/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return nil
}

// State asks the server to replay a recording up to atMs.
func (c *HTTPClient) State(ctx context.Context, id string, atMs int64) (*PlaybackState, error) {
	path := "/api/v1/recordings/" + url.PathEscape(id) + "/state?at=" + strconv.FormatInt(atMs, 10)
	var state PlaybackState
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &state); err != nil {
		return nil, fmt.Errorf("recording state %s: %w", id, err)
	}
	return &state, nil
}

// UploadVideo streams a video to the server.
func (c *HTTPClient) UploadVideo(ctx context.Context, hash string, r io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{"Content-Type": contentType}

	resp, err := c.do(ctx, http.MethodPost, VideoURL(hash), r, headers)
	if err != nil {
		return fmt.Errorf("upload video %s: %w", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return nil
}

// DownloadVideo streams a video from the server. The caller closes the reader.
func (c *HTTPClient) DownloadVideo(ctx context.Context, hash string) (io.ReadCloser, string, error) {
	resp, err := c.do(ctx, http.MethodGet, VideoURL(hash), nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("download video %s: %w", hash, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, "", decodeError(resp)
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// RemoteError is a non-2xx reply from the server, decoded from its JSON
// error body when there is one.
type RemoteError struct {
	Code    string
	Message string
	Status  int
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	re := &RemoteError{
		Code:       "unknown",
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		Status:     resp.StatusCode,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		re.Code, re.Message = body.Error, body.Message
	}
	return re
}

// retryAfter accepts the delay-seconds form of the header only.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
