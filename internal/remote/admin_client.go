package remote

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// AdminClient calls the server's /admin endpoints. It presents the admin
// token where HTTPClient presents a session token.
type AdminClient struct {
	c *HTTPClient
}

// NewAdminClient warns on stderr when the token would travel over plain HTTP.
func NewAdminClient(baseURL, token string) *AdminClient {
	if strings.HasPrefix(baseURL, "http://") {
		fmt.Fprintln(os.Stderr, "warning: sending admin token over unencrypted HTTP connection")
	}
	c := NewHTTPClient(baseURL, token)
	c.httpClient.Timeout = 30 * time.Second
	return &AdminClient{c: c}
}

// GarbageCollect removes stored videos no published recording references.
func (a *AdminClient) GarbageCollect(ctx context.Context) (*GCResult, error) {
	res := new(GCResult)
	if err := a.c.doJSON(ctx, http.MethodPost, "/admin/gc", nil, res); err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	return res, nil
}

// SweepSessions purges expired login sessions.
func (a *AdminClient) SweepSessions(ctx context.Context) (*SweepResult, error) {
	res := new(SweepResult)
	if err := a.c.doJSON(ctx, http.MethodPost, "/admin/sessions/sweep", nil, res); err != nil {
		return nil, fmt.Errorf("sweep sessions: %w", err)
	}
	return res, nil
}
