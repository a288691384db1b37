// Package portal implements the HTTP collaborators for the substitute portal:
// credential exchange, the raw job source, and application dispatch. Browser
// automation is out of scope; the exchange here is the API-shaped login.
package portal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client bundles the shared pieces of every portal call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a portal client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
