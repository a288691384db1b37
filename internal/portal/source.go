package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure Source implements model.JobSource.
var _ model.JobSource = (*Source)(nil)

// Source fetches raw job payloads from the portal. It does not interpret
// them: the three payload shapes the portal serves (bare array, paginated
// envelope, jobs envelope) are the fetcher's normalization concern.
type Source struct {
	client *Client
}

// NewSource creates a job source over the given portal client.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

func (s *Source) endpoint(kind model.JobKind) string {
	switch kind {
	case model.KindScheduled:
		return s.client.baseURL + "/api/jobs/scheduled"
	default:
		return s.client.baseURL + "/api/jobs/available"
	}
}

// Fetch retrieves the raw payload for one job kind using the bundle's token
// and cookie. Non-2xx responses are reported as *model.PortalError so the
// cycle can recognize auth expiry and the retry layer can classify the rest.
func (s *Source) Fetch(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(kind), nil)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", kind, err)
	}
	req.Header.Set("Authorization", "Bearer "+bundle.Token)
	req.Header.Set("Accept", "application/json")
	if bundle.Cookie != "" {
		req.Header.Set("Cookie", bundle.Cookie)
	}
	if bundle.Identity != "" {
		req.Header.Set("X-User-Id", bundle.Identity)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.PortalError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s fetch: unexpected status %d", kind, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: reading body: %w", kind, err)
	}
	return json.RawMessage(body), nil
}
