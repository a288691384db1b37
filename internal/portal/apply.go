package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure Dispatcher implements model.Applier.
var _ model.Applier = (*Dispatcher)(nil)

// Dispatcher submits acceptance requests for individual jobs. Each request
// is independent: one failure never rolls back or blocks the others.
type Dispatcher struct {
	client *Client
}

// NewDispatcher creates an application dispatcher over the given client.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// applyResponse is the portal's acceptance endpoint payload.
type applyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Apply submits an acceptance for job. In dry-run mode it reports the
// intended outcome without any network call. A non-2xx response produces a
// failed outcome plus a *model.PortalError so auth expiry stays detectable.
func (d *Dispatcher) Apply(ctx context.Context, job model.JobRecord, bundle *model.SessionBundle, dryRun bool) (model.ApplyOutcome, error) {
	if dryRun {
		return model.ApplyOutcome{
			Job:     job,
			Status:  model.ApplySkipped,
			Message: "dry run: acceptance not submitted",
		}, nil
	}

	payload, err := json.Marshal(map[string]string{"jobId": job.ID})
	if err != nil {
		return model.ApplyOutcome{Job: job, Status: model.ApplyFailed, Message: err.Error()}, err
	}

	url := fmt.Sprintf("%s/api/jobs/%s/accept", d.client.baseURL, job.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return model.ApplyOutcome{Job: job, Status: model.ApplyFailed, Message: err.Error()}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bundle.Token)
	if bundle.Cookie != "" {
		req.Header.Set("Cookie", bundle.Cookie)
	}

	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		return model.ApplyOutcome{Job: job, Status: model.ApplyFailed, Message: err.Error()}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		perr := &model.PortalError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("apply for job %s: unexpected status %d", job.ID, resp.StatusCode),
		}
		return model.ApplyOutcome{
			Job:     job,
			Status:  model.ApplyFailed,
			Message: fmt.Sprintf("portal returned %d", resp.StatusCode),
		}, perr
	}

	var ar applyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		// The request went through; a malformed body is still a success.
		return model.ApplyOutcome{Job: job, Status: model.ApplySuccess, Message: "accepted"}, nil
	}

	status := model.ApplySuccess
	if ar.Status == "failed" {
		status = model.ApplyFailed
	}
	msg := ar.Message
	if msg == "" {
		msg = "accepted"
	}
	return model.ApplyOutcome{Job: job, Status: status, Message: msg}, nil
}
