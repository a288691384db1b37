package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends cycle alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NotifyOpportunities sends each opportunity as a separate Slack message.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) NotifyOpportunities(jobs []model.JobRecord) error {
	if len(jobs) == 0 {
		return nil
	}

	failures := 0
	for i, j := range jobs {
		if i > 0 {
			time.Sleep(500 * time.Millisecond)
		}

		if err := s.send(opportunityPayload(j)); err != nil {
			s.logger.Error("slack notification failed", "id", j.ID, "title", j.Title, "error", err)
			failures++
		}
	}

	sent := len(jobs) - failures
	if failures == len(jobs) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", sent, "failed", failures)
	return nil
}

// NotifyOutcomes sends one summary message for the application batch.
func (s *SlackNotifier) NotifyOutcomes(outcomes []model.ApplyOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return s.send(outcomePayload(outcomes))
}

// NotifyAuthFailure sends a single operator alert.
func (s *SlackNotifier) NotifyAuthFailure(err error) error {
	payload := slackPayload{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "⚠️ subwatch cannot sign in"},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "Repeated login failures against the portal. Latest error:\n```" + err.Error() + "```"},
		},
	}}
	return s.send(payload)
}

// send posts a payload, retrying once after a 429.
func (s *SlackNotifier) send(payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		secs, _ := strconv.Atoi(retryAfter)
		if secs <= 0 {
			secs = 1
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		time.Sleep(time.Duration(secs) * time.Second)

		resp2, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func opportunityPayload(j model.JobRecord) slackPayload {
	dates := j.StartDate.Format("Mon Jan 2")
	if !j.EndDate.Equal(j.StartDate) {
		dates += " – " + j.EndDate.Format("Mon Jan 2")
	}
	if j.TimeOfDay != "" {
		dates += " (" + j.TimeOfDay + ")"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "📚 " + j.Title},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Location:*\n" + j.LocationName},
				{Type: "mrkdwn", Text: "*Dates:*\n" + dates},
			},
		},
	}
	if j.LongTerm {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("Long-term assignment, %d days", j.DurationDays())},
		})
	}
	return slackPayload{Blocks: blocks}
}

func outcomePayload(outcomes []model.ApplyOutcome) slackPayload {
	var success, failed, skipped int
	for _, o := range outcomes {
		switch o.Status {
		case model.ApplySuccess:
			success++
		case model.ApplyFailed:
			failed++
		default:
			skipped++
		}
	}

	lines := ""
	for _, o := range outcomes {
		lines += fmt.Sprintf("• %s — %s (%s)\n", o.Job.Title, o.Status, o.Message)
	}

	return slackPayload{Blocks: []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Applications: %d accepted, %d failed, %d skipped", success, failed, skipped)},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: lines},
		},
	}}
}

// SendTestMessage sends a dummy opportunity to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now()
	testJob := model.JobRecord{
		ID:           "test-001",
		Title:        "Test Notification — Integration Verified",
		LocationName: "Everywhere Elementary",
		StartDate:    now,
		EndDate:      now,
		TimeOfDay:    "Full Day",
	}
	return n.NotifyOpportunities([]model.JobRecord{testJob})
}
