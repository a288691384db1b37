package notifier

import (
	"log/slog"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes cycle results to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyOpportunities logs each new opportunity with its key fields.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) NotifyOpportunities(jobs []model.JobRecord) error {
	for _, j := range jobs {
		args := []any{
			"id", j.ID,
			"title", j.Title,
			"location", j.LocationName,
			"start", j.StartDate.Format("2006-01-02"),
			"end", j.EndDate.Format("2006-01-02"),
			"days", j.DurationDays(),
		}
		if j.TimeOfDay != "" {
			args = append(args, "time_of_day", j.TimeOfDay)
		}
		n.logger.Info("new opportunity", args...)
	}
	return nil
}

// NotifyOutcomes logs each application outcome.
func (n *LogNotifier) NotifyOutcomes(outcomes []model.ApplyOutcome) error {
	for _, o := range outcomes {
		n.logger.Info("application outcome",
			"id", o.Job.ID,
			"title", o.Job.Title,
			"status", string(o.Status),
			"message", o.Message,
		)
	}
	return nil
}

// NotifyAuthFailure logs a persistent authentication failure.
func (n *LogNotifier) NotifyAuthFailure(err error) error {
	n.logger.Error("persistent authentication failure, check portal credentials", "error", err)
	return nil
}
