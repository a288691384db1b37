package model

import (
	"context"
	"encoding/json"
	"time"
)

// JobKind selects one of the two portal job collections. The two collections
// are cached under disjoint keys and are never merged.
type JobKind string

const (
	// KindScheduled is the set of jobs the user already holds.
	KindScheduled JobKind = "scheduled"
	// KindAvailable is the set of open jobs offered today or later.
	KindAvailable JobKind = "available"
)

// JobRecord is the canonical normalized shape of a portal job posting.
// Heterogeneous source payloads (bare arrays, paginated envelopes, differing
// field names) are all reduced to this; unrecognized source fields are kept
// in Raw for downstream consumers.
type JobRecord struct {
	ID           string
	Title        string
	StartDate    time.Time
	EndDate      time.Time
	TimeOfDay    string // "Full Day", "AM", "PM", empty if unknown
	LocationID   string // empty if the source did not provide one
	LocationName string
	ScheduleKind string // portal schedule/position category, empty if unknown
	LongTerm     bool
	Raw          map[string]any // source fields not covered by the canonical subset
}

// DurationDays returns the inclusive day count of the job's date range:
// start == end is 1 day. Returns 0 if either endpoint is unset.
func (j JobRecord) DurationDays() int {
	if j.StartDate.IsZero() || j.EndDate.IsZero() {
		return 0
	}
	start := truncateToDay(j.StartDate)
	end := truncateToDay(j.EndDate)
	return int(end.Sub(start).Hours()/24) + 1
}

// HasDateRange reports whether both endpoints of the range are set.
func (j JobRecord) HasDateRange() bool {
	return !j.StartDate.IsZero() && !j.EndDate.IsZero()
}

// Overlaps reports closed-interval date overlap with other, including
// single-point touches. Both records must have a parseable range.
func (j JobRecord) Overlaps(other JobRecord) bool {
	if !j.HasDateRange() || !other.HasDateRange() {
		return false
	}
	s1, e1 := truncateToDay(j.StartDate), truncateToDay(j.EndDate)
	s2, e2 := truncateToDay(other.StartDate), truncateToDay(other.EndDate)
	return !s1.After(e2) && !s2.After(e1)
}

// truncateToDay reduces an instant to its calendar day, anchored in UTC so
// that the same calendar day compares equal across source time zones (parsed
// dates land at UTC midnight, fabricated ones at local midnight).
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FetchResult is a per-kind job collection plus its provenance.
type FetchResult struct {
	Kind      JobKind
	Records   []JobRecord
	FromCache bool
}

// ApplyStatus is the outcome class of a single application request.
type ApplyStatus string

const (
	ApplySuccess ApplyStatus = "success"
	ApplyFailed  ApplyStatus = "failed"
	ApplySkipped ApplyStatus = "skipped"
)

// ApplyOutcome is the result of dispatching one application request.
type ApplyOutcome struct {
	Job     JobRecord
	Status  ApplyStatus
	Message string
}

// CredentialExchanger performs the expensive portal login and returns a fresh
// session bundle. Implementations must be safe to call from one goroutine at
// a time; the session manager guarantees it never calls Login concurrently.
type CredentialExchanger interface {
	Login(ctx context.Context) (*SessionBundle, error)
}

// JobSource fetches the raw payload for one job kind. The payload shape is
// one of: a bare array, {content: [...]}, or {jobs: [...]}; normalization is
// the fetcher's concern.
type JobSource interface {
	Fetch(ctx context.Context, kind JobKind, bundle *SessionBundle) (json.RawMessage, error)
}

// Applier submits an acceptance request for a single job. In dry-run mode it
// reports the intended outcome without the live call.
type Applier interface {
	Apply(ctx context.Context, job JobRecord, bundle *SessionBundle, dryRun bool) (ApplyOutcome, error)
}

// Notifier surfaces cycle results and operational alerts to the user.
type Notifier interface {
	NotifyOpportunities(jobs []JobRecord) error
	NotifyOutcomes(outcomes []ApplyOutcome) error
	NotifyAuthFailure(err error) error
}

// SessionStore is the side-channel persistence for the session bundle so a
// restarted process can resume without re-authenticating. Read-after-write
// consistency within one process is required.
type SessionStore interface {
	Load() (*SessionBundle, bool, error)
	Save(bundle *SessionBundle) error
	Clear() error
}
