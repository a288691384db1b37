// Package filter evaluates job records against the user's preference rules.
// Rule order is significant and fixed: every exclude is checked before any
// include, so an exclusion always wins, and the first failing rule
// short-circuits with its reason.
package filter

import (
	"fmt"
	"strings"

	"github.com/subwatch/subwatch/internal/model"
)

// Rules is the user's ordered preference rule set. It is stateless:
// evaluated per job, nothing persisted. Empty lists pass everything.
type Rules struct {
	ExcludeTitles        []string // case-insensitive title substrings
	ExcludeLocationNames []string // case-insensitive location name substrings
	ExcludeLocationIDs   []string // exact match
	AllowLongTerm        bool
	AllowShortTerm       bool
	IncludeTitles        []string // if set, at least one must match
	IncludeLocationNames []string
	IncludeLocationIDs   []string
	IncludeScheduleKinds []string
	MultiDayOnly         bool
	MinDays              int // 0 = no minimum
	MaxDays              int // 0 = no maximum
}

// Validate reports malformed rules as *model.FilterConfigError. It runs at
// configuration load so a bad rule set can never surface mid-cycle.
func (r Rules) Validate() error {
	if r.MinDays < 0 {
		return &model.FilterConfigError{Field: "min_days", Reason: "must not be negative"}
	}
	if r.MaxDays < 0 {
		return &model.FilterConfigError{Field: "max_days", Reason: "must not be negative"}
	}
	if r.MaxDays > 0 && r.MinDays > r.MaxDays {
		return &model.FilterConfigError{
			Field:  "min_days",
			Reason: fmt.Sprintf("exceeds max_days (%d > %d)", r.MinDays, r.MaxDays),
		}
	}
	if !r.AllowLongTerm && !r.AllowShortTerm {
		return &model.FilterConfigError{
			Field:  "allow_long_term",
			Reason: "long-term and short-term jobs are both excluded; nothing can pass",
		}
	}
	return nil
}

// Verdict is the outcome of evaluating one job: pass, or reject with the
// reason from the first failing rule.
type Verdict struct {
	OK     bool
	Reason string
}

// Rejection pairs a rejected job with its first failing rule's reason.
type Rejection struct {
	Job    model.JobRecord
	Reason string
}

// Filter evaluates jobs against a validated rule set.
type Filter struct {
	rules Rules
}

// New creates a filter, validating the rules first.
func New(rules Rules) (*Filter, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Filter{rules: rules}, nil
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Evaluate runs the ordered rule set against job. A job with no configured
// rules always passes.
func (f *Filter) Evaluate(job model.JobRecord) Verdict {
	r := f.rules
	title := strings.ToLower(job.Title)
	locName := strings.ToLower(job.LocationName)

	// 1. Exclude by title substring.
	for _, kw := range r.ExcludeTitles {
		if strings.Contains(title, strings.ToLower(kw)) {
			return reject(fmt.Sprintf("title matches excluded keyword %q", kw))
		}
	}

	// 2. Exclude by location name substring.
	for _, kw := range r.ExcludeLocationNames {
		if strings.Contains(locName, strings.ToLower(kw)) {
			return reject(fmt.Sprintf("location matches excluded name %q", kw))
		}
	}

	// 3. Exclude by location identifier, exact.
	for _, id := range r.ExcludeLocationIDs {
		if job.LocationID != "" && job.LocationID == id {
			return reject(fmt.Sprintf("location id %s is excluded", id))
		}
	}

	// 4. Long/short-term inclusion flags.
	if job.LongTerm && !r.AllowLongTerm {
		return reject("long-term jobs are excluded")
	}
	if !job.LongTerm && !r.AllowShortTerm {
		return reject("short-term jobs are excluded")
	}

	// 5. Include by title: if any are configured, at least one must match.
	if len(r.IncludeTitles) > 0 && !anySubstring(title, r.IncludeTitles) {
		return reject("title matches no included keyword")
	}

	// 6. Include by location name.
	if len(r.IncludeLocationNames) > 0 && !anySubstring(locName, r.IncludeLocationNames) {
		return reject("location matches no included name")
	}

	// 7. Include by location identifier.
	if len(r.IncludeLocationIDs) > 0 && !contains(r.IncludeLocationIDs, job.LocationID) {
		return reject("location id is not in the included set")
	}

	// 8. Include by schedule kind.
	if len(r.IncludeScheduleKinds) > 0 && !containsFold(r.IncludeScheduleKinds, job.ScheduleKind) {
		return reject(fmt.Sprintf("schedule kind %q is not included", job.ScheduleKind))
	}

	days := job.DurationDays()

	// 9. Multi-day-only constraint.
	if r.MultiDayOnly && days < 2 {
		return reject("single-day jobs are excluded")
	}

	// 10-11. Duration bounds, inclusive of both endpoints.
	if r.MinDays > 0 && days < r.MinDays {
		return reject(fmt.Sprintf("duration %d days is below minimum %d", days, r.MinDays))
	}
	if r.MaxDays > 0 && days > r.MaxDays {
		return reject(fmt.Sprintf("duration %d days exceeds maximum %d", days, r.MaxDays))
	}

	return Verdict{OK: true}
}

// EvaluateAll partitions jobs into passed and rejected, preserving input
// order within each partition.
func (f *Filter) EvaluateAll(jobs []model.JobRecord) ([]model.JobRecord, []Rejection) {
	var passed []model.JobRecord
	var rejected []Rejection
	for _, job := range jobs {
		if v := f.Evaluate(job); v.OK {
			passed = append(passed, job)
		} else {
			rejected = append(rejected, Rejection{Job: job, Reason: v.Reason})
		}
	}
	return passed, rejected
}

func anySubstring(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
