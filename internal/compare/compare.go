// Package compare computes the cycle's decision set: which available jobs
// are new opportunities and which collide with the existing schedule.
package compare

import (
	"fmt"
	"strings"

	"github.com/subwatch/subwatch/internal/model"
)

// Conflict pairs an available job with the first scheduled job whose date
// range overlaps it.
type Conflict struct {
	Available model.JobRecord
	Scheduled model.JobRecord
	Reason    string
}

// Summary holds the per-cycle counts.
type Summary struct {
	Scheduled     int
	Available     int
	Opportunities int
	Conflicts     int
	Dropped       int // available jobs with no parseable date range
}

// Result is the outcome of one comparison. It is recomputed fresh every
// cycle and never cached.
type Result struct {
	Opportunities   []model.JobRecord
	Conflicts       []Conflict
	Recommendations []string
	Summary         Summary
}

const (
	reasonSameLocation  = "double-booking risk, same location"
	reasonCrossLocation = "date collision, different locations"
)

// Compare scans each available job against the scheduled set in input order.
// The first scheduled job with a closed-interval date overlap (single-point
// touches included) produces the conflict and halts the scan for that job;
// later overlaps are not reported. An available job without a parseable date
// range is dropped from consideration entirely.
func Compare(scheduled, available []model.JobRecord) Result {
	res := Result{
		Summary: Summary{Scheduled: len(scheduled), Available: len(available)},
	}

	for _, avail := range available {
		if !avail.HasDateRange() {
			res.Summary.Dropped++
			continue
		}

		conflicted := false
		for _, sched := range scheduled {
			if !avail.Overlaps(sched) {
				continue
			}
			reason := reasonCrossLocation
			if sameLocation(avail, sched) {
				reason = reasonSameLocation
			}
			res.Conflicts = append(res.Conflicts, Conflict{
				Available: avail,
				Scheduled: sched,
				Reason:    reason,
			})
			conflicted = true
			break
		}
		if !conflicted {
			res.Opportunities = append(res.Opportunities, avail)
		}
	}

	res.Summary.Opportunities = len(res.Opportunities)
	res.Summary.Conflicts = len(res.Conflicts)
	res.Recommendations = recommend(res.Opportunities)
	return res
}

// sameLocation matches by identifier when both sides have one, falling back
// to a case-insensitive name comparison.
func sameLocation(a, b model.JobRecord) bool {
	if a.LocationID != "" && b.LocationID != "" {
		return a.LocationID == b.LocationID
	}
	return a.LocationName != "" && strings.EqualFold(a.LocationName, b.LocationName)
}

// teachingKeywords drives the subject-match recommendation signal.
var teachingKeywords = []string{"teacher", "math", "science"}

// recommend derives advisory strings from the opportunity set. They feed no
// downstream decision; they summarize three signals: keyword matches,
// long-duration postings, and locations offering more than one job.
func recommend(opportunities []model.JobRecord) []string {
	if len(opportunities) == 0 {
		return nil
	}

	keywordCount := 0
	longCount := 0
	perLocation := make(map[string]int)
	for _, job := range opportunities {
		title := strings.ToLower(job.Title)
		for _, kw := range teachingKeywords {
			if strings.Contains(title, kw) {
				keywordCount++
				break
			}
		}
		if job.DurationDays() > 7 {
			longCount++
		}
		if name := job.LocationName; name != "" {
			perLocation[strings.ToLower(name)]++
		}
	}

	multiLocation := 0
	for _, n := range perLocation {
		if n > 1 {
			multiLocation++
		}
	}

	var recs []string
	if keywordCount > 0 {
		recs = append(recs, fmt.Sprintf("%d opportunities match your teaching subjects", keywordCount))
	}
	if longCount > 0 {
		recs = append(recs, fmt.Sprintf("%d opportunities span more than 7 days", longCount))
	}
	if multiLocation > 0 {
		recs = append(recs, fmt.Sprintf("%d locations have multiple open jobs", multiLocation))
	}
	return recs
}
