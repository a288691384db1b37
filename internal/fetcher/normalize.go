package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// The portal serves three payload shapes for the same data: a bare array,
// a paginated {content: [...]} envelope, and a {jobs: [...]} envelope.
type envelope struct {
	Content []json.RawMessage `json:"content"`
	Jobs    []json.RawMessage `json:"jobs"`
}

// extractRecords reduces any of the accepted payload shapes to the raw
// per-job objects. An object with neither envelope key is a normalization
// error, not an empty result.
func extractRecords(payload json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decoding job array: %w", err)
		}
		return records, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decoding job envelope: %w", err)
	}
	switch {
	case env.Content != nil:
		return env.Content, nil
	case env.Jobs != nil:
		return env.Jobs, nil
	default:
		return nil, fmt.Errorf("unrecognized payload shape: no content or jobs field")
	}
}

// canonicalFields are the source field names consumed into JobRecord's
// canonical subset; everything else passes through in Raw.
var canonicalFields = map[string]bool{
	"id": true, "jobId": true, "confirmationNumber": true,
	"title": true, "position": true, "positionTitle": true,
	"schedule": true, "startDate": true, "endDate": true, "timeOfDay": true,
	"building": true, "location": true,
	"buildingId": true, "buildingName": true, "locationName": true,
	"scheduleType": true, "isLongTerm": true, "longTerm": true,
}

// normalizeRecord reduces one raw portal object to the canonical JobRecord.
// Structured fields (nested schedule/building objects) win over their flat
// counterparts. today supplies the fabricated start date for available jobs
// whose source omitted one; scheduled records never fabricate dates.
func normalizeRecord(raw json.RawMessage, kind model.JobKind, today time.Time) (model.JobRecord, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.JobRecord{}, fmt.Errorf("decoding job record: %w", err)
	}

	rec := model.JobRecord{
		ID:    stringField(fields, "id", "jobId", "confirmationNumber"),
		Title: stringField(fields, "title", "position", "positionTitle"),
	}
	if rec.ID == "" {
		return model.JobRecord{}, fmt.Errorf("job record carries no id")
	}

	// Schedule: nested object preferred over flat fields.
	if sched, ok := fields["schedule"].(map[string]any); ok {
		rec.StartDate = dateField(sched, "startDate", "start")
		rec.EndDate = dateField(sched, "endDate", "end")
		rec.TimeOfDay = stringField(sched, "timeOfDay", "dayPart")
		rec.ScheduleKind = stringField(sched, "kind", "type")
	}
	if rec.StartDate.IsZero() {
		rec.StartDate = dateField(fields, "startDate")
	}
	if rec.EndDate.IsZero() {
		rec.EndDate = dateField(fields, "endDate")
	}
	if rec.TimeOfDay == "" {
		rec.TimeOfDay = stringField(fields, "timeOfDay")
	}
	if rec.ScheduleKind == "" {
		rec.ScheduleKind = stringField(fields, "scheduleType")
	}

	// Building/location: nested object preferred over flat fields.
	loc, ok := fields["building"].(map[string]any)
	if !ok {
		loc, ok = fields["location"].(map[string]any)
	}
	if ok {
		rec.LocationID = stringField(loc, "id", "buildingId")
		rec.LocationName = stringField(loc, "name", "buildingName")
	}
	if rec.LocationID == "" {
		rec.LocationID = stringField(fields, "buildingId")
	}
	if rec.LocationName == "" {
		rec.LocationName = stringField(fields, "buildingName", "locationName")
		if rec.LocationName == "" {
			if s, ok := fields["location"].(string); ok {
				rec.LocationName = s
			}
		}
	}

	if b, ok := fields["isLongTerm"].(bool); ok {
		rec.LongTerm = b
	} else if b, ok := fields["longTerm"].(bool); ok {
		rec.LongTerm = b
	}

	// Fabricated dates are allowed for available listings only: an open job
	// with no date is offered "today". A scheduled commitment without dates
	// stays zero-valued and the fetcher drops it.
	if kind == model.KindAvailable && rec.StartDate.IsZero() {
		rec.StartDate = today
	}
	if rec.EndDate.IsZero() {
		rec.EndDate = rec.StartDate
	}

	for k, v := range fields {
		if canonicalFields[k] {
			continue
		}
		if rec.Raw == nil {
			rec.Raw = make(map[string]any)
		}
		rec.Raw[k] = v
	}

	return rec, nil
}

func stringField(fields map[string]any, names ...string) string {
	for _, name := range names {
		switch v := fields[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// dateFormats covers the portal's observed date encodings.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

func dateField(fields map[string]any, names ...string) time.Time {
	for _, name := range names {
		s, ok := fields[name].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
