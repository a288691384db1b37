package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/compare"
	"github.com/subwatch/subwatch/internal/model"
)

// RecordingSource serves a fixed payload and counts calls.
type RecordingSource struct {
	calls   atomic.Int32
	payload map[model.JobKind]json.RawMessage
	err     error
}

func (s *RecordingSource) Fetch(_ context.Context, kind model.JobKind, _ *model.SessionBundle) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.payload[kind], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBundle() *model.SessionBundle {
	return &model.SessionBundle{Token: "t", ObtainedAt: time.Now(), TTL: time.Hour}
}

func TestFetchCachesWithinTTL(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(`[{"id": "j1", "title": "Substitute Teacher", "startDate": "2024-03-01", "endDate": "2024-03-01"}]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	first, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if first.FromCache {
		t.Error("first Fetch() FromCache = true, want false")
	}

	second, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !second.FromCache {
		t.Error("second Fetch() FromCache = false, want true")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source calls = %d, want exactly 1 within TTL window", got)
	}
	if len(first.Records) != 1 || len(second.Records) != 1 || first.Records[0].ID != second.Records[0].ID {
		t.Errorf("cached fetch returned different records: %v vs %v", first.Records, second.Records)
	}
}

func TestFetchKindsAreDisjoint(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindScheduled: json.RawMessage(`[{"id": "s1", "title": "Held", "startDate": "2024-03-04", "endDate": "2024-03-05"}]`),
		model.KindAvailable: json.RawMessage(`[{"id": "a1", "title": "Open", "startDate": "2024-03-06", "endDate": "2024-03-06"}]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	sched, err := f.Fetch(context.Background(), model.KindScheduled, testBundle())
	if err != nil {
		t.Fatalf("Fetch(scheduled) error = %v", err)
	}
	avail, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch(available) error = %v", err)
	}
	if sched.Records[0].ID != "s1" || avail.Records[0].ID != "a1" {
		t.Errorf("kinds crossed: scheduled=%v available=%v", sched.Records, avail.Records)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls = %d, want 2 (one per kind)", got)
	}
}

func TestFetchErrorDoesNotPopulateCache(t *testing.T) {
	src := &RecordingSource{err: &model.PortalError{StatusCode: 500}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	_, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %T, want *model.FetchError", err)
	}
	if fe.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", fe.StatusCode)
	}

	// The failure must not have cached anything: the next call hits the
	// source again.
	src.err = nil
	src.payload = map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(`[]`),
	}
	if _, err := f.Fetch(context.Background(), model.KindAvailable, testBundle()); err != nil {
		t.Fatalf("Fetch() after recovery error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestFetchTransportErrorHasNoStatus(t *testing.T) {
	src := &RecordingSource{err: errors.New("connection refused")}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	_, err := f.Fetch(context.Background(), model.KindScheduled, testBundle())
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %T, want *model.FetchError", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failures", fe.StatusCode)
	}
}

func TestNormalizePayloadShapes(t *testing.T) {
	record := `{"id": "j1", "title": "Sub", "startDate": "2024-03-01", "endDate": "2024-03-01"}`
	tests := []struct {
		name    string
		payload string
	}{
		{name: "bare array", payload: `[` + record + `]`},
		{name: "paginated envelope", payload: `{"content": [` + record + `], "totalPages": 3}`},
		{name: "jobs envelope", payload: `{"jobs": [` + record + `]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
				model.KindAvailable: json.RawMessage(tt.payload),
			}}
			f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

			res, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(res.Records) != 1 || res.Records[0].ID != "j1" {
				t.Errorf("Records = %v, want one record with id j1", res.Records)
			}
		})
	}
}

func TestNormalizeUnknownShapeIsError(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(`{"results": []}`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	_, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %T, want *model.FetchError for unknown shape", err)
	}
}

func TestNormalizePrefersNestedObjects(t *testing.T) {
	payload := `[{
		"id": 1234,
		"title": "Long Term Sub",
		"startDate": "2024-01-01",
		"schedule": {"startDate": "2024-03-10", "endDate": "2024-03-20", "timeOfDay": "AM", "kind": "halfDay"},
		"building": {"id": "b-9", "name": "Lincoln Elementary"},
		"buildingName": "Wrong Building",
		"isLongTerm": true,
		"payRate": 125.5
	}]`
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(payload),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	res, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	rec := res.Records[0]
	if rec.ID != "1234" {
		t.Errorf("ID = %q, want numeric id coerced to %q", rec.ID, "1234")
	}
	if got := rec.StartDate.Format("2006-01-02"); got != "2024-03-10" {
		t.Errorf("StartDate = %s, want nested schedule value 2024-03-10", got)
	}
	if got := rec.EndDate.Format("2006-01-02"); got != "2024-03-20" {
		t.Errorf("EndDate = %s, want 2024-03-20", got)
	}
	if rec.TimeOfDay != "AM" || rec.ScheduleKind != "halfDay" {
		t.Errorf("TimeOfDay/ScheduleKind = %q/%q, want AM/halfDay", rec.TimeOfDay, rec.ScheduleKind)
	}
	if rec.LocationID != "b-9" || rec.LocationName != "Lincoln Elementary" {
		t.Errorf("Location = %q/%q, want nested building values", rec.LocationID, rec.LocationName)
	}
	if !rec.LongTerm {
		t.Error("LongTerm = false, want true")
	}
	if _, ok := rec.Raw["payRate"]; !ok {
		t.Error("Raw missing payRate passthrough field")
	}
	if _, ok := rec.Raw["title"]; ok {
		t.Error("Raw contains canonical field title, want it consumed")
	}
}

func TestAvailableDefaultsMissingStartToToday(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(`[{"id": "j1", "title": "Sub"}]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())
	fixed := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	res, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	rec := res.Records[0]
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !rec.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want today %v", rec.StartDate, want)
	}
	if !rec.EndDate.Equal(want) {
		t.Errorf("EndDate = %v, want start date %v", rec.EndDate, want)
	}
}

func TestFabricatedDateMatchesParsedSameDay(t *testing.T) {
	// A date-less available job gets "today" from a local-zone clock while
	// scheduled dates parse at UTC midnight; the same calendar day must
	// still register as an overlap.
	est := time.FixedZone("EST", -5*60*60)
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindScheduled: json.RawMessage(`[{"id": "s1", "title": "Held", "buildingId": "b1", "buildingName": "Lincoln", "startDate": "2024-03-01", "endDate": "2024-03-01"}]`),
		model.KindAvailable: json.RawMessage(`[{"id": "a1", "title": "Open", "buildingId": "b1", "buildingName": "Lincoln"}]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())
	f.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, est) }

	sched, err := f.Fetch(context.Background(), model.KindScheduled, testBundle())
	if err != nil {
		t.Fatalf("Fetch(scheduled) error = %v", err)
	}
	avail, err := f.Fetch(context.Background(), model.KindAvailable, testBundle())
	if err != nil {
		t.Fatalf("Fetch(available) error = %v", err)
	}

	if !avail.Records[0].Overlaps(sched.Records[0]) {
		t.Errorf("Overlaps() = false for same calendar day: avail start %v, sched start %v",
			avail.Records[0].StartDate, sched.Records[0].StartDate)
	}

	res := compare.Compare(sched.Records, avail.Records)
	if len(res.Conflicts) != 1 || len(res.Opportunities) != 0 {
		t.Errorf("conflicts = %d, opportunities = %d, want 1 conflict and 0 opportunities",
			len(res.Conflicts), len(res.Opportunities))
	}
}

func TestScheduledWithoutDatesIsDropped(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindScheduled: json.RawMessage(`[
			{"id": "no-dates", "title": "Mystery"},
			{"id": "ok", "title": "Held", "startDate": "2024-03-04", "endDate": "2024-03-04"}
		]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	res, err := f.Fetch(context.Background(), model.KindScheduled, testBundle())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].ID != "ok" {
		t.Errorf("Records = %v, want only the dated record (no fabricated dates for scheduled)", res.Records)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &RecordingSource{payload: map[model.JobKind]json.RawMessage{
		model.KindAvailable: json.RawMessage(`[]`),
	}}
	f := NewFetcher(src, time.Hour, time.Hour, discardLogger())

	if _, err := f.Fetch(context.Background(), model.KindAvailable, testBundle()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	f.Invalidate(model.KindAvailable)
	if _, err := f.Fetch(context.Background(), model.KindAvailable, testBundle()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source calls = %d, want 2 after Invalidate", got)
	}
}
