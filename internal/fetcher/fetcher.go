// Package fetcher is the cache-aware retrieval layer: per job kind it either
// serves the unexpired cached collection or performs exactly one source call,
// normalizing the heterogeneous payload into canonical JobRecords.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/subwatch/subwatch/internal/cache"
	"github.com/subwatch/subwatch/internal/model"
)

// Fetcher retrieves one job kind at a time. The two kinds have independent
// TTLs since available listings churn much faster than a user's own
// scheduled commitments.
type Fetcher struct {
	source model.JobSource
	cache  *cache.Cache[model.JobKind, []model.JobRecord]
	ttls   map[model.JobKind]time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewFetcher creates a fetcher with per-kind cache TTLs.
func NewFetcher(source model.JobSource, scheduledTTL, availableTTL time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		cache:  cache.New[model.JobKind, []model.JobRecord](),
		ttls: map[model.JobKind]time.Duration{
			model.KindScheduled: scheduledTTL,
			model.KindAvailable: availableTTL,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Fetch returns the job collection for kind. A cache hit costs no network
// access. On a miss the source is called once; errors are reported as
// *model.FetchError without touching the cache, so a stale-but-unexpired
// prior entry stays authoritative.
func (f *Fetcher) Fetch(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle) (model.FetchResult, error) {
	if records, ok := f.cache.Get(kind); ok {
		return model.FetchResult{Kind: kind, Records: records, FromCache: true}, nil
	}
	if age, ok := f.cache.Age(kind); ok {
		f.logger.Debug("cache entry expired", "kind", kind, "age", age.Round(time.Second).String())
	}

	payload, err := f.source.Fetch(ctx, kind, bundle)
	if err != nil {
		return model.FetchResult{Kind: kind}, classifyFetchError(kind, err)
	}

	records, err := f.normalize(kind, payload)
	if err != nil {
		return model.FetchResult{Kind: kind}, &model.FetchError{Kind: kind, Message: err.Error()}
	}

	f.cache.Put(kind, records, f.ttls[kind])
	return model.FetchResult{Kind: kind, Records: records, FromCache: false}, nil
}

// Invalidate drops the cached collection for kind.
func (f *Fetcher) Invalidate(kind model.JobKind) {
	f.cache.Invalidate(kind)
}

// InvalidateAll drops both cached collections.
func (f *Fetcher) InvalidateAll() {
	f.cache.InvalidateAll()
}

// normalize converts the raw payload into canonical records. Individual
// malformed records are skipped with a warning; scheduled records without a
// parseable date range are dropped rather than given fabricated dates that
// could create phantom conflicts.
func (f *Fetcher) normalize(kind model.JobKind, payload []byte) ([]model.JobRecord, error) {
	raws, err := extractRecords(payload)
	if err != nil {
		return nil, err
	}

	today := truncateToDay(f.now())
	records := make([]model.JobRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := normalizeRecord(raw, kind, today)
		if err != nil {
			f.logger.Warn("skipping malformed job record", "kind", kind, "error", err)
			continue
		}
		if kind == model.KindScheduled && !rec.HasDateRange() {
			f.logger.Warn("skipping scheduled job without dates", "id", rec.ID, "title", rec.Title)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func classifyFetchError(kind model.JobKind, err error) *model.FetchError {
	var pe *model.PortalError
	if errors.As(err, &pe) {
		return &model.FetchError{Kind: kind, StatusCode: pe.StatusCode, Message: pe.Error()}
	}
	return &model.FetchError{Kind: kind, Message: err.Error()}
}

// truncateToDay anchors the local calendar day at UTC midnight, matching how
// parsed date-only fields come out of normalization. Fabricated and parsed
// dates for the same calendar day must compare equal downstream.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
