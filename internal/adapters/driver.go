package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// Driver supplies the default Run operation: Fetch homepage/index
// items, filter by existingTitles, fetch full bodies for the rest, then
// Transform (spec.md §4.2).
type Driver struct {
	Adapter     SourceAdapter
	Limiter     *RateLimiter
	Log         zerolog.Logger
	MaxArticles int
}

// NewDriver wraps an adapter with the shared Run semantics.
func NewDriver(adapter SourceAdapter, minInterval time.Duration, log zerolog.Logger) *Driver {
	return &Driver{
		Adapter:     adapter,
		Limiter:     NewRateLimiter(minInterval),
		Log:         log.With().Str("adapter", adapter.Name()).Logger(),
		MaxArticles: 0, // 0 = unbounded
	}
}

// Run executes one full adapter pass: fetch, title-dedup filter,
// article enrichment, transform. Existing-title filtering means a
// title found in existingTitles never triggers an HTTP GET to its
// article URL (spec.md §8 boundary behavior).
func (d *Driver) Run(ctx context.Context, existingTitles map[string]bool) domain.CrawlerOutput {
	start := time.Now()
	bundle, fetchErrs := d.Adapter.Fetch(ctx)

	filtered := make([]RawItem, 0, len(bundle.Items))
	skipped := 0
	for _, item := range bundle.Items {
		if item.Type == "news" || item.Type == "press_release" || item.Type == "circular" {
			if title, ok := item.Data["title"].(string); ok && existingTitles[title] {
				skipped++
				continue
			}
		}
		filtered = append(filtered, item)
	}
	if d.MaxArticles > 0 && len(filtered) > d.MaxArticles {
		filtered = filtered[:d.MaxArticles]
	}

	fetcher, enrichable := d.Adapter.(ArticleFetcher)
	if enrichable {
		for i := range filtered {
			if filtered[i].Type != "news" {
				continue
			}
			d.Limiter.Wait(ctx)
			if err := fetcher.FetchArticle(ctx, &filtered[i]); err != nil {
				d.Log.Warn().Err(err).Msg("article enrichment failed, continuing with summary only")
				fetchErrs = append(fetchErrs, err)
			}
		}
	}

	output := d.Adapter.Transform(RawBundle{Items: filtered})
	output.CrawledAt = start
	if output.Stats == nil {
		output.Stats = make(map[string]any)
	}
	output.Stats["titles_skipped_dedup"] = skipped
	output.Stats["duration_ms"] = time.Since(start).Milliseconds()
	if len(fetchErrs) > 0 {
		msgs := make([]string, 0, len(fetchErrs))
		for _, e := range fetchErrs {
			msgs = append(msgs, e.Error())
		}
		output.Stats["fetch_errors"] = msgs
	}

	return output
}
