// Package adapters defines the shared SourceAdapter contract and a
// generic driver, mirroring the teacher's scheduler.Job
// interface-plus-default-implementation idiom (no inheritance needed).
package adapters

import (
	"context"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// RawItem is one upstream item tagged with its kind before Transform
// maps it onto the canonical model.
type RawItem struct {
	Type string
	Data map[string]any
}

// RawBundle is everything one Fetch call discovered.
type RawBundle struct {
	Items []RawItem
}

// SourceAdapter is implemented once per upstream source. Fetch and
// Transform are pure data-shape operations; Run (provided by Driver)
// composes them with content extraction and title dedup.
type SourceAdapter interface {
	// Name identifies the adapter for logging and rate-limit scoping.
	Name() string
	// Fetch parses upstream pages/APIs into raw, source-shaped items.
	// Partial failures (a single page 404s) are recorded in errs but do
	// not abort the bundle.
	Fetch(ctx context.Context) (RawBundle, []error)
	// Transform is pure and deterministic: identical input always
	// yields identical output. Unknown item types are skipped and
	// counted in the output's Stats, never fatal.
	Transform(bundle RawBundle) domain.CrawlerOutput
}

// ArticleFetcher is implemented by adapters whose news items need full
// article bodies fetched before Transform runs.
type ArticleFetcher interface {
	// FetchArticle augments a raw news item in place with content and
	// attachments fetched via the content extractor.
	FetchArticle(ctx context.Context, item *RawItem) error
}

// Name delegates to the wrapped adapter so a *Driver satisfies any
// interface requiring only Name and Run (e.g. orchestrator.Crawler).
func (d *Driver) Name() string { return d.Adapter.Name() }
