package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// fakeSourceAdapter returns a fixed bundle and records whether
// FetchArticle was ever invoked, keyed by title.
type fakeSourceAdapter struct {
	bundle        RawBundle
	fetchedTitles map[string]bool
}

func (a *fakeSourceAdapter) Name() string { return "fake" }
func (a *fakeSourceAdapter) Fetch(ctx context.Context) (RawBundle, []error) {
	return a.bundle, nil
}
func (a *fakeSourceAdapter) Transform(bundle RawBundle) domain.CrawlerOutput {
	out := domain.NewCrawlerOutput("fake", time.Time{})
	for _, item := range bundle.Items {
		title, _ := item.Data["title"].(string)
		out.Events = append(out.Events, domain.EventRecord{Title: title})
	}
	return out
}
func (a *fakeSourceAdapter) FetchArticle(ctx context.Context, item *RawItem) error {
	if a.fetchedTitles == nil {
		a.fetchedTitles = map[string]bool{}
	}
	title, _ := item.Data["title"].(string)
	a.fetchedTitles[title] = true
	return nil
}

// TestRunSkipsArticleFetchForKnownTitles mirrors spec.md §8's boundary
// behavior: a news item whose title is in existingTitles must never
// trigger an article fetch.
func TestRunSkipsArticleFetchForKnownTitles(t *testing.T) {
	adapter := &fakeSourceAdapter{
		bundle: RawBundle{Items: []RawItem{
			{Type: "news", Data: map[string]any{"title": "Already seen headline"}},
			{Type: "news", Data: map[string]any{"title": "Brand new headline"}},
		}},
	}
	driver := NewDriver(adapter, time.Millisecond, zerolog.Nop())

	existing := map[string]bool{"Already seen headline": true}
	out := driver.Run(context.Background(), existing)

	if adapter.fetchedTitles["Already seen headline"] {
		t.Error("article fetch must not be triggered for a title already in existingTitles")
	}
	if !adapter.fetchedTitles["Brand new headline"] {
		t.Error("expected the new headline's article to be fetched")
	}
	if len(out.Events) != 1 {
		t.Errorf("Events = %d, want 1 (the known title is filtered before Transform)", len(out.Events))
	}
	if got := out.Stats["titles_skipped_dedup"]; got != 1 {
		t.Errorf("titles_skipped_dedup = %v, want 1", got)
	}
}
