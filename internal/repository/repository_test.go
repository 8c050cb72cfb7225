package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:", database.ProfileStandard, zerolog.Nop())
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("db.Migrate() error = %v", err)
	}
	return db
}

// TestIndicatorHistorySameDayRepublishIsIdempotent mirrors spec.md §8's
// round-trip law: a same-day republish with an identical value creates
// no additional IndicatorHistory row.
func TestIndicatorHistorySameDayRepublishIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	indicators := NewIndicatorRepository(db.Conn(), zerolog.Nop())
	history := NewIndicatorHistoryRepository(db.Conn(), zerolog.Nop())

	if err := indicators.Upsert(ctx, domain.Indicator{
		ID: "usd_vnd_central", DisplayName: "USD/VND", Category: "fx",
		LatestValue: 25067, Source: "sbv", UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	date := time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)
	h1, err := history.AddHistory(ctx, "usd_vnd_central", 25067, date, nil, "sbv")
	if err != nil {
		t.Fatalf("AddHistory() first call error = %v", err)
	}
	if h1 == nil {
		t.Fatal("expected first AddHistory call to insert a row")
	}

	h2, err := history.AddHistory(ctx, "usd_vnd_central", 25067, date, nil, "sbv")
	if err != nil {
		t.Fatalf("AddHistory() repeat call error = %v", err)
	}
	if h2 != nil {
		t.Error("expected repeat AddHistory with identical (id, date, value) to be a no-op")
	}

	rows, err := history.GetHistory(ctx, "usd_vnd_central", 30, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("history row count = %d, want 1 (no-op republish must not append)", len(rows))
	}
}

// TestIndicatorHistoryComputesChangeAgainstPrior verifies change/
// change_pct are derived from the most recent prior row.
func TestIndicatorHistoryComputesChangeAgainstPrior(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	indicators := NewIndicatorRepository(db.Conn(), zerolog.Nop())
	history := NewIndicatorHistoryRepository(db.Conn(), zerolog.Nop())

	_ = indicators.Upsert(ctx, domain.Indicator{
		ID: "cpi_mom", DisplayName: "CPI MoM", Category: "cpi", LatestValue: 0.2, Source: "sbv", UpdatedAt: time.Now(),
	})

	day1 := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)

	if _, err := history.AddHistory(ctx, "cpi_mom", 0.2, day1, nil, "sbv"); err != nil {
		t.Fatalf("AddHistory() day1 error = %v", err)
	}
	h2, err := history.AddHistory(ctx, "cpi_mom", 0.3, day2, nil, "sbv")
	if err != nil {
		t.Fatalf("AddHistory() day2 error = %v", err)
	}
	if h2 == nil {
		t.Fatal("expected day2 to insert a new row (different value)")
	}
	if h2.PreviousValue != 0.2 {
		t.Errorf("PreviousValue = %v, want 0.2", h2.PreviousValue)
	}
	wantChange := 0.3 - 0.2
	if diff := h2.Change - wantChange; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Change = %v, want %v", h2.Change, wantChange)
	}
}

// TestEventHashUniquenessEnforcesDedup mirrors spec.md §8's invariant:
// SELECT COUNT(DISTINCT hash) = COUNT(*) on events with a non-null
// hash — a second Create with the same hash must fail, and FindByHash
// must report the first as already existing.
func TestEventHashUniquenessEnforcesDedup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	events := NewEventRepository(db.Conn(), zerolog.Nop())

	ev := domain.Event{
		ID: "ev-1", Hash: "abc123", Type: domain.EventNews, Title: "SBV raises rate",
		Source: "sbv", SourceURL: "https://sbv.gov.vn/x", PublishedAt: time.Now(), RunDate: time.Now(),
		IsMarketRelevant: true, DisplaySection: domain.SectionOtherNews,
	}
	if err := events.Create(ctx, ev); err != nil {
		t.Fatalf("Create() first insert error = %v", err)
	}

	existing, err := events.FindByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("FindByHash() error = %v", err)
	}
	if existing == nil {
		t.Fatal("expected FindByHash to find the just-created event")
	}

	dup := ev
	dup.ID = "ev-2"
	if err := events.Create(ctx, dup); err == nil {
		t.Error("expected Create() with a duplicate hash to fail the unique constraint")
	}
}

// TestGetActiveEventsExcludesOldEvents mirrors the 30-day active
// window the ranker relies on.
func TestGetActiveEventsExcludesOldEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	events := NewEventRepository(db.Conn(), zerolog.Nop())

	recent := domain.Event{
		ID: "ev-recent", Hash: "hash-recent", Type: domain.EventNews, Title: "fresh",
		Source: "sbv", SourceURL: "https://sbv.gov.vn/fresh", PublishedAt: time.Now(), RunDate: time.Now(),
		IsMarketRelevant: true, DisplaySection: domain.SectionOtherNews,
	}
	old := domain.Event{
		ID: "ev-old", Hash: "hash-old", Type: domain.EventNews, Title: "stale",
		Source: "sbv", SourceURL: "https://sbv.gov.vn/stale",
		PublishedAt: time.Now().AddDate(0, 0, -60), RunDate: time.Now().AddDate(0, 0, -60),
		IsMarketRelevant: true, DisplaySection: domain.SectionArchive,
	}
	if err := events.Create(ctx, recent); err != nil {
		t.Fatalf("Create(recent) error = %v", err)
	}
	if err := events.Create(ctx, old); err != nil {
		t.Fatalf("Create(old) error = %v", err)
	}

	active, err := events.GetActiveEvents(ctx, 30)
	if err != nil {
		t.Fatalf("GetActiveEvents() error = %v", err)
	}
	if len(active) != 1 || active[0].ID != "ev-recent" {
		t.Errorf("GetActiveEvents(30) = %+v, want only ev-recent", active)
	}
}

// TestCalendarInsertIsIdempotentOnDuplicateKey mirrors the unique
// (date, event_name, country) constraint.
func TestCalendarInsertIsIdempotentOnDuplicateKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cal := NewCalendarRepository(db.Conn(), zerolog.Nop())

	rec := domain.CalendarRecord{EventName: "CPI Release", Country: "VN", Date: "2025-10-21"}
	inserted, err := cal.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert() first call error = %v", err)
	}
	if !inserted {
		t.Error("expected the first Insert to report inserted=true")
	}

	inserted2, err := cal.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert() duplicate call error = %v", err)
	}
	if inserted2 {
		t.Error("expected the duplicate Insert to report inserted=false")
	}
}
