package ranker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

func testConfig() Config {
	return Config{
		ThresholdKeyEvents: 70,
		ThresholdOtherNews: 40,
		MaxKeyEvents:       2,
		MaxEventAgeDays:    30,
	}
}

func TestDecayFactorSchedule(t *testing.T) {
	cases := map[int]float64{
		0:  1.00,
		1:  1.00,
		2:  0.85,
		3:  0.85,
		4:  0.60,
		7:  0.60,
		8:  0.30,
		14: 0.30,
		15: 0.10,
		30: 0.10,
		31: 0.00,
		90: 0.00,
	}
	for age, want := range cases {
		if got := DecayFactor(age); got != want {
			t.Errorf("DecayFactor(%d) = %v, want %v", age, got, want)
		}
	}
}

func TestDecayFactorClampsNegativeAge(t *testing.T) {
	if got := DecayFactor(-5); got != 1.00 {
		t.Errorf("DecayFactor(-5) = %v, want 1.00", got)
	}
}

func TestBoostFactorComposesMultiplicatively(t *testing.T) {
	ev := domain.Event{
		IsFollowUp:       true,
		Category:         "monetary_policy",
		LinkedIndicators: []string{"usd_vnd", "interbank_on"},
	}
	hot := map[string]bool{"monetary_policy": true}
	got := BoostFactor(ev, "", hot)
	want := 1.5 * 1.2 * 1.1
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("BoostFactor = %v, want %v", got, want)
	}
}

func TestBoostFactorDefaultIsOne(t *testing.T) {
	ev := domain.Event{Category: "misc"}
	if got := BoostFactor(ev, "", nil); got != 1.0 {
		t.Errorf("BoostFactor = %v, want 1.0", got)
	}
}

func TestBoostFactorSkipsInternalCategory(t *testing.T) {
	ev := domain.Event{Category: "internal"}
	hot := map[string]bool{"internal": true}
	if got := BoostFactor(ev, "", hot); got != 1.0 {
		t.Errorf("BoostFactor = %v, want 1.0 (internal category never boosts)", got)
	}
}

func TestRankEventIsDeterministic(t *testing.T) {
	r := New(testConfig(), zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	ev := domain.Event{
		ID:               "e1",
		IsMarketRelevant: true,
		BaseScore:        80,
		PublishedAt:      today.AddDate(0, 0, -2),
		LinkedIndicators: []string{"usd_vnd"},
	}

	first := r.RankEvent(ev, today, "", nil)
	second := r.RankEvent(ev, today, "", nil)
	if first.CurrentScore != second.CurrentScore || first.DisplaySection != second.DisplaySection {
		t.Fatalf("RankEvent is not idempotent: %+v vs %+v", first, second)
	}
	if first.CurrentScore != 68.00 { // 80 * 0.85 decay
		t.Errorf("CurrentScore = %v, want 68.00", first.CurrentScore)
	}
	if first.DisplaySection != domain.SectionOtherNews {
		t.Errorf("DisplaySection = %v, want other_news", first.DisplaySection)
	}
}

func TestRankEventArchivesStaleOrIrrelevant(t *testing.T) {
	r := New(testConfig(), zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	stale := domain.Event{ID: "old", IsMarketRelevant: true, BaseScore: 95, PublishedAt: today.AddDate(0, 0, -60)}
	ranked := r.RankEvent(stale, today, "", nil)
	if ranked.DisplaySection != domain.SectionArchive {
		t.Errorf("stale event DisplaySection = %v, want archive", ranked.DisplaySection)
	}

	irrelevant := domain.Event{ID: "irr", IsMarketRelevant: false, BaseScore: 95, PublishedAt: today}
	ranked = r.RankEvent(irrelevant, today, "", nil)
	if ranked.DisplaySection != domain.SectionArchive {
		t.Errorf("irrelevant event DisplaySection = %v, want archive", ranked.DisplaySection)
	}
}

func TestRankAllEnforcesMaxKeyEventsCapWithTieBreak(t *testing.T) {
	cfg := testConfig() // MaxKeyEvents: 2
	r := New(cfg, zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	mk := func(id string, score float64, published time.Time) domain.Event {
		return domain.Event{
			ID: id, IsMarketRelevant: true, BaseScore: score, PublishedAt: published,
			LinkedIndicators: []string{"usd_vnd"},
		}
	}

	events := []domain.Event{
		mk("a", 90, today),                    // final 90, newest among equals
		mk("b", 90, today.AddDate(0, 0, -1)),   // final 90, older
		mk("c", 95, today),                     // final 95, ranks first
	}

	result := r.RankAll(events, nil, today)
	keyCount := result.SectionCounts[domain.SectionKeyEvents]
	if keyCount != cfg.MaxKeyEvents {
		t.Fatalf("key_events count = %d, want %d", keyCount, cfg.MaxKeyEvents)
	}
	if result.Demoted != 1 {
		t.Fatalf("Demoted = %d, want 1", result.Demoted)
	}

	// "a" (tied score, more recent) must outrank "b" and survive in key_events.
	var gotA, gotB domain.Event
	for _, ev := range result.Events {
		switch ev.ID {
		case "a":
			gotA = ev
		case "b":
			gotB = ev
		}
	}
	if gotA.DisplaySection != domain.SectionKeyEvents {
		t.Errorf("event a (tie-break winner) DisplaySection = %v, want key_events", gotA.DisplaySection)
	}
	if gotB.DisplaySection != domain.SectionOtherNews {
		t.Errorf("event b (tie-break loser, demoted) DisplaySection = %v, want other_news", gotB.DisplaySection)
	}
}

func TestDetectHotTopicsRequiresMinimumOccurrences(t *testing.T) {
	r := New(testConfig(), zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	mk := func(id, category string) domain.Event {
		return domain.Event{ID: id, Category: category, PublishedAt: today}
	}

	events := []domain.Event{
		mk("1", "monetary_policy"),
		mk("2", "monetary_policy"),
		mk("3", "monetary_policy"),
		mk("4", "gold"),
		mk("5", "gold"),
	}

	hot := r.DetectHotTopics(events, nil, today)
	if !hot["monetary_policy"] {
		t.Error("monetary_policy should be hot (3 occurrences)")
	}
	if hot["gold"] {
		t.Error("gold should not be hot (2 occurrences)")
	}
}

func TestDetectHotTopicsIgnoresOutsideWindow(t *testing.T) {
	r := New(testConfig(), zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	mk := func(id, category string, age int) domain.Event {
		return domain.Event{ID: id, Category: category, PublishedAt: today.AddDate(0, 0, -age)}
	}

	events := []domain.Event{
		mk("1", "monetary_policy", 10),
		mk("2", "monetary_policy", 10),
		mk("3", "monetary_policy", 10),
	}

	hot := r.DetectHotTopics(events, nil, today)
	if hot["monetary_policy"] {
		t.Error("monetary_policy occurrences outside the trailing window should not count")
	}
}

func TestDetectHotTopicsByCausalTemplate(t *testing.T) {
	r := New(testConfig(), zerolog.Nop())
	today := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	events := []domain.Event{
		{ID: "1", PublishedAt: today},
		{ID: "2", PublishedAt: today},
		{ID: "3", PublishedAt: today},
	}
	templates := map[string]string{"1": "fed_rate_hike", "2": "fed_rate_hike", "3": "fed_rate_hike"}

	hot := r.DetectHotTopics(events, templates, today)
	if !hot["fed_rate_hike"] {
		t.Error("fed_rate_hike template should be hot (3 occurrences)")
	}
}
