// Package ranker implements Stage 3 of the pipeline: decay-adjusted,
// boost-adjusted scoring and tier assignment over the active event
// set, plus frequency-based hot-topic detection.
package ranker

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// Config carries the tier thresholds and caps. Values come from
// internal/config so operators can retune them without a rebuild.
type Config struct {
	ThresholdKeyEvents float64
	ThresholdOtherNews float64
	MaxKeyEvents       int
	MaxEventAgeDays    int
}

// Ranker is stateless; every call is pure given its Config and inputs.
type Ranker struct {
	cfg Config
	log zerolog.Logger
}

// New constructs a Ranker.
func New(cfg Config, log zerolog.Logger) *Ranker {
	return &Ranker{cfg: cfg, log: log.With().Str("component", "ranker").Logger()}
}

// MaxEventAgeDays exposes the configured archive cutoff so callers can
// size their active-event queries consistently with ranking.
func (r *Ranker) MaxEventAgeDays() int { return r.cfg.MaxEventAgeDays }

// hotTopicMinOccurrences is the frequency floor for a category or
// causal template to count as a hot topic in the trailing window.
const hotTopicMinOccurrences = 3

// hotTopicWindowDays is the trailing window hot-topic detection scans.
const hotTopicWindowDays = 7

// decayStep is one row of the piecewise age-decay schedule.
type decayStep struct {
	maxAgeDays int
	factor     float64
}

// decaySchedule weights events by age: full weight for same/next-day
// events, fading in steps to zero after 30 days.
var decaySchedule = []decayStep{
	{maxAgeDays: 1, factor: 1.00},
	{maxAgeDays: 3, factor: 0.85},
	{maxAgeDays: 7, factor: 0.60},
	{maxAgeDays: 14, factor: 0.30},
	{maxAgeDays: 30, factor: 0.10},
}

// DecayFactor returns the age-based weight for ageDays, clamped at 0.
func DecayFactor(ageDays int) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	for _, step := range decaySchedule {
		if ageDays <= step.maxAgeDays {
			return step.factor
		}
	}
	return 0.0
}

// BoostFactor composes the multipliers applicable to ev: follow-up on
// a tracked theme, membership in a detected hot topic, and having two
// or more linked indicators. Multipliers compound multiplicatively.
func BoostFactor(ev domain.Event, matchedTemplateID string, hotTopics map[string]bool) float64 {
	boost := 1.0
	if ev.IsFollowUp {
		boost *= 1.5
	}
	if isHotTopic(ev, matchedTemplateID, hotTopics) {
		boost *= 1.2
	}
	if len(ev.LinkedIndicators) >= 2 {
		boost *= 1.1
	}
	return boost
}

func isHotTopic(ev domain.Event, matchedTemplateID string, hotTopics map[string]bool) bool {
	if ev.Category != "" && ev.Category != "internal" && hotTopics[ev.Category] {
		return true
	}
	if matchedTemplateID != "" && hotTopics[matchedTemplateID] {
		return true
	}
	return false
}

// ageInDays returns the whole-day age of ev relative to today, using
// PublishedAt (falling back to RunDate when PublishedAt is zero).
func ageInDays(ev domain.Event, today time.Time) int {
	ts := ev.PublishedAt
	if ts.IsZero() {
		ts = ev.RunDate
	}
	days := int(math.Floor(today.Sub(ts).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return days
}

// determineSection assigns ev's display tier from its final score and
// shape. An event below the other-news floor, or past the max-age
// cutoff, is archived regardless of score.
func (r *Ranker) determineSection(ev domain.Event, finalScore float64, ageDays int) domain.DisplaySection {
	if !ev.IsMarketRelevant || ageDays > r.cfg.MaxEventAgeDays {
		return domain.SectionArchive
	}
	switch {
	case finalScore >= r.cfg.ThresholdKeyEvents && len(ev.LinkedIndicators) >= 1:
		return domain.SectionKeyEvents
	case finalScore >= r.cfg.ThresholdOtherNews:
		return domain.SectionOtherNews
	default:
		return domain.SectionArchive
	}
}

// RankEvent scores one event in isolation: the caller must already
// know whether ev belongs to a hot topic (see DetectHotTopics).
func (r *Ranker) RankEvent(ev domain.Event, today time.Time, matchedTemplateID string, hotTopics map[string]bool) domain.Event {
	ageDays := ageInDays(ev, today)
	decay := DecayFactor(ageDays)
	boost := BoostFactor(ev, matchedTemplateID, hotTopics)
	final := math.Round(ev.BaseScore*decay*boost*100) / 100

	ev.DecayFactor = decay
	ev.BoostFactor = boost
	ev.CurrentScore = final
	ev.HotTopic = isHotTopic(ev, matchedTemplateID, hotTopics)
	ev.DisplaySection = r.determineSection(ev, final, ageDays)
	ev.LastRankedAt = today
	return ev
}

// Result is the batch output of RankAll.
type Result struct {
	Events        []domain.Event
	HotTopics     []string
	SectionCounts map[domain.DisplaySection]int
	Demoted       int // key_events beyond MaxKeyEvents cap, demoted to other_news
}

// RankAll ranks every event in events against today, applying the
// MAX_KEY_EVENTS tier cap deterministically: events are sorted by
// final score descending (ties broken by most recent published_at),
// and any key_events-tier event beyond the cap is demoted to
// other_news. templateIDs maps event ID to its causal_analysis
// matched_template_id, when one exists.
func (r *Ranker) RankAll(events []domain.Event, templateIDs map[string]string, today time.Time) Result {
	hotTopics := r.DetectHotTopics(events, templateIDs, today)

	ranked := make([]domain.Event, len(events))
	for i, ev := range events {
		ranked[i] = r.RankEvent(ev, today, templateIDs[ev.ID], hotTopics)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CurrentScore != ranked[j].CurrentScore {
			return ranked[i].CurrentScore > ranked[j].CurrentScore
		}
		return ranked[i].PublishedAt.After(ranked[j].PublishedAt)
	})

	demoted := 0
	keyEventsSeen := 0
	for i := range ranked {
		if ranked[i].DisplaySection != domain.SectionKeyEvents {
			continue
		}
		keyEventsSeen++
		if keyEventsSeen > r.cfg.MaxKeyEvents {
			ranked[i].DisplaySection = domain.SectionOtherNews
			demoted++
		}
	}

	counts := make(map[domain.DisplaySection]int)
	for _, ev := range ranked {
		counts[ev.DisplaySection]++
	}

	names := make([]string, 0, len(hotTopics))
	for name := range hotTopics {
		names = append(names, name)
	}
	sort.Strings(names)

	return Result{Events: ranked, HotTopics: names, SectionCounts: counts, Demoted: demoted}
}

// DetectHotTopics groups active events by category and by causal
// matched_template_id over the trailing hotTopicWindowDays, flagging
// any key with at least hotTopicMinOccurrences as hot.
func (r *Ranker) DetectHotTopics(events []domain.Event, templateIDs map[string]string, today time.Time) map[string]bool {
	counts := make(map[string]int)
	for _, ev := range events {
		if ageInDays(ev, today) > hotTopicWindowDays {
			continue
		}
		if ev.Category != "" && ev.Category != "internal" {
			counts[ev.Category]++
		}
		if tmpl := templateIDs[ev.ID]; tmpl != "" {
			counts[tmpl]++
		}
	}

	hot := make(map[string]bool)
	for key, n := range counts {
		if n >= hotTopicMinOccurrences {
			hot[key] = true
		}
	}
	return hot
}
