// Package orchestrator sequences one end-to-end ingestion pass: crawl,
// persist metrics/calendar, classify and dedup events, score, persist,
// rank, and review signals and watchlists — writing one RunHistory
// row per pass regardless of outcome.
//
// The step sequence (every step records its errors on the run and the
// pass continues; only a failure to write the RunHistory row is
// returned as an error) follows one locked
// trading-cycle job, adapted to one unlocked-by-design ingestion pass
// — concurrent runs are prevented by the scheduler's single-flight
// policy, not by an in-process lock.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/pipeline/classifier"
	"github.com/M1nhHoang/marketintel/internal/pipeline/ranker"
	"github.com/M1nhHoang/marketintel/internal/pipeline/scorer"
)

// Crawler is the narrow interface the orchestrator needs from a
// source's adapters.Driver.
type Crawler interface {
	Name() string
	Run(ctx context.Context, existingTitles map[string]bool) domain.CrawlerOutput
}

// EventRepo is the slice of repository.EventRepository the
// orchestrator depends on.
type EventRepo interface {
	FindByHash(ctx context.Context, hash string) (*domain.Event, error)
	GetRecentTitles(ctx context.Context, source string, days int) (map[string]bool, error)
	Create(ctx context.Context, ev domain.Event) error
	GetActiveEvents(ctx context.Context, maxAgeDays int) ([]domain.Event, error)
	UpdateScores(ctx context.Context, id string, current, decay, boost float64, section domain.DisplaySection, hotTopic bool, rankedAt time.Time) error
}

// IndicatorRepo is the slice of repository.IndicatorRepository the
// orchestrator depends on.
type IndicatorRepo interface {
	Upsert(ctx context.Context, ind domain.Indicator) error
	GetByID(ctx context.Context, id string) (*domain.Indicator, error)
}

// IndicatorHistoryRepo is the slice of
// repository.IndicatorHistoryRepository the orchestrator depends on.
type IndicatorHistoryRepo interface {
	AddHistory(ctx context.Context, indicatorID string, value float64, date time.Time, volume *float64, source string) (*domain.IndicatorHistory, error)
}

// CalendarRepo is the slice of repository.CalendarRepository the
// orchestrator depends on.
type CalendarRepo interface {
	Insert(ctx context.Context, c domain.CalendarRecord) (bool, error)
}

// CausalAnalysisRepo is the slice of repository.CausalAnalysisRepository
// the orchestrator depends on.
type CausalAnalysisRepo interface {
	Create(ctx context.Context, ca domain.CausalAnalysis) error
	GetMatchedTemplateIDs(ctx context.Context, eventIDs []string) (map[string]string, error)
}

// SignalRepo is the slice of repository.SignalRepository the
// orchestrator depends on.
type SignalRepo interface {
	Create(ctx context.Context, s domain.Signal) error
	GetActive(ctx context.Context) ([]domain.Signal, error)
	GetExpiredUnverified(ctx context.Context) ([]domain.Signal, error)
	Verify(ctx context.Context, id string, status domain.SignalStatus, actual *float64) error
}

// ThemeRepo is the slice of repository.ThemeRepository the
// orchestrator depends on.
type ThemeRepo interface {
	Create(ctx context.Context, t domain.Theme) error
	GetByID(ctx context.Context, id string) (*domain.Theme, error)
	GetActiveAndEmerging(ctx context.Context, limit int) ([]domain.Theme, error)
	UpdateStrength(ctx context.Context, id string, strength float64, peak *float64, status *domain.ThemeStatus) error
}

// WatchlistRepo is the slice of repository.WatchlistRepository the
// orchestrator depends on.
type WatchlistRepo interface {
	GetActive(ctx context.Context) ([]domain.Watchlist, error)
	Trigger(ctx context.Context, id string) error
}

// RunHistoryRepo is the slice of repository.RunHistoryRepository the
// orchestrator depends on.
type RunHistoryRepo interface {
	Create(ctx context.Context, rh domain.RunHistory) error
	GetLatest(ctx context.Context) (*domain.RunHistory, error)
}

// Deps bundles everything one Orchestrator needs, following the same
// grouped-constructor-arguments pattern as the rest of the pipeline.
type Deps struct {
	Crawlers             []Crawler
	Events               EventRepo
	Indicators           IndicatorRepo
	IndicatorHistory     IndicatorHistoryRepo
	Calendar             CalendarRepo
	CausalAnalyses       CausalAnalysisRepo
	Signals              SignalRepo
	Themes               ThemeRepo
	Watchlist            WatchlistRepo
	RunHistory           RunHistoryRepo
	Classifier           *classifier.Classifier
	Scorer               *scorer.Scorer
	Ranker               *ranker.Ranker
	TitleDedupWindowDays int
	ActiveThemeLimit     int
}

// Orchestrator runs one full ingestion pass.
type Orchestrator struct {
	deps Deps
	log  zerolog.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, log zerolog.Logger) *Orchestrator {
	if deps.TitleDedupWindowDays <= 0 {
		deps.TitleDedupWindowDays = 7
	}
	if deps.ActiveThemeLimit <= 0 {
		deps.ActiveThemeLimit = 50
	}
	return &Orchestrator{deps: deps, log: log.With().Str("component", "orchestrator").Logger()}
}

// Run executes one pass end to end. It always returns a populated
// RunHistory; the error return is reserved for failures to persist the
// run's own record, which the scheduler treats as a hard failure.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunHistory, error) {
	rh := domain.RunHistory{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Stats:     make(map[string]any),
	}
	var errs []string
	addErr := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		o.log.Warn().Msg(msg)
		errs = append(errs, msg)
	}

	existingTitles, err := o.deps.Events.GetRecentTitles(ctx, "", o.deps.TitleDedupWindowDays)
	if err != nil {
		addErr("load recent titles: %v", err)
		existingTitles = make(map[string]bool)
	}

	outputs := o.crawlAll(ctx, existingTitles)
	anySucceeded := false
	for _, out := range outputs {
		if out.Success {
			anySucceeded = true
		} else if out.Error != "" {
			addErr("crawl %s: %s", out.Source, out.Error)
		}
	}

	rh.MetricsIngested, rh.CalendarIngested = o.persistMetricsAndCalendar(ctx, outputs, addErr)

	records := collectEvents(outputs)
	rh.EventsCollected = len(records)

	retained, classifiedCount, relevantCount, duplicateCount := o.classifyAndDedup(ctx, rh.ID, records, rh.StartedAt, addErr)
	rh.EventsClassified = classifiedCount
	rh.EventsRelevant = relevantCount
	rh.DuplicatesSkipped = duplicateCount

	scoreCtx := o.buildScorerContext(ctx, addErr)
	scored := o.scoreAndPersist(ctx, rh.ID, retained, scoreCtx, addErr)
	rh.EventsScored = scored

	ranked, err := o.rank(ctx)
	if err != nil {
		addErr("rank active events: %v", err)
	}
	rh.EventsRanked = ranked

	o.reviewSignalsAndWatchlist(ctx, addErr)

	rh.FinishedAt = time.Now()
	rh.Errors = errs
	rh.Stats["sources_crawled"] = len(outputs)
	rh.Stats["duration_ms"] = rh.FinishedAt.Sub(rh.StartedAt).Milliseconds()

	switch {
	case len(outputs) > 0 && !anySucceeded:
		rh.Status = domain.RunFailed
	case len(errs) > 0:
		rh.Status = domain.RunPartial
	default:
		rh.Status = domain.RunSuccess
	}
	rh.Summary = fmt.Sprintf("%d events collected, %d relevant, %d scored, %d ranked", rh.EventsCollected, rh.EventsRelevant, rh.EventsScored, rh.EventsRanked)

	if err := o.deps.RunHistory.Create(ctx, rh); err != nil {
		return rh, fmt.Errorf("persist run history: %w", err)
	}
	return rh, nil
}

// crawlAll runs every configured source concurrently; one adapter's
// failure never blocks the others.
func (o *Orchestrator) crawlAll(ctx context.Context, existingTitles map[string]bool) []domain.CrawlerOutput {
	outputs := make([]domain.CrawlerOutput, len(o.deps.Crawlers))
	var wg sync.WaitGroup
	for i, c := range o.deps.Crawlers {
		wg.Add(1)
		go func(i int, c Crawler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outputs[i] = domain.CrawlerOutput{Source: c.Name(), Success: false, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()
			outputs[i] = c.Run(ctx, existingTitles)
		}(i, c)
	}
	wg.Wait()
	return outputs
}

// persistMetricsAndCalendar saves every metric/calendar row across all
// crawler outputs. Each row is handled independently; one bad row is
// logged and skipped, never fatal.
func (o *Orchestrator) persistMetricsAndCalendar(ctx context.Context, outputs []domain.CrawlerOutput, addErr func(string, ...any)) (metricsCount, calendarCount int) {
	for _, out := range outputs {
		for _, m := range out.Metrics {
			ind := domain.Indicator{
				ID: m.IndicatorID, DisplayName: m.DisplayName, DisplayNameVi: m.DisplayNameVi,
				Category: m.Category, Unit: m.Unit, LatestValue: m.Value, Source: m.Source,
				SourceURL: m.SourceURL, UpdatedAt: time.Now(),
			}
			if prior, err := o.deps.Indicators.GetByID(ctx, m.IndicatorID); err == nil && prior != nil {
				ind.Change = m.Value - prior.LatestValue
				if prior.LatestValue != 0 {
					ind.ChangePct = ind.Change / prior.LatestValue * 100
				}
			}
			if err := o.deps.Indicators.Upsert(ctx, ind); err != nil {
				addErr("upsert indicator %s: %v", m.IndicatorID, err)
				continue
			}

			var volume *float64
			if v, ok := m.Attributes["volume"].(float64); ok {
				volume = &v
			}
			if _, err := o.deps.IndicatorHistory.AddHistory(ctx, m.IndicatorID, m.Value, m.Date, volume, m.Source); err != nil {
				addErr("add history %s: %v", m.IndicatorID, err)
				continue
			}
			metricsCount++
		}

		for _, c := range out.Calendar {
			inserted, err := o.deps.Calendar.Insert(ctx, c)
			if err != nil {
				addErr("insert calendar %s/%s: %v", c.EventName, c.Date, err)
				continue
			}
			if !inserted {
				o.log.Debug().Str("event", c.EventName).Str("date", c.Date).Msg("calendar record already exists, skipping")
				continue
			}
			calendarCount++
		}
	}
	return metricsCount, calendarCount
}

// collectEvents flattens every crawler output's events into one slice.
func collectEvents(outputs []domain.CrawlerOutput) []domain.EventRecord {
	var records []domain.EventRecord
	for _, out := range outputs {
		records = append(records, out.Events...)
	}
	return records
}

// classifyAndDedup runs the dedup probe then Stage 1 classification
// for each collected record, returning the market-relevant, not-yet-
// classified-as-duplicate events ready for scoring.
func (o *Orchestrator) classifyAndDedup(ctx context.Context, runID string, records []domain.EventRecord, runDate time.Time, addErr func(string, ...any)) (retained []domain.Event, classified, relevant, duplicates int) {
	for _, rec := range records {
		hash := computeHash(rec)
		existing, err := o.deps.Events.FindByHash(ctx, hash)
		if err != nil {
			addErr("find by hash %q: %v", rec.Title, err)
			continue
		}
		if existing != nil {
			duplicates++
			continue
		}

		ev := domain.Event{
			Type: rec.Type, Title: rec.Title, Summary: rec.Summary, Content: rec.Content,
			Source: rec.Source, SourceURL: rec.SourceURL, PublishedAt: rec.PublishedAt, RunDate: runDate,
		}
		result, err := o.deps.Classifier.Classify(ctx, ev, runID)
		classified++
		if err != nil {
			addErr("classify %q: %v", rec.Title, err)
			continue
		}

		ev.IsMarketRelevant = result.IsMarketRelevant
		ev.Category = result.Category
		ev.LinkedIndicators = result.LinkedIndicators
		if !ev.IsMarketRelevant {
			continue
		}

		relevant++
		ev.ID = uuid.NewString()
		ev.Hash = hash
		retained = append(retained, ev)
	}
	return retained, classified, relevant, duplicates
}

// computeHash is the dedup key: a stable digest of title, source, and
// a content prefix, insensitive to trailing content churn on reposted
// articles.
func computeHash(rec domain.EventRecord) string {
	content := rec.Content
	if len(content) > 200 {
		content = content[:200]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(rec.Title) + "|" + rec.Source + "|" + content))
	return hex.EncodeToString(sum[:])
}

// buildScorerContext assembles the cross-run memory the scorer needs.
func (o *Orchestrator) buildScorerContext(ctx context.Context, addErr func(string, ...any)) scorer.Context {
	var cc scorer.Context
	if signals, err := o.deps.Signals.GetActive(ctx); err != nil {
		addErr("load active signals: %v", err)
	} else {
		cc.ActiveSignals = signals
	}
	if themes, err := o.deps.Themes.GetActiveAndEmerging(ctx, o.deps.ActiveThemeLimit); err != nil {
		addErr("load active themes: %v", err)
	} else {
		cc.ActiveThemes = themes
	}
	if latest, err := o.deps.RunHistory.GetLatest(ctx); err == nil && latest != nil {
		cc.Summary = latest.Summary
	}
	return cc
}

// themeStrengthIncrement is how much a follow-up event adds to its
// theme's strength per touch.
const themeStrengthIncrement = 10.0

// newThemeStrength is the starting strength of a freshly created theme.
const newThemeStrength = 10.0

// scoreAndPersist runs Stage 2 scoring over retained, links/creates
// themes, persists the event row, then writes the event's signal and
// causal analysis. Every step is per-event: one event's persistence
// failure never blocks the rest.
func (o *Orchestrator) scoreAndPersist(ctx context.Context, runID string, retained []domain.Event, cc scorer.Context, addErr func(string, ...any)) int {
	var persisted int
	for _, ev := range retained {
		result := o.deps.Scorer.Score(ctx, ev, cc, runID)
		ev.BaseScore = result.BaseScore
		ev.ScoreFactors = result.ScoreFactors

		if result.ThemeLink.ExistingThemeID != "" {
			if theme, err := o.deps.Themes.GetByID(ctx, result.ThemeLink.ExistingThemeID); err == nil && theme != nil {
				ev.IsFollowUp = true
				newStrength := theme.Strength + themeStrengthIncrement
				if err := o.deps.Themes.UpdateStrength(ctx, theme.ID, newStrength, &newStrength, nil); err != nil {
					addErr("update theme strength %s: %v", theme.ID, err)
				}
			}
		} else if result.ThemeLink.CreateNewTheme && result.ThemeLink.Name != "" {
			theme := domain.Theme{
				ID: uuid.NewString(), Name: result.ThemeLink.Name, NameVi: result.ThemeLink.NameVi,
				Description: result.ThemeLink.Description, Strength: newThemeStrength, PeakStrength: newThemeStrength,
				Status: domain.ThemeEmerging, FirstSeenAt: time.Now(), LastSeenAt: time.Now(),
			}
			if err := o.deps.Themes.Create(ctx, theme); err != nil {
				addErr("create theme %q: %v", theme.Name, err)
			}
		}

		if err := o.deps.Events.Create(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrDuplicateEvent) {
				o.log.Debug().Str("event", ev.Title).Msg("event hash already stored, skipping")
				continue
			}
			addErr("persist event %q: %v", ev.Title, err)
			continue
		}
		persisted++

		if result.SignalOutput.CreateSignal {
			signal := domain.Signal{
				ID: uuid.NewString(), SourceEventID: ev.ID, Direction: result.SignalOutput.Direction,
				TargetIndicator: result.SignalOutput.TargetIndicator, TargetRangeLow: result.SignalOutput.TargetRangeLow,
				TargetRangeHigh: result.SignalOutput.TargetRangeHigh, Confidence: result.SignalOutput.Confidence,
				TimeframeDays: result.SignalOutput.TimeframeDays, Reasoning: result.SignalOutput.Reasoning,
				Status: domain.SignalActive, CreatedAt: time.Now(),
				ExpiresAt: time.Now().AddDate(0, 0, max(result.SignalOutput.TimeframeDays, 1)),
			}
			if err := o.deps.Signals.Create(ctx, signal); err != nil {
				addErr("create signal for event %s: %v", ev.ID, err)
			}
		}

		if result.CausalAnalysis.MatchedTemplateID != "" || len(result.CausalAnalysis.Chain) > 0 {
			ca := result.CausalAnalysis
			ca.EventID = ev.ID
			if err := o.deps.CausalAnalyses.Create(ctx, ca); err != nil {
				addErr("create causal analysis for event %s: %v", ev.ID, err)
			}
		}
	}
	return persisted
}

// rank reloads the active event set and applies Stage 3 ranking,
// writing the updated tier/score fields back per event.
func (o *Orchestrator) rank(ctx context.Context) (int, error) {
	events, err := o.deps.Events.GetActiveEvents(ctx, o.deps.Ranker.MaxEventAgeDays())
	if err != nil {
		return 0, fmt.Errorf("load active events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	templateIDs, err := o.deps.CausalAnalyses.GetMatchedTemplateIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load matched template ids: %w", err)
	}

	result := o.deps.Ranker.RankAll(events, templateIDs, time.Now())
	for _, ev := range result.Events {
		if err := o.deps.Events.UpdateScores(ctx, ev.ID, ev.CurrentScore, ev.DecayFactor, ev.BoostFactor, ev.DisplaySection, ev.HotTopic, ev.LastRankedAt); err != nil {
			o.log.Warn().Err(err).Str("event", ev.ID).Msg("failed to persist ranking update")
		}
	}
	return len(result.Events), nil
}

// reviewSignalsAndWatchlist is the deterministic close to a pass:
// expired signals are verified against the indicator's current value,
// and date and indicator watchlist conditions are evaluated — no LLM
// judgment needed for numeric/structural checks like these. Keyword
// watchlist items are not evaluated.
func (o *Orchestrator) reviewSignalsAndWatchlist(ctx context.Context, addErr func(string, ...any)) {
	expired, err := o.deps.Signals.GetExpiredUnverified(ctx)
	if err != nil {
		addErr("load expired signals: %v", err)
	}
	for _, sig := range expired {
		ind, err := o.deps.Indicators.GetByID(ctx, sig.TargetIndicator)
		if err != nil || ind == nil {
			addErr("verify signal %s: indicator %s unavailable", sig.ID, sig.TargetIndicator)
			continue
		}
		actual := ind.LatestValue
		status := verifySignal(sig, actual)
		if err := o.deps.Signals.Verify(ctx, sig.ID, status, &actual); err != nil {
			addErr("verify signal %s: %v", sig.ID, err)
		}
	}

	watched, err := o.deps.Watchlist.GetActive(ctx)
	if err != nil {
		addErr("load active watchlist items: %v", err)
		return
	}
	now := time.Now()
	for _, w := range watched {
		triggered := false
		switch w.Type {
		case domain.WatchlistDate:
			triggered = w.TriggerDate != nil && !w.TriggerDate.After(now)
		case domain.WatchlistIndicator:
			ind, err := o.deps.Indicators.GetByID(ctx, w.Indicator)
			if err != nil || ind == nil {
				continue
			}
			triggered = evaluateCondition(w.Condition, ind.LatestValue)
		case domain.WatchlistKeyword:
			// Keyword items are not evaluated by this step.
			continue
		}
		if triggered {
			if err := o.deps.Watchlist.Trigger(ctx, w.ID); err != nil {
				addErr("trigger watchlist item %s: %v", w.ID, err)
			}
		}
	}
}

// verifySignal compares a signal's prediction against the observed
// value at expiry.
func verifySignal(sig domain.Signal, actual float64) domain.SignalStatus {
	switch sig.Direction {
	case domain.DirectionUp:
		if sig.TargetRangeLow != nil && actual >= *sig.TargetRangeLow {
			return domain.SignalVerifiedCorrect
		}
	case domain.DirectionDown:
		if sig.TargetRangeHigh != nil && actual <= *sig.TargetRangeHigh {
			return domain.SignalVerifiedCorrect
		}
	case domain.DirectionStable:
		if sig.TargetRangeLow != nil && sig.TargetRangeHigh != nil &&
			actual >= *sig.TargetRangeLow && actual <= *sig.TargetRangeHigh {
			return domain.SignalVerifiedCorrect
		}
	}
	return domain.SignalVerifiedWrong
}

// evaluateCondition parses a "OP VALUE" condition (e.g. ">= 25500")
// and evaluates it against value.
func evaluateCondition(condition string, value float64) bool {
	fields := strings.Fields(condition)
	if len(fields) != 2 {
		return false
	}
	threshold, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return false
	}
	switch fields[0] {
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "==", "=":
		return value == threshold
	case "!=":
		return value != threshold
	default:
		return false
	}
}

