package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/llmgateway"
	"github.com/M1nhHoang/marketintel/internal/pipeline/classifier"
	"github.com/M1nhHoang/marketintel/internal/pipeline/ranker"
	"github.com/M1nhHoang/marketintel/internal/pipeline/scorer"
)

// fakeGateway answers classify/score calls with canned, always-valid
// JSON so the pipeline stages never hit the graceful-degradation path
// in this test.
type fakeGateway struct{}

func (fakeGateway) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (llmgateway.Response, error) {
	cc := llmgateway.CallContextFrom(ctx)
	switch cc.TaskType {
	case "classify":
		return llmgateway.Response{Content: `{"is_market_relevant": true, "category": "monetary_policy", "linked_indicators": ["usd_vnd"], "reasoning": "test"}`}, nil
	case "score":
		return llmgateway.Response{Content: `{"base_score": 85, "score_factors": {"magnitude": 20}, "causal_analysis": {}, "signal_output": {"create_signal": false}, "theme_link": {}}`}, nil
	}
	return llmgateway.Response{}, nil
}

func (f fakeGateway) Chat(ctx context.Context, messages []llmgateway.Message, system string, maxTokens int, temperature float64) (llmgateway.Response, error) {
	return f.Generate(ctx, "", system, maxTokens, temperature)
}

// fakeCrawler returns a fixed CrawlerOutput on every Run call.
type fakeCrawler struct {
	name   string
	output domain.CrawlerOutput
}

func (f fakeCrawler) Name() string { return f.name }
func (f fakeCrawler) Run(ctx context.Context, existingTitles map[string]bool) domain.CrawlerOutput {
	return f.output
}

// In-memory repo fakes. Each stores just enough state to drive the
// orchestrator end to end and let the test assert on outcomes.

type fakeEventRepo struct {
	byHash map[string]domain.Event
	all    []domain.Event
}

func newFakeEventRepo() *fakeEventRepo { return &fakeEventRepo{byHash: map[string]domain.Event{}} }

func (r *fakeEventRepo) FindByHash(ctx context.Context, hash string) (*domain.Event, error) {
	if ev, ok := r.byHash[hash]; ok {
		return &ev, nil
	}
	return nil, nil
}
func (r *fakeEventRepo) GetRecentTitles(ctx context.Context, source string, days int) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (r *fakeEventRepo) Create(ctx context.Context, ev domain.Event) error {
	r.byHash[ev.Hash] = ev
	r.all = append(r.all, ev)
	return nil
}
func (r *fakeEventRepo) GetActiveEvents(ctx context.Context, maxAgeDays int) ([]domain.Event, error) {
	return r.all, nil
}
func (r *fakeEventRepo) UpdateScores(ctx context.Context, id string, current, decay, boost float64, section domain.DisplaySection, hotTopic bool, rankedAt time.Time) error {
	for i := range r.all {
		if r.all[i].ID == id {
			r.all[i].CurrentScore = current
			r.all[i].DisplaySection = section
		}
	}
	return nil
}

type fakeIndicatorRepo struct{ byID map[string]domain.Indicator }

func newFakeIndicatorRepo() *fakeIndicatorRepo {
	return &fakeIndicatorRepo{byID: map[string]domain.Indicator{}}
}
func (r *fakeIndicatorRepo) Upsert(ctx context.Context, ind domain.Indicator) error {
	r.byID[ind.ID] = ind
	return nil
}
func (r *fakeIndicatorRepo) GetByID(ctx context.Context, id string) (*domain.Indicator, error) {
	if ind, ok := r.byID[id]; ok {
		return &ind, nil
	}
	return nil, nil
}

type fakeIndicatorHistoryRepo struct{ count int }

func (r *fakeIndicatorHistoryRepo) AddHistory(ctx context.Context, indicatorID string, value float64, date time.Time, volume *float64, source string) (*domain.IndicatorHistory, error) {
	r.count++
	return &domain.IndicatorHistory{IndicatorID: indicatorID, Value: value}, nil
}

type fakeCalendarRepo struct{ count int }

func (r *fakeCalendarRepo) Insert(ctx context.Context, c domain.CalendarRecord) (bool, error) {
	r.count++
	return true, nil
}

type fakeCausalAnalysisRepo struct{ byEvent map[string]domain.CausalAnalysis }

func newFakeCausalAnalysisRepo() *fakeCausalAnalysisRepo {
	return &fakeCausalAnalysisRepo{byEvent: map[string]domain.CausalAnalysis{}}
}
func (r *fakeCausalAnalysisRepo) Create(ctx context.Context, ca domain.CausalAnalysis) error {
	r.byEvent[ca.EventID] = ca
	return nil
}
func (r *fakeCausalAnalysisRepo) GetMatchedTemplateIDs(ctx context.Context, eventIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range eventIDs {
		if ca, ok := r.byEvent[id]; ok && ca.MatchedTemplateID != "" {
			out[id] = ca.MatchedTemplateID
		}
	}
	return out, nil
}

type fakeSignalRepo struct{ signals []domain.Signal }

func (r *fakeSignalRepo) Create(ctx context.Context, s domain.Signal) error {
	r.signals = append(r.signals, s)
	return nil
}
func (r *fakeSignalRepo) GetActive(ctx context.Context) ([]domain.Signal, error) { return nil, nil }
func (r *fakeSignalRepo) GetExpiredUnverified(ctx context.Context) ([]domain.Signal, error) {
	return nil, nil
}
func (r *fakeSignalRepo) Verify(ctx context.Context, id string, status domain.SignalStatus, actual *float64) error {
	return nil
}

type fakeThemeRepo struct{}

func (r *fakeThemeRepo) Create(ctx context.Context, t domain.Theme) error { return nil }
func (r *fakeThemeRepo) GetByID(ctx context.Context, id string) (*domain.Theme, error) {
	return nil, nil
}
func (r *fakeThemeRepo) GetActiveAndEmerging(ctx context.Context, limit int) ([]domain.Theme, error) {
	return nil, nil
}
func (r *fakeThemeRepo) UpdateStrength(ctx context.Context, id string, strength float64, peak *float64, status *domain.ThemeStatus) error {
	return nil
}

type fakeWatchlistRepo struct{}

func (r *fakeWatchlistRepo) GetActive(ctx context.Context) ([]domain.Watchlist, error) {
	return nil, nil
}
func (r *fakeWatchlistRepo) Trigger(ctx context.Context, id string) error { return nil }

type fakeRunHistoryRepo struct{ created []domain.RunHistory }

func (r *fakeRunHistoryRepo) Create(ctx context.Context, rh domain.RunHistory) error {
	r.created = append(r.created, rh)
	return nil
}
func (r *fakeRunHistoryRepo) GetLatest(ctx context.Context) (*domain.RunHistory, error) {
	if len(r.created) == 0 {
		return nil, nil
	}
	return &r.created[len(r.created)-1], nil
}

func TestRunEndToEndPersistsEventsAndRanks(t *testing.T) {
	crawler := fakeCrawler{
		name: "test-source",
		output: domain.CrawlerOutput{
			Source: "test-source", Success: true, Stats: map[string]any{},
			Metrics: []domain.MetricRecord{
				{IndicatorID: "usd_vnd", Type: domain.MetricExchangeRate, DisplayName: "USD/VND", Category: "fx", Value: 25500, Date: time.Now()},
			},
			Events: []domain.EventRecord{
				{Type: domain.EventNews, Title: "SBV raises rates", Content: "content body", Source: "test-source", PublishedAt: time.Now()},
			},
			Calendar: []domain.CalendarRecord{
				{EventName: "CPI release", Country: "VN", Date: time.Now().Format("2006-01-02")},
			},
		},
	}

	events := newFakeEventRepo()
	indicators := newFakeIndicatorRepo()
	history := &fakeIndicatorHistoryRepo{}
	calendar := &fakeCalendarRepo{}
	causal := newFakeCausalAnalysisRepo()
	signals := &fakeSignalRepo{}
	themes := &fakeThemeRepo{}
	watchlist := &fakeWatchlistRepo{}
	runHistory := &fakeRunHistoryRepo{}

	gw := fakeGateway{}
	cls := classifier.New(gw, 1, time.Millisecond, zerolog.Nop())
	scr := scorer.New(gw, zerolog.Nop())
	rnk := ranker.New(ranker.Config{ThresholdKeyEvents: 70, ThresholdOtherNews: 40, MaxKeyEvents: 20, MaxEventAgeDays: 30}, zerolog.Nop())

	o := New(Deps{
		Crawlers:         []Crawler{crawler},
		Events:           events,
		Indicators:       indicators,
		IndicatorHistory: history,
		Calendar:         calendar,
		CausalAnalyses:   causal,
		Signals:          signals,
		Themes:           themes,
		Watchlist:        watchlist,
		RunHistory:       runHistory,
		Classifier:       cls,
		Scorer:           scr,
		Ranker:           rnk,
	}, zerolog.Nop())

	rh, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rh.Status != domain.RunSuccess {
		t.Errorf("Status = %v, want success (errors: %v)", rh.Status, rh.Errors)
	}
	if rh.EventsCollected != 1 {
		t.Errorf("EventsCollected = %d, want 1", rh.EventsCollected)
	}
	if rh.EventsRelevant != 1 {
		t.Errorf("EventsRelevant = %d, want 1", rh.EventsRelevant)
	}
	if rh.EventsScored != 1 {
		t.Errorf("EventsScored = %d, want 1", rh.EventsScored)
	}
	if rh.EventsRanked != 1 {
		t.Errorf("EventsRanked = %d, want 1", rh.EventsRanked)
	}
	if rh.MetricsIngested != 1 {
		t.Errorf("MetricsIngested = %d, want 1", rh.MetricsIngested)
	}
	if rh.CalendarIngested != 1 {
		t.Errorf("CalendarIngested = %d, want 1", rh.CalendarIngested)
	}
	if len(events.all) != 1 {
		t.Fatalf("persisted event count = %d, want 1", len(events.all))
	}
	if events.all[0].DisplaySection == "" {
		t.Error("persisted event was never assigned a display section by ranking")
	}
	if len(runHistory.created) != 1 {
		t.Fatalf("run history rows created = %d, want 1", len(runHistory.created))
	}
}

func TestRunSkipsDuplicateEventsByHash(t *testing.T) {
	rec := domain.EventRecord{Type: domain.EventNews, Title: "Duplicate story", Content: "same body", Source: "test-source", PublishedAt: time.Now()}
	crawler := fakeCrawler{
		name:   "test-source",
		output: domain.CrawlerOutput{Source: "test-source", Success: true, Events: []domain.EventRecord{rec}},
	}

	events := newFakeEventRepo()
	events.byHash[computeHash(rec)] = domain.Event{ID: "existing", Hash: computeHash(rec)}

	gw := fakeGateway{}
	o := New(Deps{
		Crawlers:         []Crawler{crawler},
		Events:           events,
		Indicators:       newFakeIndicatorRepo(),
		IndicatorHistory: &fakeIndicatorHistoryRepo{},
		Calendar:         &fakeCalendarRepo{},
		CausalAnalyses:   newFakeCausalAnalysisRepo(),
		Signals:          &fakeSignalRepo{},
		Themes:           &fakeThemeRepo{},
		Watchlist:        &fakeWatchlistRepo{},
		RunHistory:       &fakeRunHistoryRepo{},
		Classifier:       classifier.New(gw, 1, time.Millisecond, zerolog.Nop()),
		Scorer:           scorer.New(gw, zerolog.Nop()),
		Ranker:           ranker.New(ranker.Config{ThresholdKeyEvents: 70, ThresholdOtherNews: 40, MaxKeyEvents: 20, MaxEventAgeDays: 30}, zerolog.Nop()),
	}, zerolog.Nop())

	rh, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rh.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", rh.DuplicatesSkipped)
	}
	if rh.EventsRelevant != 0 {
		t.Errorf("EventsRelevant = %d, want 0 (duplicate should never reach classification)", rh.EventsRelevant)
	}
}

func TestVerifySignalDirections(t *testing.T) {
	low, high := 25000.0, 26000.0
	up := domain.Signal{Direction: domain.DirectionUp, TargetRangeLow: &low}
	if got := verifySignal(up, 25500); got != domain.SignalVerifiedCorrect {
		t.Errorf("up signal at 25500 vs floor 25000 = %v, want verified_correct", got)
	}
	if got := verifySignal(up, 20000); got != domain.SignalVerifiedWrong {
		t.Errorf("up signal below floor = %v, want verified_wrong", got)
	}

	down := domain.Signal{Direction: domain.DirectionDown, TargetRangeHigh: &high}
	if got := verifySignal(down, 25500); got != domain.SignalVerifiedCorrect {
		t.Errorf("down signal below ceiling = %v, want verified_correct", got)
	}

	stable := domain.Signal{Direction: domain.DirectionStable, TargetRangeLow: &low, TargetRangeHigh: &high}
	if got := verifySignal(stable, 25500); got != domain.SignalVerifiedCorrect {
		t.Errorf("stable signal within range = %v, want verified_correct", got)
	}
	if got := verifySignal(stable, 30000); got != domain.SignalVerifiedWrong {
		t.Errorf("stable signal outside range = %v, want verified_wrong", got)
	}
}

func TestEvaluateCondition(t *testing.T) {
	cases := []struct {
		condition string
		value     float64
		want      bool
	}{
		{">= 25500", 25600, true},
		{">= 25500", 25000, false},
		{"<= 100", 100, true},
		{"> 5", 5, false},
		{"< 5", 4, true},
		{"== 7", 7, true},
		{"!= 7", 7, false},
		{"!= 7", 8, true},
		{"malformed", 1, false},
	}
	for _, c := range cases {
		if got := evaluateCondition(c.condition, c.value); got != c.want {
			t.Errorf("evaluateCondition(%q, %v) = %v, want %v", c.condition, c.value, got, c.want)
		}
	}
}
