package domain

import "time"

// Indicator is a time series identity: one row per id, upserted on
// every metric ingest, never deleted.
type Indicator struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	DisplayNameVi string     `json:"display_name_vi,omitempty"`
	Category      string     `json:"category"`
	Unit          string     `json:"unit,omitempty"`
	LatestValue   float64    `json:"latest_value"`
	Change        float64    `json:"change"`
	ChangePct     float64    `json:"change_pct"`
	Trend         Trend      `json:"trend"`
	Source        string     `json:"source"`
	SourceURL     string     `json:"source_url,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IndicatorHistory is one datum in a time series. Uniqueness is on
// (indicator_id, date, value): a same-day republish with an identical
// value is a no-op.
type IndicatorHistory struct {
	ID            int64     `json:"id"`
	IndicatorID   string    `json:"indicator_id"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	Change        float64   `json:"change"`
	ChangePct     float64   `json:"change_pct"`
	Volume        *float64  `json:"volume,omitempty"`
	Date          time.Time `json:"date"`
	RecordedAt    time.Time `json:"recorded_at"`
	Source        string    `json:"source"`
}

// CausalAnalysis is the Stage-2 causal chain attached to at most one
// event.
type CausalAnalysis struct {
	EventID              string   `json:"event_id"`
	MatchedTemplateID    string   `json:"matched_template_id,omitempty"`
	Chain                []string `json:"chain"`
	Confidence           string   `json:"confidence"` // verified, likely, uncertain
	InvestigationPrompts []string `json:"investigation_prompts,omitempty"`
	AffectedIndicators   []string `json:"affected_indicators,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
}

// Event is one news or document item subject to LLM analysis. Stage
// fields are filled progressively as the orchestrator's steps run.
type Event struct {
	ID               string         `json:"id"`
	Hash             string         `json:"hash"`
	Type             EventType      `json:"type"`
	Title            string         `json:"title"`
	Summary          string         `json:"summary,omitempty"`
	Content          string         `json:"content,omitempty"`
	Source           string         `json:"source"`
	SourceURL        string         `json:"source_url"`
	PublishedAt      time.Time      `json:"published_at"`
	RunDate          time.Time      `json:"run_date"`

	// Stage 1 — Classifier
	IsMarketRelevant bool     `json:"is_market_relevant"`
	Category         string   `json:"category,omitempty"`
	Region           string   `json:"region,omitempty"`
	LinkedIndicators []string `json:"linked_indicators,omitempty"`

	// Stage 2 — Scorer
	BaseScore    float64            `json:"base_score"`
	ScoreFactors map[string]float64 `json:"score_factors,omitempty"`

	// Stage 3 — Ranker
	CurrentScore   float64        `json:"current_score"`
	DecayFactor    float64        `json:"decay_factor"`
	BoostFactor    float64        `json:"boost_factor"`
	DisplaySection DisplaySection `json:"display_section"`
	HotTopic       bool           `json:"hot_topic"`

	IsFollowUp   bool      `json:"is_follow_up"`
	LastRankedAt time.Time `json:"last_ranked_at"`
}

// SignalDirection is the predicted move direction of a Signal.
type SignalDirection string

const (
	DirectionUp     SignalDirection = "up"
	DirectionDown   SignalDirection = "down"
	DirectionStable SignalDirection = "stable"
)

// SignalConfidence is the qualitative confidence of a Signal or causal
// chain step.
type SignalConfidence string

const (
	ConfidenceHigh   SignalConfidence = "high"
	ConfidenceMedium SignalConfidence = "medium"
	ConfidenceLow    SignalConfidence = "low"
)

// SignalStatus is the lifecycle state of a Signal.
type SignalStatus string

const (
	SignalActive          SignalStatus = "active"
	SignalVerifiedCorrect SignalStatus = "verified_correct"
	SignalVerifiedWrong   SignalStatus = "verified_wrong"
	SignalExpired         SignalStatus = "expired"
)

// Signal is a bounded, verifiable short-term prediction linked to one
// indicator and to the event(s) that produced it.
type Signal struct {
	ID              string           `json:"id"`
	SourceEventID   string           `json:"source_event_id"`
	Direction       SignalDirection  `json:"direction"`
	TargetIndicator string           `json:"target_indicator"`
	TargetRangeLow  *float64         `json:"target_range_low,omitempty"`
	TargetRangeHigh *float64         `json:"target_range_high,omitempty"`
	Confidence      SignalConfidence `json:"confidence"`
	TimeframeDays   int              `json:"timeframe_days"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Status          SignalStatus     `json:"status"`
	ActualValue     *float64         `json:"actual_value,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
	VerifiedAt      *time.Time       `json:"verified_at,omitempty"`
}

// ThemeStatus is the lifecycle state of a Theme.
type ThemeStatus string

const (
	ThemeEmerging ThemeStatus = "emerging"
	ThemeActive   ThemeStatus = "active"
	ThemeFading   ThemeStatus = "fading"
	ThemeArchived ThemeStatus = "archived"
)

// Theme is a named cluster of related events/signals/indicators with a
// strength scalar that rises and decays over time.
type Theme struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	NameVi       string      `json:"name_vi,omitempty"`
	Description  string      `json:"description,omitempty"`
	Strength     float64     `json:"strength"`
	PeakStrength float64     `json:"peak_strength"`
	Status       ThemeStatus `json:"status"`
	FirstSeenAt  time.Time   `json:"first_seen_at"`
	LastSeenAt   time.Time   `json:"last_seen_at"`
}

// WatchlistType is the kind of condition a Watchlist item evaluates.
type WatchlistType string

const (
	WatchlistDate      WatchlistType = "date"
	WatchlistIndicator WatchlistType = "indicator"
	WatchlistKeyword   WatchlistType = "keyword"
)

// WatchlistStatus is the lifecycle state of a Watchlist item.
type WatchlistStatus string

const (
	WatchlistWatching  WatchlistStatus = "watching"
	WatchlistTriggered WatchlistStatus = "triggered"
	WatchlistDismissed WatchlistStatus = "dismissed"
)

// Watchlist is a declarative trigger: a date, an indicator condition of
// the form "OP VALUE", or a keyword match.
type Watchlist struct {
	ID          string          `json:"id"`
	Type        WatchlistType   `json:"type"`
	Indicator   string          `json:"indicator,omitempty"`
	Condition   string          `json:"condition,omitempty"` // e.g. ">= 25500"
	Keyword     string          `json:"keyword,omitempty"`
	TriggerDate *time.Time      `json:"trigger_date,omitempty"`
	Status      WatchlistStatus `json:"status"`
	SnoozeUntil *time.Time      `json:"snooze_until,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
}

// RunStatus is the outcome of one orchestrator pass.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunHistory is one row per orchestrator pass.
type RunHistory struct {
	ID                 string         `json:"id"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	Status             RunStatus      `json:"status"`
	Summary            string         `json:"summary,omitempty"`
	MetricsIngested    int            `json:"metrics_ingested"`
	CalendarIngested   int            `json:"calendar_ingested"`
	EventsCollected    int            `json:"events_collected"`
	EventsClassified   int            `json:"events_classified"`
	EventsRelevant     int            `json:"events_relevant"`
	DuplicatesSkipped  int            `json:"duplicates_skipped"`
	EventsScored       int            `json:"events_scored"`
	EventsRanked       int            `json:"events_ranked"`
	Errors             []string       `json:"errors,omitempty"`
	Stats              map[string]any `json:"stats,omitempty"`
}

// Message is one turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMCallHistory is one append-only row per LLM invocation.
type LLMCallHistory struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	Response     string    `json:"response"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	TaskType     string    `json:"task_type"`
	RunID        string    `json:"run_id"`
	IsValidJSON  bool      `json:"is_valid_json"`
	StopReason   string    `json:"stop_reason,omitempty"`
}
