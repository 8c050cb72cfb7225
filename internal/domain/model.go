// Package domain defines the canonical record model shared by every
// adapter, the pipeline stages, and the repository layer. Nothing
// source-specific crosses the adapter boundary in any other shape.
package domain

import "time"

// MetricType enumerates the closed set of time-series kinds the system
// tracks. Adapters must map upstream labels onto one of these.
type MetricType string

const (
	MetricExchangeRate  MetricType = "exchange_rate"
	MetricInterbankRate MetricType = "interbank_rate"
	MetricPolicyRate    MetricType = "policy_rate"
	MetricGoldPrice     MetricType = "gold_price"
	MetricCPI           MetricType = "cpi"
	MetricOMO           MetricType = "omo"
	MetricCredit        MetricType = "credit"
	MetricIndex         MetricType = "index"
	MetricBondYield     MetricType = "bond_yield"
	MetricCommodity     MetricType = "commodity"
)

// EventType enumerates the closed set of news/document kinds.
type EventType string

const (
	EventNews          EventType = "news"
	EventPressRelease  EventType = "press_release"
	EventCircular      EventType = "circular"
	EventAnnouncement  EventType = "announcement"
	EventLegalDocument EventType = "legal_document"
)

// Trend tags the direction of an indicator's latest move.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// DisplaySection is the ranker's output tier.
type DisplaySection string

const (
	SectionKeyEvents DisplaySection = "key_events"
	SectionOtherNews DisplaySection = "other_news"
	SectionArchive   DisplaySection = "archive"
)

// Attachment is a PDF or other binary artifact discovered alongside an
// article body.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Text        string `json:"text,omitempty"`
}

// MetricRecord is one canonical observation of a time series on a given
// date. Attributes is an open map for per-type side data (volume,
// buy/sell breakdown, per-term OMO splits, ...).
type MetricRecord struct {
	IndicatorID   string         `json:"indicator_id"`
	Type          MetricType     `json:"type"`
	DisplayName   string         `json:"display_name"`
	DisplayNameVi string         `json:"display_name_vi,omitempty"`
	Category      string         `json:"category"`
	Unit          string         `json:"unit,omitempty"`
	Value         float64        `json:"value"`
	Date          time.Time      `json:"date"`
	Source        string         `json:"source"`
	SourceURL     string         `json:"source_url,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// EventRecord is one news or document item as produced by a Transform,
// before any Stage-1/2/3 pipeline fields are attached.
type EventRecord struct {
	Type         EventType    `json:"type"`
	Title        string       `json:"title"`
	Summary      string       `json:"summary,omitempty"`
	Content      string       `json:"content,omitempty"`
	Source       string       `json:"source"`
	SourceURL    string       `json:"source_url"`
	PublishedAt  time.Time    `json:"published_at"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// CalendarRecord is a scheduled economic event.
type CalendarRecord struct {
	EventName  string  `json:"event_name"`
	Country    string  `json:"country"`
	Date       string  `json:"date"` // YYYY-MM-DD
	Time       string  `json:"time,omitempty"`
	Importance string  `json:"importance,omitempty"`
	Previous   *string `json:"previous,omitempty"`
	Forecast   *string `json:"forecast,omitempty"`
	Actual     *string `json:"actual,omitempty"`
}

// CrawlerOutput is the sole data shape that crosses the adapter boundary.
type CrawlerOutput struct {
	Source    string         `json:"source"`
	CrawledAt time.Time      `json:"crawled_at"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
	Metrics   []MetricRecord `json:"metrics,omitempty"`
	Events    []EventRecord  `json:"events,omitempty"`
	Calendar  []CalendarRecord `json:"calendar,omitempty"`
}

// NewCrawlerOutput returns an empty, successful output ready to be
// appended to by a Fetch/Transform pair.
func NewCrawlerOutput(source string, crawledAt time.Time) CrawlerOutput {
	return CrawlerOutput{
		Source:    source,
		CrawledAt: crawledAt,
		Success:   true,
		Stats:     make(map[string]any),
	}
}
