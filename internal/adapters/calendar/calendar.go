// Package calendar adapts a scheduled-economic-event feed into the
// canonical model. It has no news/article component, so it does not
// implement adapters.ArticleFetcher.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/adapters"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

const indexURL = "https://www.investing.com/economic-calendar/"

// Adapter implements adapters.SourceAdapter for the economic calendar.
type Adapter struct {
	client *http.Client
	log    zerolog.Logger
}

// New constructs the calendar adapter.
func New(log zerolog.Logger) *Adapter {
	return &Adapter{
		client: &http.Client{},
		log:    log.With().Str("adapter", "calendar").Logger(),
	}
}

// Name identifies this adapter.
func (a *Adapter) Name() string { return "calendar" }

// Fetch parses the economic calendar page for the current week.
func (a *Adapter) Fetch(ctx context.Context) (adapters.RawBundle, []error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return adapters.RawBundle{}, []error{err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return adapters.RawBundle{}, []error{fmt.Errorf("fetch calendar: %w", err)}
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return adapters.RawBundle{}, []error{fmt.Errorf("parse calendar: %w", err)}
	}

	var items []adapters.RawItem
	doc.Find("tr.js-event-item").Each(func(_ int, row *goquery.Selection) {
		eventName := strings.TrimSpace(row.Find("td.event").Text())
		country := strings.TrimSpace(row.Find("td.flagCur span").AttrOr("title", ""))
		timeStr := strings.TrimSpace(row.Find("td.time").Text())
		importance := row.Find("td.sentiment").AttrOr("title", "")
		previous := strings.TrimSpace(row.Find("td.prev").Text())
		forecast := strings.TrimSpace(row.Find("td.fore").Text())
		actual := strings.TrimSpace(row.Find("td.act").Text())
		dateAttr, _ := row.Attr("data-event-datetime")

		if eventName == "" {
			return
		}
		items = append(items, adapters.RawItem{
			Type: "calendar",
			Data: map[string]any{
				"event_name": eventName,
				"country":    country,
				"time":       timeStr,
				"importance": importance,
				"previous":   previous,
				"forecast":   forecast,
				"actual":     actual,
				"datetime":   dateAttr,
			},
		})
	})

	return adapters.RawBundle{Items: items}, nil
}

// Transform maps raw rows to canonical calendar records.
func (a *Adapter) Transform(bundle adapters.RawBundle) domain.CrawlerOutput {
	output := domain.NewCrawlerOutput("calendar", time.Now())
	var skipped int
	for _, item := range bundle.Items {
		if item.Type != "calendar" {
			skipped++
			continue
		}
		eventName, _ := item.Data["event_name"].(string)
		if eventName == "" {
			continue
		}
		country, _ := item.Data["country"].(string)
		timeStr, _ := item.Data["time"].(string)
		importance, _ := item.Data["importance"].(string)

		date := ""
		if dt, _ := item.Data["datetime"].(string); dt != "" {
			if parsed, ok := adapters.ParseDate(dt); ok {
				date = parsed.Format("2006-01-02")
			}
		}
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}

		record := domain.CalendarRecord{
			EventName:  eventName,
			Country:    country,
			Date:       date,
			Time:       timeStr,
			Importance: importance,
		}
		record.Previous = optional(item.Data["previous"])
		record.Forecast = optional(item.Data["forecast"])
		record.Actual = optional(item.Data["actual"])

		output.Calendar = append(output.Calendar, record)
	}
	output.Stats["unknown_item_types_skipped"] = skipped
	return output
}

func optional(v any) *string {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	return &s
}
