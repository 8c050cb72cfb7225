// Package vnexpress adapts VnExpress business-news listings into the
// canonical model.
package vnexpress

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
	"github.com/M1nhHoang/marketintel/internal/extractor"
)

const indexURL = "https://vnexpress.net/kinh-doanh"

// Adapter implements adapters.SourceAdapter for VnExpress business news.
type Adapter struct {
	client    *http.Client
	extractor *extractor.Extractor
	log       zerolog.Logger
}

// New constructs the VnExpress adapter.
func New(ext *extractor.Extractor, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:    &http.Client{},
		extractor: ext,
		log:       log.With().Str("adapter", "vnexpress").Logger(),
	}
}

// Name identifies this adapter.
func (a *Adapter) Name() string { return "vnexpress" }

// Fetch parses the business-news index page.
func (a *Adapter) Fetch(ctx context.Context) (adapters.RawBundle, []error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return adapters.RawBundle{}, []error{err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return adapters.RawBundle{}, []error{fmt.Errorf("fetch index: %w", err)}
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return adapters.RawBundle{}, []error{fmt.Errorf("parse index: %w", err)}
	}

	var items []adapters.RawItem
	doc.Find("article.item-news").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("h3 a, h2 a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		summary := strings.TrimSpace(sel.Find("p.description").Text())
		if title == "" || href == "" {
			return
		}
		items = append(items, adapters.RawItem{
			Type: "news",
			Data: map[string]any{
				"title":   title,
				"url":     href,
				"summary": summary,
			},
		})
	})

	return adapters.RawBundle{Items: items}, nil
}

// FetchArticle fetches the full body for one news item.
func (a *Adapter) FetchArticle(ctx context.Context, item *adapters.RawItem) error {
	url, _ := item.Data["url"].(string)
	if url == "" {
		return nil
	}
	article, err := a.extractor.FetchArticle(ctx, url)
	if err != nil {
		return err
	}
	item.Data["content"] = article.Body
	item.Data["published"] = article.PublishedAt
	return nil
}

// Transform maps raw news items to canonical events.
func (a *Adapter) Transform(bundle adapters.RawBundle) domain.CrawlerOutput {
	now := time.Now()
	output := domain.NewCrawlerOutput("vnexpress", now)
	var skipped int
	for _, item := range bundle.Items {
		if item.Type != "news" {
			skipped++
			continue
		}
		title, _ := item.Data["title"].(string)
		if title == "" {
			continue
		}
		url, _ := item.Data["url"].(string)
		summary, _ := item.Data["summary"].(string)
		content, _ := item.Data["content"].(string)
		publishedAt, ok := item.Data["published"].(time.Time)
		if !ok || publishedAt.IsZero() {
			publishedAt = now
		}

		output.Events = append(output.Events, domain.EventRecord{
			Type:        domain.EventNews,
			Title:       title,
			Summary:     summary,
			Content:     content,
			Source:      "vnexpress",
			SourceURL:   url,
			PublishedAt: publishedAt,
		})
	}
	output.Stats["unknown_item_types_skipped"] = skipped
	return output
}
