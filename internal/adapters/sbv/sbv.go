// Package sbv adapts State Bank of Vietnam publications (exchange
// rates, interbank/policy rates, gold, credit, CPI releases, OMO
// auctions, and regulatory news with PDF attachments) into the
// canonical model.
package sbv

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/adapters"
	"github.com/M1nhHoang/marketintel/internal/extractor"
)

// Endpoints are the upstream pages this adapter scrapes, kept as
// adapter-internal detail rather than shared configuration.
type Endpoints struct {
	ExchangeRateURL string
	InterbankURL    string
	PolicyRateURL   string
	GoldPriceURL    string
	CreditURL       string
	CPINewsURL      string
	OMOURL          string
	NewsURL         string
}

// DefaultEndpoints returns the SBV public data pages.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ExchangeRateURL: "https://www.sbv.gov.vn/ty-gia-trung-tam",
		InterbankURL:    "https://www.sbv.gov.vn/lai-suat-lien-ngan-hang",
		PolicyRateURL:   "https://www.sbv.gov.vn/lai-suat-dieu-hanh",
		GoldPriceURL:    "https://www.sbv.gov.vn/gia-vang",
		CreditURL:       "https://www.sbv.gov.vn/tang-truong-tin-dung",
		CPINewsURL:      "https://www.sbv.gov.vn/cpi",
		OMOURL:          "https://www.sbv.gov.vn/thi-truong-mo",
		NewsURL:         "https://www.sbv.gov.vn/thong-bao",
	}
}

// Adapter implements adapters.SourceAdapter for the State Bank of
// Vietnam.
type Adapter struct {
	endpoints Endpoints
	client    *http.Client
	extractor *extractor.Extractor
	log       zerolog.Logger
}

// New constructs the SBV adapter.
func New(endpoints Endpoints, ext *extractor.Extractor, log zerolog.Logger) *Adapter {
	return &Adapter{
		endpoints: endpoints,
		client:    &http.Client{},
		extractor: ext,
		log:       log.With().Str("adapter", "sbv").Logger(),
	}
}

// Name identifies this adapter for logging/rate-limiting.
func (a *Adapter) Name() string { return "sbv" }

// Fetch retrieves each SBV page and yields tagged raw rows; a single
// page failing does not abort the bundle.
func (a *Adapter) Fetch(ctx context.Context) (adapters.RawBundle, []error) {
	var bundle adapters.RawBundle
	var errs []error

	sources := []struct {
		url     string
		typ     string
		scraper func(*goquery.Document, string) []adapters.RawItem
	}{
		{a.endpoints.ExchangeRateURL, "exchange_rate", a.scrapeRateTable("exchange_rate")},
		{a.endpoints.InterbankURL, "interbank_rate", a.scrapeRateTable("interbank_rate")},
		{a.endpoints.PolicyRateURL, "policy_rate", a.scrapeRateTable("policy_rate")},
		{a.endpoints.GoldPriceURL, "gold_price", a.scrapeRateTable("gold_price")},
		{a.endpoints.CreditURL, "credit", a.scrapeRateTable("credit")},
		{a.endpoints.CPINewsURL, "cpi", a.scrapeNewsList("cpi")},
		{a.endpoints.OMOURL, "omo", a.scrapeOMOTable},
		{a.endpoints.NewsURL, "news", a.scrapeNewsList("news")},
	}

	for _, src := range sources {
		doc, err := a.fetchDocument(ctx, src.url)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s (%s): %w", src.typ, src.url, err))
			continue
		}
		bundle.Items = append(bundle.Items, src.scraper(doc, src.url)...)
	}

	return bundle, errs
}

func (a *Adapter) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// scrapeRateTable returns a scraper for the common SBV rate-table
// layout: rows of (label, value[, date]) cells.
func (a *Adapter) scrapeRateTable(itemType string) func(*goquery.Document, string) []adapters.RawItem {
	return func(doc *goquery.Document, sourceURL string) []adapters.RawItem {
		var items []adapters.RawItem
		doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label := strings.TrimSpace(cells.Eq(0).Text())
			value := strings.TrimSpace(cells.Eq(1).Text())
			date := ""
			if cells.Length() >= 3 {
				date = strings.TrimSpace(cells.Eq(2).Text())
			}
			if label == "" || value == "" {
				return
			}
			items = append(items, adapters.RawItem{
				Type: itemType,
				Data: map[string]any{
					"label":      label,
					"value":      value,
					"date":       date,
					"source_url": sourceURL,
				},
			})
		})
		return items
	}
}

// scrapeNewsList returns a scraper for SBV's press-release/news index
// layout: a list of article anchors with a title and a published-date
// caption.
func (a *Adapter) scrapeNewsList(itemType string) func(*goquery.Document, string) []adapters.RawItem {
	return func(doc *goquery.Document, sourceURL string) []adapters.RawItem {
		var items []adapters.RawItem
		doc.Find(".news-item, .list-news li").Each(func(_ int, sel *goquery.Selection) {
			link := sel.Find("a").First()
			title := strings.TrimSpace(link.Text())
			href, _ := link.Attr("href")
			date := strings.TrimSpace(sel.Find(".date, .time").First().Text())
			if title == "" || href == "" {
				return
			}
			items = append(items, adapters.RawItem{
				Type: itemType,
				Data: map[string]any{
					"title":       title,
					"url":         href,
					"published":   date,
					"source_url":  sourceURL,
				},
			})
		})
		return items
	}
}

// scrapeOMOTable parses OMO auction round tables: per-term rows plus a
// "Tổng cộng" total row per round, across a page listing multiple
// rounds/dates.
func (a *Adapter) scrapeOMOTable(doc *goquery.Document, sourceURL string) []adapters.RawItem {
	var items []adapters.RawItem
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		items = append(items, adapters.RawItem{
			Type: "omo",
			Data: map[string]any{
				"date":      strings.TrimSpace(cells.Eq(0).Text()),
				"term":      strings.TrimSpace(cells.Eq(1).Text()),
				"direction": strings.TrimSpace(cells.Eq(2).Text()),
				"volume":    strings.TrimSpace(cells.Eq(3).Text()),
				"source_url": sourceURL,
			},
		})
	})
	return items
}
