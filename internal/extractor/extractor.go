// Package extractor fetches article HTML and attached PDFs, applies
// size/time budgets, and extracts normalized text.
package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// Budgets configures the extractor's size/time limits.
type Budgets struct {
	HTTPTimeout   time.Duration
	PDFTimeout    time.Duration
	MaxPDFSize    int64
	MaxRetries    int
	RetryBaseWait time.Duration
}

// DefaultBudgets matches spec.md §4.3's figures.
func DefaultBudgets() Budgets {
	return Budgets{
		HTTPTimeout:   60 * time.Second,
		PDFTimeout:    15 * time.Minute,
		MaxPDFSize:    50 * 1024 * 1024,
		MaxRetries:    3,
		RetryBaseWait: 5 * time.Second,
	}
}

// Article is the normalized result of fetching and parsing one page.
type Article struct {
	Title       string
	PublishedAt time.Time
	Categories  []string
	Summary     string
	Body        string
	Attachments []domain.Attachment
}

// Extractor fetches and parses article pages and PDF attachments.
type Extractor struct {
	client  *http.Client
	budgets Budgets
	log     zerolog.Logger
}

// New builds an Extractor with its own *http.Client, mirroring the
// teacher's per-component HTTP client idiom.
func New(budgets Budgets, log zerolog.Logger) *Extractor {
	return &Extractor{
		client:  &http.Client{Timeout: budgets.HTTPTimeout},
		budgets: budgets,
		log:     log.With().Str("component", "extractor").Logger(),
	}
}

// FetchArticle downloads and parses the HTML at url, discovering and
// extracting PDF attachments along the way.
func (e *Extractor) FetchArticle(ctx context.Context, url string) (*Article, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budgets.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch article %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch article %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse article %s: %w", url, err)
	}

	article := &Article{
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Summary: strings.TrimSpace(doc.Find("meta[name='description']").AttrOr("content", "")),
		Body:    strings.TrimSpace(doc.Find("article").Text()),
	}
	if article.Body == "" {
		article.Body = strings.TrimSpace(doc.Find("body").Text())
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasSuffix(strings.ToLower(href), ".pdf") {
			article.Attachments = append(article.Attachments, domain.Attachment{
				URL:         href,
				Filename:    filenameFromURL(href),
				ContentType: "application/pdf",
			})
		}
	})

	for i := range article.Attachments {
		text, err := e.FetchPDFText(ctx, article.Attachments[i].URL)
		if err != nil {
			e.log.Warn().Err(err).Str("url", article.Attachments[i].URL).Msg("pdf attachment extraction failed")
			continue
		}
		article.Attachments[i].Text = text
	}

	return article, nil
}

func filenameFromURL(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// drainAndClose reads the remainder of a body so the underlying
// connection can be reused, then closes it.
func drainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
