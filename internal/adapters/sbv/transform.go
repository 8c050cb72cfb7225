package sbv

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/M1nhHoang/marketintel/internal/adapters"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// indicatorMap translates SBV's Vietnamese table labels to canonical
// indicator ids, e.g. "Qua đêm" → interbank_on.
var indicatorMap = map[string]string{
	"qua đêm":        "interbank_on",
	"1 tuần":         "interbank_1w",
	"2 tuần":         "interbank_2w",
	"1 tháng":        "interbank_1m",
	"usd/vnd":        "usd_vnd_central",
	"tái cấp vốn":    "policy_refinance",
	"tái chiết khấu": "policy_rediscount",
	"vàng sjc":       "gold_sjc",
	"tín dụng":       "credit_growth",
}

// FetchArticle implements adapters.ArticleFetcher: the Driver calls it
// for items of type "news", which get their full body and PDF
// attachments fetched before Transform runs.
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
	item.Data["summary"] = article.Summary
	item.Data["attachments"] = article.Attachments
	return nil
}

// Transform is pure: identical input always yields identical output.
// Unknown item types are dropped and counted in
// Stats["unknown_item_types_skipped"].
func (a *Adapter) Transform(bundle adapters.RawBundle) domain.CrawlerOutput {
	output := domain.NewCrawlerOutput("sbv", time.Time{})
	var warnings int

	omoRows := make([]omoRow, 0)

	for _, item := range bundle.Items {
		switch item.Type {
		case "exchange_rate", "interbank_rate", "policy_rate", "gold_price", "credit":
			if m, ok := a.transformRateRow(item); ok {
				output.Metrics = append(output.Metrics, m)
			}
		case "cpi":
			output.Metrics = append(output.Metrics, transformCPI(item)...)
			if ev, ok := a.transformNews(item, domain.EventPressRelease); ok {
				output.Events = append(output.Events, ev)
			}
		case "omo":
			if row, ok := parseOMORow(item); ok {
				omoRows = append(omoRows, row)
			}
		case "news", "press_release":
			if ev, ok := a.transformNews(item, domain.EventNews); ok {
				output.Events = append(output.Events, ev)
			}
		case "circular":
			if ev, ok := a.transformNews(item, domain.EventCircular); ok {
				output.Events = append(output.Events, ev)
			}
		case "legal_document":
			if ev, ok := a.transformNews(item, domain.EventLegalDocument); ok {
				output.Events = append(output.Events, ev)
			}
		default:
			warnings++
		}
	}

	output.Metrics = append(output.Metrics, aggregateOMO(omoRows)...)
	output.Stats["unknown_item_types_skipped"] = warnings
	return output
}

func (a *Adapter) transformRateRow(item adapters.RawItem) (domain.MetricRecord, bool) {
	label, _ := item.Data["label"].(string)
	valueRaw, _ := item.Data["value"].(string)
	dateRaw, _ := item.Data["date"].(string)
	sourceURL, _ := item.Data["source_url"].(string)

	indicatorID, ok := indicatorMap[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		indicatorID = slugify(label)
	}

	value, ok := adapters.ParseVietnameseNumber(valueRaw)
	if !ok {
		return domain.MetricRecord{}, false
	}

	metricType := domain.MetricType(item.Type)
	date := adapters.ParseDateOrToday(dateRaw)

	return domain.MetricRecord{
		IndicatorID: indicatorID,
		Type:        metricType,
		DisplayName: label,
		Category:    item.Type,
		Value:       value,
		Date:        date,
		Source:      "sbv",
		SourceURL:   sourceURL,
	}, true
}

// CPI fan-out regexes: tolerant of "tăng" (+) / "giảm" (-) phrasing
// across up to four metrics per article.
var (
	cpiMoMRe  = regexp.MustCompile(`CPI tháng[^%]*?(tăng|giảm)\s*([\d.,]+)\s*%`)
	cpiYoYRe  = regexp.MustCompile(`CPI[^%]*?so với cùng kỳ[^%]*?(tăng|giảm)\s*([\d.,]+)\s*%`)
	cpiYtdRe  = regexp.MustCompile(`CPI[^%]*?bình quân[^%]*?(tăng|giảm)\s*([\d.,]+)\s*%`)
	coreInfRe = regexp.MustCompile(`(?i)lạm phát cơ bản[^%]*?(tăng|giảm)\s*([\d.,]+)\s*%`)
)

// cpiPatterns is a fixed-order list, not a map: ranging over a map
// would make the emitted metric order vary run to run, which would
// violate Transform's determinism contract.
var cpiPatterns = []struct {
	id string
	re *regexp.Regexp
}{
	{"cpi_mom", cpiMoMRe},
	{"cpi_yoy", cpiYoYRe},
	{"cpi_ytd", cpiYtdRe},
	{"core_inflation", coreInfRe},
}

func transformCPI(item adapters.RawItem) []domain.MetricRecord {
	title, _ := item.Data["title"].(string)
	summary, _ := item.Data["summary"].(string)
	text := title + " " + summary
	dateRaw, _ := item.Data["published"].(string)
	sourceURL, _ := item.Data["source_url"].(string)
	date := adapters.ParseDateOrToday(dateRaw)

	var metrics []domain.MetricRecord
	for _, p := range cpiPatterns {
		id, re := p.id, p.re
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, ok := adapters.ParseVietnameseNumber(m[2])
		if !ok {
			continue
		}
		if strings.EqualFold(m[1], "giảm") {
			value = -value
		}
		metrics = append(metrics, domain.MetricRecord{
			IndicatorID: id,
			Type:        domain.MetricCPI,
			DisplayName: id,
			Category:    "cpi",
			Unit:        "%",
			Value:       value,
			Date:        date,
			Source:      "sbv",
			SourceURL:   sourceURL,
		})
	}
	return metrics
}

type omoRow struct {
	date      string
	term      string
	direction string
	volume    float64
}

func parseOMORow(item adapters.RawItem) (omoRow, bool) {
	date, _ := item.Data["date"].(string)
	term, _ := item.Data["term"].(string)
	direction, _ := item.Data["direction"].(string)
	volumeRaw, _ := item.Data["volume"].(string)

	volume, ok := adapters.ParseVietnameseNumber(volumeRaw)
	if !ok {
		return omoRow{}, false
	}
	return omoRow{date: strings.TrimSpace(date), term: strings.TrimSpace(term), direction: strings.TrimSpace(direction), volume: volume}, true
}

var omoTermBuckets = map[string]string{
	"7 ngày":  "7d",
	"14 ngày": "14d",
	"28 ngày": "28d",
	"56 ngày": "56d",
}

// aggregateOMO groups OMO auction rows by date: sums "Mua kỳ hạn"
// totals into daily inject, sums "Bán kỳ hạn" totals into daily
// withdraw, accumulates a per-term breakdown from non-total rows, and
// emits omo_net_daily (+ inject/withdraw when non-zero) per date.
func aggregateOMO(rows []omoRow) []domain.MetricRecord {
	type daily struct {
		inject, withdraw float64
		terms            map[string]float64
		date              time.Time
	}
	byDate := make(map[string]*daily)

	for _, row := range rows {
		d, ok := byDate[row.date]
		if !ok {
			parsedDate := adapters.ParseDateOrToday(row.date)
			d = &daily{terms: make(map[string]float64), date: parsedDate}
			byDate[row.date] = d
		}

		isTotal := strings.Contains(strings.ToLower(row.term), "tổng cộng")
		isInject := strings.Contains(strings.ToLower(row.direction), "mua kỳ hạn")
		isWithdraw := strings.Contains(strings.ToLower(row.direction), "bán kỳ hạn")

		if isTotal {
			if isInject {
				d.inject += row.volume
			} else if isWithdraw {
				d.withdraw += row.volume
			}
			continue
		}

		if isInject {
			if bucket, ok := omoTermBuckets[strings.ToLower(row.term)]; ok {
				d.terms[bucket] += row.volume
			}
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var metrics []domain.MetricRecord
	for _, date := range dates {
		d := byDate[date]
		net := d.inject - d.withdraw

		attrs := make(map[string]any, len(d.terms))
		for k, v := range d.terms {
			attrs[k] = v
		}

		metrics = append(metrics, domain.MetricRecord{
			IndicatorID: "omo_net_daily",
			Type:        domain.MetricOMO,
			DisplayName: "OMO Net Daily",
			Category:    "omo",
			Unit:        "tỷ VND",
			Value:       net,
			Date:        d.date,
			Source:      "sbv",
			Attributes:  attrs,
		})
		if d.inject != 0 {
			metrics = append(metrics, domain.MetricRecord{
				IndicatorID: "omo_inject_daily",
				Type:        domain.MetricOMO,
				DisplayName: "OMO Inject Daily",
				Category:    "omo",
				Unit:        "tỷ VND",
				Value:       d.inject,
				Date:        d.date,
				Source:      "sbv",
				Attributes:  attrs,
			})
		}
		if d.withdraw != 0 {
			metrics = append(metrics, domain.MetricRecord{
				IndicatorID: "omo_withdraw_daily",
				Type:        domain.MetricOMO,
				DisplayName: "OMO Withdraw Daily",
				Category:    "omo",
				Unit:        "tỷ VND",
				Value:       d.withdraw,
				Date:        d.date,
				Source:      "sbv",
				Attributes:  attrs,
			})
		}
	}
	return metrics
}

func (a *Adapter) transformNews(item adapters.RawItem, eventType domain.EventType) (domain.EventRecord, bool) {
	title, _ := item.Data["title"].(string)
	if title == "" {
		return domain.EventRecord{}, false
	}
	summary, _ := item.Data["summary"].(string)
	content, _ := item.Data["content"].(string)
	url, _ := item.Data["url"].(string)
	dateRaw, _ := item.Data["published"].(string)
	attachments, _ := item.Data["attachments"].([]domain.Attachment)

	return domain.EventRecord{
		Type:        eventType,
		Title:       title,
		Summary:     summary,
		Content:     content,
		Source:      "sbv",
		SourceURL:   url,
		PublishedAt: adapters.ParseDateOrToday(dateRaw),
		Attachments: attachments,
	}, true
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
