package sbv

import (
	"testing"

	"github.com/M1nhHoang/marketintel/internal/adapters"
)

// TestOMOAggregation mirrors spec.md §8 scenario 3: two "Mua kỳ hạn"
// totals and one "Bán kỳ hạn" total on the same date aggregate into
// one net/inject/withdraw triple, with per-term breakdown retained
// from the non-total rows.
func TestOMOAggregation(t *testing.T) {
	rows := []omoRow{
		{date: "03/02/2026", term: "Tổng cộng", direction: "Mua kỳ hạn", volume: 20000},
		{date: "03/02/2026", term: "Tổng cộng", direction: "Mua kỳ hạn", volume: 15000},
		{date: "03/02/2026", term: "Tổng cộng", direction: "Bán kỳ hạn", volume: 5000},
		{date: "03/02/2026", term: "7 ngày", direction: "Mua kỳ hạn", volume: 12000},
		{date: "03/02/2026", term: "14 ngày", direction: "Mua kỳ hạn", volume: 23000},
	}

	metrics := aggregateOMO(rows)
	byID := make(map[string]float64)
	for _, m := range metrics {
		byID[m.IndicatorID] = m.Value
	}

	if got, want := byID["omo_net_daily"], 30000.0; got != want {
		t.Errorf("omo_net_daily = %v, want %v", got, want)
	}
	if got, want := byID["omo_inject_daily"], 35000.0; got != want {
		t.Errorf("omo_inject_daily = %v, want %v", got, want)
	}
	if got, want := byID["omo_withdraw_daily"], 5000.0; got != want {
		t.Errorf("omo_withdraw_daily = %v, want %v", got, want)
	}

	var net *float64
	for _, m := range metrics {
		if m.IndicatorID == "omo_net_daily" {
			v, ok := m.Attributes["7d"].(float64)
			if !ok || v != 12000 {
				t.Errorf("omo_net_daily attributes[7d] = %v, want 12000", m.Attributes["7d"])
			}
			v14, ok := m.Attributes["14d"].(float64)
			if !ok || v14 != 23000 {
				t.Errorf("omo_net_daily attributes[14d] = %v, want 23000", m.Attributes["14d"])
			}
			net = &v
		}
	}
	if net == nil {
		t.Fatal("expected omo_net_daily metric to be emitted")
	}
}

func TestOMOAggregationSkipsZeroWithdrawMetric(t *testing.T) {
	rows := []omoRow{
		{date: "04/02/2026", term: "Tổng cộng", direction: "Mua kỳ hạn", volume: 10000},
	}
	metrics := aggregateOMO(rows)
	for _, m := range metrics {
		if m.IndicatorID == "omo_withdraw_daily" {
			t.Error("omo_withdraw_daily should not be emitted when withdraw is zero")
		}
	}
}

func TestParseOMORowRejectsUnparsableVolume(t *testing.T) {
	item := adapters.RawItem{Type: "omo", Data: map[string]any{
		"date": "03/02/2026", "term": "Tổng cộng", "direction": "Mua kỳ hạn", "volume": "n/a",
	}}
	if _, ok := parseOMORow(item); ok {
		t.Error("parseOMORow should reject an unparsable volume")
	}
}

// TestCPIFanOut mirrors spec.md §4.2's up-to-four-metrics fan-out,
// tolerant of tăng (+) / giảm (-) phrasing.
func TestCPIFanOut(t *testing.T) {
	item := adapters.RawItem{Type: "cpi", Data: map[string]any{
		"title": "CPI tháng 10 tăng 0,3%",
		"summary": "CPI so với cùng kỳ năm trước tăng 3,2%. CPI bình quân 10 tháng giảm 0,1%. " +
			"Lạm phát cơ bản tháng 10 tăng 0,25%.",
		"published":  "21/10/2025",
		"source_url": "https://sbv.gov.vn/cpi-thang-10",
	}}

	metrics := transformCPI(item)
	byID := make(map[string]float64)
	for _, m := range metrics {
		byID[m.IndicatorID] = m.Value
	}

	if len(metrics) != 4 {
		t.Fatalf("expected 4 CPI metrics, got %d: %+v", len(metrics), byID)
	}
	if got, want := byID["cpi_mom"], 0.3; got != want {
		t.Errorf("cpi_mom = %v, want %v", got, want)
	}
	if got, want := byID["cpi_yoy"], 3.2; got != want {
		t.Errorf("cpi_yoy = %v, want %v", got, want)
	}
	if got, want := byID["cpi_ytd"], -0.1; got != want {
		t.Errorf("cpi_ytd = %v, want %v (giảm should negate)", got, want)
	}
	if got, want := byID["core_inflation"], 0.25; got != want {
		t.Errorf("core_inflation = %v, want %v", got, want)
	}
}

func TestCPIFanOutPartialMatchSkipsMissingMetrics(t *testing.T) {
	item := adapters.RawItem{Type: "cpi", Data: map[string]any{
		"title":   "CPI tháng 10 tăng 0,3%",
		"summary": "",
	}}
	metrics := transformCPI(item)
	if len(metrics) != 1 {
		t.Fatalf("expected only cpi_mom to match, got %d metrics", len(metrics))
	}
	if metrics[0].IndicatorID != "cpi_mom" {
		t.Errorf("IndicatorID = %q, want cpi_mom", metrics[0].IndicatorID)
	}
}

func TestIndicatorMapTranslatesVietnameseLabels(t *testing.T) {
	if got := indicatorMap["qua đêm"]; got != "interbank_on" {
		t.Errorf("indicatorMap[qua đêm] = %q, want interbank_on", got)
	}
}
