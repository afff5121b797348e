package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sugarwatch/internal/fetcher"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFXAliasSelection(t *testing.T) {
	localized := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"日期": "2026-08-24", "中行汇买价": "7.12"},
	}}
	points, err := FX(localized)
	if err != nil {
		t.Fatalf("localized aliases should normalize: %v", err)
	}
	if len(points) != 1 || !points[0].Date.Equal(date(2026, 8, 24)) {
		t.Fatalf("unexpected points: %+v", points)
	}

	english := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"date": "2026-08-24", "rate": "7.12"},
	}}
	points, err = FX(english)
	if err != nil {
		t.Fatalf("english aliases should normalize: %v", err)
	}
	if !points[0].Value.Equal(decimal.RequireFromString("7.12")) {
		t.Fatalf("expected 7.12, got %s", points[0].Value)
	}
}

func TestFXNoAliasMatches(t *testing.T) {
	series := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"timestamp": "2026-08-24", "value": "7.12"},
	}}
	if _, err := FX(series); err == nil {
		t.Fatal("字段别名全部缺失时应报错")
	}
}

func TestFXPerHundredCorrection(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"725.5", "7.255"},
		{"712.345", "7.1235"},
		{"7.2", "7.2"},
		{"50", "50"},
		{"50.01", "0.5001"},
	}
	for _, tc := range cases {
		series := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
			{"日期": "2026-08-24", "中行汇买价": tc.raw},
		}}
		points, err := FX(series)
		if err != nil {
			t.Fatalf("normalize %s: %v", tc.raw, err)
		}
		if !points[0].Value.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("raw %s: expected %s, got %s", tc.raw, tc.want, points[0].Value)
		}
	}
}

func TestUnparseableDatesDroppedSilently(t *testing.T) {
	series := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"日期": "2026-08-24", "中行汇买价": "7.1"},
		{"日期": "not-a-date", "中行汇买价": "7.2"},
		{"日期": "", "中行汇买价": "7.3"},
	}}
	points, err := FX(series)
	if err != nil {
		t.Fatalf("bad dates must not be an error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 surviving point, got %d", len(points))
	}
}

func TestFXUnparseableValueIsError(t *testing.T) {
	series := fetcher.RawSeries{Source: "fx", Rows: []fetcher.RawRow{
		{"日期": "2026-08-24", "中行汇买价": "n/a"},
	}}
	if _, err := FX(series); err == nil {
		t.Fatal("unparseable rate should be an error")
	}
}

func TestSugarNormalization(t *testing.T) {
	series := fetcher.RawSeries{Source: "sugar", Rows: []fetcher.RawRow{
		{"d": "2026-08-24", "o": "6100", "c": "6112"},
		{"d": "2026-08-25", "c": "6120"},
	}}
	points, err := Sugar(series)
	if err != nil {
		t.Fatalf("normalize sugar: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Open == nil || !points[0].Open.Equal(decimal.NewFromInt(6100)) {
		t.Fatalf("expected open 6100, got %+v", points[0].Open)
	}
	if points[1].Open != nil {
		t.Fatal("missing open should stay nil")
	}
	if !points[1].Close.Equal(decimal.NewFromInt(6120)) {
		t.Fatalf("expected close 6120, got %s", points[1].Close)
	}
}

func TestFreightDateFormats(t *testing.T) {
	series := fetcher.RawSeries{Source: "freight", Rows: []fetcher.RawRow{
		{"日期": "2026/08/24", "指数": "1050"},
		{"日期": "20260825", "指数": "1060"},
	}}
	points, err := Freight(series)
	if err != nil {
		t.Fatalf("normalize freight: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if !points[0].Date.Equal(date(2026, 8, 24)) || !points[1].Date.Equal(date(2026, 8, 25)) {
		t.Fatalf("dates not cast to calendar days: %+v", points)
	}
}
