// Package normalize converts provider-native raw series into canonical
// (date, value) points: alias-tolerant field lookup, unit correction, and
// date-quality filtering. Sorting is deferred to merge time.
package normalize

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sugarwatch/internal/fetcher"
)

// Point is one canonical observation of a single-valued series.
type Point struct {
	Date  time.Time
	Value decimal.Decimal
}

// SugarPoint is one canonical daily quote for the tracked contract.
type SugarPoint struct {
	Date  time.Time
	Open  *decimal.Decimal
	Close decimal.Decimal
}

// Upstream column names drift between localized and English variants. Each
// canonical field maps to an ordered list of accepted aliases; the first
// alias present wins.
var (
	sugarDateAliases  = []string{"date", "d"}
	sugarOpenAliases  = []string{"open", "o"}
	sugarCloseAliases = []string{"close", "c"}

	fxDateAliases = []string{"日期", "date"}
	fxRateAliases = []string{"中行汇买价", "rate"}

	freightDateAliases  = []string{"日期", "date"}
	freightValueAliases = []string{"指数", "index"}
)

// per100Threshold marks rates quoted per 100 units of foreign currency.
// Bank quotes arrive as e.g. 725.5 (CNY per 100 USD) and must become 7.2550.
var per100Threshold = decimal.NewFromInt(50)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"20060102",
}

// Sugar normalizes the futures quote series.
func Sugar(series fetcher.RawSeries) ([]SugarPoint, error) {
	dateKey, err := resolveAlias(series, sugarDateAliases)
	if err != nil {
		return nil, err
	}
	closeKey, err := resolveAlias(series, sugarCloseAliases)
	if err != nil {
		return nil, err
	}
	openKey, _ := resolveAlias(series, sugarOpenAliases)

	points := make([]SugarPoint, 0, len(series.Rows))
	for _, row := range series.Rows {
		date, ok := parseDate(row[dateKey])
		if !ok {
			continue
		}

		closeVal, err := decimal.NewFromString(row[closeKey])
		if err != nil {
			return nil, fmt.Errorf("parse %s close %q: %w", series.Source, row[closeKey], err)
		}

		point := SugarPoint{Date: date, Close: closeVal}
		if openKey != "" {
			if raw, present := row[openKey]; present {
				open, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, fmt.Errorf("parse %s open %q: %w", series.Source, raw, err)
				}
				point.Open = &open
			}
		}
		points = append(points, point)
	}
	return points, nil
}

// FX normalizes the exchange-rate series, correcting per-100 quotes.
func FX(series fetcher.RawSeries) ([]Point, error) {
	dateKey, err := resolveAlias(series, fxDateAliases)
	if err != nil {
		return nil, err
	}
	rateKey, err := resolveAlias(series, fxRateAliases)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(series.Rows))
	for _, row := range series.Rows {
		date, ok := parseDate(row[dateKey])
		if !ok {
			continue
		}

		rate, err := decimal.NewFromString(row[rateKey])
		if err != nil {
			return nil, fmt.Errorf("parse %s rate %q: %w", series.Source, row[rateKey], err)
		}
		if rate.GreaterThan(per100Threshold) {
			rate = rate.Div(decimal.NewFromInt(100)).Round(4)
		}

		points = append(points, Point{Date: date, Value: rate})
	}
	return points, nil
}

// Freight normalizes the freight index series.
func Freight(series fetcher.RawSeries) ([]Point, error) {
	dateKey, err := resolveAlias(series, freightDateAliases)
	if err != nil {
		return nil, err
	}
	valueKey, err := resolveAlias(series, freightValueAliases)
	if err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(series.Rows))
	for _, row := range series.Rows {
		date, ok := parseDate(row[dateKey])
		if !ok {
			continue
		}

		value, err := decimal.NewFromString(row[valueKey])
		if err != nil {
			return nil, fmt.Errorf("parse %s index %q: %w", series.Source, row[valueKey], err)
		}

		points = append(points, Point{Date: date, Value: value})
	}
	return points, nil
}

// resolveAlias picks the first accepted alias present in the series schema.
func resolveAlias(series fetcher.RawSeries, aliases []string) (string, error) {
	if len(series.Rows) == 0 {
		return "", fmt.Errorf("%s series is empty", series.Source)
	}
	first := series.Rows[0]
	for _, alias := range aliases {
		if _, ok := first[alias]; ok {
			return alias, nil
		}
	}
	return "", fmt.Errorf("%s series has none of the expected fields %v", series.Source, aliases)
}

// parseDate casts a raw date to a calendar date at UTC midnight. Rows with an
// unparseable date are dropped upstream; this is data-quality filtering, not
// an error.
func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
