package etl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sugarwatch/internal/normalize"
	"sugarwatch/internal/storage"
)

// Import-cost approximation: fixed ICE benchmark price (22 US cents/lb) times
// the exchange rate, times lb-per-tonne conversion (22.0462), times a 1.5
// duty multiplier, plus a linear freight proxy (BDI/10 + 200).
var (
	benchmarkPrice = decimal.NewFromInt(22)
	lbPerTonne     = decimal.NewFromFloat(22.0462)
	dutyMultiplier = decimal.NewFromFloat(1.5)
	freightDivisor = decimal.NewFromInt(10)
	freightBase    = decimal.NewFromInt(200)
)

// ImportCost computes the derived import-cost estimate, rounded to 2 decimals.
func ImportCost(rate, bdi decimal.Decimal) decimal.Decimal {
	cost := benchmarkPrice.Mul(rate).Mul(lbPerTonne).Mul(dutyMultiplier).
		Add(bdi.Div(freightDivisor).Add(freightBase))
	return cost.Round(2)
}

// Merge joins the normalized series onto the sugar trading calendar.
//
// The sugar series anchors a left join: a date with no sugar quote produces
// no output. Exchange rate and freight index attach on exact-date match, are
// forward-filled in ascending date order, and rows that still miss either
// after the fill are dropped. Dates before cutoff are excluded. Output is
// ascending by date with the derived cost populated on every row.
func Merge(sugar []normalize.SugarPoint, fx, bdi []normalize.Point, cutoff time.Time) []storage.MarketDaily {
	sorted := make([]normalize.SugarPoint, len(sugar))
	copy(sorted, sugar)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	fxByDate := indexByDate(fx)
	bdiByDate := indexByDate(bdi)

	records := make([]storage.MarketDaily, 0, len(sorted))
	var lastFX, lastBDI *decimal.Decimal
	for _, point := range sorted {
		if v, ok := fxByDate[point.Date]; ok {
			value := v
			lastFX = &value
		}
		if v, ok := bdiByDate[point.Date]; ok {
			value := v
			lastBDI = &value
		}

		if point.Date.Before(cutoff) {
			continue
		}
		if lastFX == nil || lastBDI == nil {
			// no earlier observation exists at all; the row cannot be completed
			continue
		}

		rate := *lastFX
		freight := *lastBDI
		cost := ImportCost(rate, freight)

		records = append(records, storage.MarketDaily{
			RecordDate:         point.Date,
			SugarClose:         point.Close,
			SugarOpen:          point.Open,
			USDCNYRate:         rate,
			BDIIndex:           &freight,
			ImportCostEstimate: &cost,
		})
	}
	return records
}

func indexByDate(points []normalize.Point) map[time.Time]decimal.Decimal {
	byDate := make(map[time.Time]decimal.Decimal, len(points))
	for _, p := range points {
		byDate[p.Date] = p.Value
	}
	return byDate
}
