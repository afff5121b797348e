package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"sugarwatch/internal/storage"
)

// Export renders stored history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListDailySince(ctx, from)
	if err != nil {
		return err
	}
	trimmed := records[:0]
	for _, rec := range records {
		if !rec.RecordDate.After(to) {
			trimmed = append(trimmed, rec)
		}
	}
	records = trimmed

	if len(records) == 0 {
		a.Logger.Info().Msg("no records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.MarketDaily, max int) []storage.MarketDaily {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.MarketDaily, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.MarketDaily) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"record_date", "sugar_close", "sugar_open", "usd_cny_rate", "bdi_index", "import_cost_estimate", "updated_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		open := ""
		if rec.SugarOpen != nil {
			open = rec.SugarOpen.String()
		}
		bdi := ""
		if rec.BDIIndex != nil {
			bdi = rec.BDIIndex.String()
		}
		cost := ""
		if rec.ImportCostEstimate != nil {
			cost = rec.ImportCostEstimate.String()
		}
		row := []string{
			rec.RecordDate.Format("2006-01-02"),
			rec.SugarClose.String(),
			open,
			rec.USDCNYRate.String(),
			bdi,
			cost,
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRecordsPNG(path string, records []storage.MarketDaily) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	sugarClose := make([]float64, len(records))
	importCost := make([]float64, len(records))

	for i, rec := range records {
		x[i] = rec.RecordDate
		sugarClose[i] = rec.SugarClose.InexactFloat64()
		if rec.ImportCostEstimate != nil {
			importCost[i] = rec.ImportCostEstimate.InexactFloat64()
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Sugar Close (CNY/t)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Import Cost Estimate (CNY/t)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Sugar Close",
				XValues: x,
				YValues: sugarClose,
			},
			chart.TimeSeries{
				Name:    "Import Cost Estimate",
				XValues: x,
				YValues: importCost,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
