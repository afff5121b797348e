package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// Show prints the most recent stored records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListDaily(ctx, nil, nil, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tSugar Close\tSugar Open\tUSD/CNY\tBDI\tImport Cost\tUpdated (UTC)")

	for _, rec := range records {
		open := "-"
		if rec.SugarOpen != nil {
			open = rec.SugarOpen.StringFixed(2)
		}
		bdi := "-"
		if rec.BDIIndex != nil {
			bdi = rec.BDIIndex.StringFixed(2)
		}
		cost := "-"
		if rec.ImportCostEstimate != nil {
			cost = rec.ImportCostEstimate.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.RecordDate.Format("2006-01-02"),
			rec.SugarClose.StringFixed(2),
			open,
			rec.USDCNYRate.StringFixed(4),
			bdi,
			cost,
			rec.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		)
	}

	writer.Flush()
	return nil
}
