package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Summary prints the operator dashboard aggregates.
func (a *App) Summary(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot summarize")
	}
	defer closeStore()

	sum, err := store.Summary(ctx, time.Now().In(a.Location()))
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "Active stations\t%d\n", sum.ActiveStations)
	fmt.Fprintf(writer, "Total alerts\t%d\n", sum.TotalAlerts)
	fmt.Fprintf(writer, "  pending\t%d\n", sum.Pending)
	fmt.Fprintf(writer, "  confirmed\t%d\n", sum.Confirmed)
	fmt.Fprintf(writer, "  false positive\t%d\n", sum.FalsePositives)

	fmt.Fprintf(writer, "Sales today\t%d (%s liters, %s total)\n",
		sum.SalesToday.Count, sum.SalesToday.Liters.StringFixed(1), sum.SalesToday.Amount.StringFixed(2))
	fmt.Fprintf(writer, "Sales last 30 days\t%d (%s liters, %s total)\n",
		sum.SalesMonth.Count, sum.SalesMonth.Liters.StringFixed(1), sum.SalesMonth.Amount.StringFixed(2))

	if len(sum.ByType) > 0 {
		fmt.Fprintln(writer, "Alerts by type\t")
		for _, row := range sum.ByType {
			fmt.Fprintf(writer, "  %s\t%d\n", row.Label, row.Count)
		}
	}
	if len(sum.ByStation) > 0 {
		fmt.Fprintln(writer, "Alerts by station\t")
		for _, row := range sum.ByStation {
			fmt.Fprintf(writer, "  %s\t%d\n", row.Label, row.Count)
		}
	}

	writer.Flush()
	return nil
}
