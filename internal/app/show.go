package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	defer closeStore()

	alerts, err := store.ListAlerts(ctx, opts.Limit, opts.Status, opts.Type)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tDay\tStation\tType\tSeverity\tStatus\tDetected (UTC)\tDescription")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.ID,
			alert.Day.Format("2006-01-02"),
			alert.StationName,
			alert.Type,
			alert.Severity,
			alert.Status,
			alert.DetectedAt.UTC().Format(time.RFC3339),
			sanitizeInline(alert.Description),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
