package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fuel-fraud-alerts/internal/storage"
)

// Export renders daily sale volume and alert counts as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxDays = a.Config.ResolveMaxDays(opts.MaxDays)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	loc := a.Location()
	now := time.Now().In(loc)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	if opts.To != nil {
		to = *opts.To
	}

	from := to.AddDate(0, 0, -(opts.MaxDays - 1))
	if opts.From != nil {
		from = *opts.From
	}

	if to.Before(from) {
		return errors.New("from must not be after to")
	}
	if span := int(to.Sub(from).Hours()/24) + 1; span > opts.MaxDays {
		a.Logger.Warn().Int("days", span).Int("max", opts.MaxDays).Msg("clamping export range")
		from = to.AddDate(0, 0, -(opts.MaxDays - 1))
	}

	days, err := store.ListDailyActivity(ctx, from, to)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		a.Logger.Info().Msg("no activity found for export window")
		return nil
	}

	a.Logger.Info().
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Int("days", len(days)).
		Msg("exporting daily activity")

	if opts.CSVPath != "" {
		if err := writeActivityCSV(opts.CSVPath, days); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeActivityPNG(opts.PNGPath, days); err != nil {
			return err
		}
	}

	return nil
}

func writeActivityCSV(path string, days []storage.DayActivity) error {
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

	header := []string{"day", "sales", "liters", "amount", "alerts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, day := range days {
		record := []string{
			day.Day.Format("2006-01-02"),
			formatInt(day.Sales),
			day.Liters.StringFixed(1),
			day.Amount.StringFixed(2),
			formatInt(day.Alerts),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeActivityPNG(path string, days []storage.DayActivity) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(days))
	liters := make([]float64, len(days))
	alerts := make([]float64, len(days))

	for i, day := range days {
		x[i] = day.Day
		liters[i] = day.Liters.InexactFloat64()
		alerts[i] = float64(day.Alerts)
	}

	volumeFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Liters sold",
			ValueFormatter: volumeFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Alerts",
			ValueFormatter: volumeFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Liters",
				XValues: x,
				YValues: liters,
			},
			chart.TimeSeries{
				Name:    "Alerts",
				XValues: x,
				YValues: alerts,
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

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
