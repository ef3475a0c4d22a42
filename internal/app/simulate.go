package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fuel-fraud-alerts/internal/detection"
	"fuel-fraud-alerts/internal/service"
)

// Simulate 构造一个带有异常销售的合成站点日并运行检测流程。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Sales < 10 {
		return errors.New("--sales 必须至少为 10")
	}

	notifier := a.newNotifier()
	if opts.Notify {
		if !a.Config.Alerting.Enabled {
			return errors.New("alerting 未启用")
		}
		if notifier == nil {
			return errors.New("未配置任何告警通道")
		}
	} else {
		notifier = nil
	}

	loc := a.Location()
	day := time.Now().In(loc).AddDate(0, 0, -1)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	source := newSyntheticDay(day, opts.Sales)
	engine := detection.NewEngine(a.detectionConfig(), source, source, a.Logger)
	svc := service.New(a.Config, nil, engine, nil, notifier, loc, a.Logger)

	result, err := svc.ProcessDay(ctx, day)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s: %d alerts from %d synthetic sales\n",
		day.Format("2006-01-02"), len(result.Alerts), len(source.sales))
	for _, alert := range result.Alerts {
		fmt.Fprintf(os.Stdout, "  [%s] %s: %s\n", alert.Severity, alert.Type, alert.Description)
	}
	return nil
}

// syntheticDay serves one fabricated station with anomalies seeded into an
// otherwise plausible sale stream.
type syntheticDay struct {
	sales    []detection.Sale
	baseline detection.Baseline
}

func newSyntheticDay(day time.Time, count int) *syntheticDay {
	const (
		stationID   = int64(1)
		stationCode = "EST-101"
	)

	meanPrice := decimal.RequireFromString("1.050")
	sales := make([]detection.Sale, 0, count+3)

	// Plausible traffic: sales spread over business hours with small,
	// alternating price offsets and non-round volumes.
	open := day.Add(6 * time.Hour)
	step := (16 * time.Hour) / time.Duration(count)
	for i := 0; i < count; i++ {
		offset := decimal.New(int64(i%5)-2, -3)
		liters := decimal.RequireFromString("23.7").Add(decimal.New(int64(i%7), 0))
		price := meanPrice.Add(offset)
		sales = append(sales, detection.Sale{
			ID:            int64(i + 1),
			StationID:     stationID,
			StationCode:   stationCode,
			Timestamp:     open.Add(time.Duration(i) * step),
			Liters:        liters,
			Amount:        liters.Mul(price).Round(2),
			InvoiceNumber: fmt.Sprintf("INV-SIM%04d", i+1),
		})
	}

	// Seeded anomalies: a sale priced far off baseline, a reused invoice
	// number, and a sale outside the operating window.
	outlierLiters := decimal.RequireFromString("40.0")
	sales = append(sales, detection.Sale{
		ID:            int64(count + 1),
		StationID:     stationID,
		StationCode:   stationCode,
		Timestamp:     day.Add(12 * time.Hour),
		Liters:        outlierLiters,
		Amount:        outlierLiters.Mul(decimal.RequireFromString("1.250")).Round(2),
		InvoiceNumber: fmt.Sprintf("INV-SIM%04d", count+1),
	})
	dupLiters := decimal.RequireFromString("18.4")
	sales = append(sales, detection.Sale{
		ID:            int64(count + 2),
		StationID:     stationID,
		StationCode:   stationCode,
		Timestamp:     day.Add(14 * time.Hour),
		Liters:        dupLiters,
		Amount:        dupLiters.Mul(meanPrice).Round(2),
		InvoiceNumber: "INV-SIM0001",
	})
	nightLiters := decimal.RequireFromString("31.2")
	sales = append(sales, detection.Sale{
		ID:            int64(count + 3),
		StationID:     stationID,
		StationCode:   stationCode,
		Timestamp:     day.Add(3 * time.Hour),
		Liters:        nightLiters,
		Amount:        nightLiters.Mul(meanPrice).Round(2),
		InvoiceNumber: fmt.Sprintf("INV-SIM%04d", count+3),
	})

	return &syntheticDay{
		sales: sales,
		baseline: detection.Baseline{
			Samples:         500,
			MeanUnitPrice:   meanPrice,
			StdDevUnitPrice: decimal.RequireFromString("0.004"),
			MeanLiters:      decimal.RequireFromString("25.0"),
			MeanAmount:      decimal.RequireFromString("26.25"),
			OpenMinute:      360,
			CloseMinute:     1320,
			RoundShare:      0.05,
			Pumps:           4,
		},
	}
}

func (s *syntheticDay) FetchSales(ctx context.Context, day time.Time) ([]detection.Sale, error) {
	return s.sales, nil
}

func (s *syntheticDay) FetchStationBaseline(ctx context.Context, stationID int64, asOf time.Time) (detection.Baseline, error) {
	return s.baseline, nil
}

var _ detection.SaleSource = (*syntheticDay)(nil)
var _ detection.BaselineSource = (*syntheticDay)(nil)
