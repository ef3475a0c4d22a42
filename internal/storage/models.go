package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"fuel-fraud-alerts/internal/detection"
)

// Station is a fuel retail location. The code is validated at creation and
// never changes; deactivation is a soft delete so historical sale and alert
// references stay valid.
type Station struct {
	ID        int64
	Name      string
	Location  string
	Code      string
	Pumps     int
	Active    bool
	CreatedAt time.Time
}

// AlertView is a persisted alert joined with its station for display.
type AlertView struct {
	detection.Alert
	StationName string
	Day         time.Time
}

// AlertKey identifies a persisted alert for cross-run suppression.
type AlertKey struct {
	Type      detection.AlertType
	SaleID    int64
	StationID int64
}

// Key derives the suppression key for an engine alert.
func Key(a detection.Alert) AlertKey {
	key := AlertKey{Type: a.Type, StationID: a.StationID}
	if a.SaleID != nil {
		key.SaleID = *a.SaleID
	}
	return key
}

// CountByLabel is one row of a grouped count.
type CountByLabel struct {
	Label string
	Count int64
}

// Summary aggregates the dashboard view over stations, sales, and alerts.
type Summary struct {
	ActiveStations int64
	TotalAlerts    int64
	Pending        int64
	Confirmed      int64
	FalsePositives int64
	ByType         []CountByLabel
	ByStation      []CountByLabel
	SalesToday     PeriodSales
	SalesMonth     PeriodSales
}

// PeriodSales totals sales over one reporting period.
type PeriodSales struct {
	Count  int64
	Amount decimal.Decimal
	Liters decimal.Decimal
}

// DayActivity is one day of sale volume and detected alerts, for export.
type DayActivity struct {
	Day    time.Time
	Sales  int64
	Liters decimal.Decimal
	Amount decimal.Decimal
	Alerts int64
}
