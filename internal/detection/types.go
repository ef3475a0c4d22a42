package detection

import (
	"time"

	"github.com/shopspring/decimal"

	"fuel-fraud-alerts/internal/lifecycle"
)

// AlertType tags an alert with the rule category that produced it.
type AlertType string

const (
	TypeUnitPriceOutlier      AlertType = "unit_price_outlier"
	TypeImprobableVelocity    AlertType = "improbable_velocity"
	TypeDuplicateInvoice      AlertType = "duplicate_invoice"
	TypeOffHours              AlertType = "off_hours"
	TypeRoundNumberClustering AlertType = "round_number_clustering"
	TypeZeroVarianceRun       AlertType = "zero_variance_run"
)

// Severity weighs a finding for triage ordering.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// String renders the severity for storage and display.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// SeverityFromString parses a stored severity, defaulting to low.
func SeverityFromString(v string) Severity {
	switch v {
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Sale is one metered dispensing transaction, immutable once recorded.
type Sale struct {
	ID            int64
	StationID     int64
	StationCode   string
	Timestamp     time.Time
	Liters        decimal.Decimal
	Amount        decimal.Decimal
	InvoiceNumber string
}

// UnitPrice derives the per-liter price. Callers must ensure Liters > 0;
// the engine filters out rows that do not.
func (s Sale) UnitPrice() decimal.Decimal {
	return s.Amount.Div(s.Liters)
}

// Baseline is a station's rolling statistical normal over the trailing
// window, excluding the analysis date itself.
type Baseline struct {
	StationID       int64
	Samples         int
	MeanUnitPrice   decimal.Decimal
	StdDevUnitPrice decimal.Decimal
	MeanLiters      decimal.Decimal
	MeanAmount      decimal.Decimal
	// OpenMinute/CloseMinute bound the typical operating window in minutes
	// from local midnight. Equal values mean the window is unknown.
	OpenMinute  int
	CloseMinute int
	// RoundShare is the historical proportion of sales with round liters
	// or amounts.
	RoundShare float64
	Pumps      int
}

// Finding is a candidate anomaly produced by one rule, before dedup.
type Finding struct {
	Type        AlertType
	Sale        *Sale
	StationID   int64
	Description string
	Severity    Severity
}

// Alert is a materialized, lifecycle-tracked finding awaiting resolution.
type Alert struct {
	ID          int64
	Type        AlertType
	Description string
	SaleID      *int64
	StationID   int64
	Severity    Severity
	Status      lifecycle.Status
	DetectedAt  time.Time
	ResolvedAt  *time.Time
	ResolvedBy  *int64
}

// Config carries every rule threshold explicitly so runs are reproducible
// and testable with varied thresholds.
type Config struct {
	Workers            int
	RepoTimeout        time.Duration
	Location           *time.Location
	SigmaMultiple      float64
	VelocityWindow     time.Duration
	MaxFlowLPM         float64
	OffHoursGrace      time.Duration
	RoundMultiple      int
	RoundMinShare      float64
	RoundFactor        float64
	RoundMinSales      int
	PricePrecision     int32
	RunLength          int
	MinBaselineSamples int
	DefaultPumps       int
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            8,
		RepoTimeout:        15 * time.Second,
		Location:           time.UTC,
		SigmaMultiple:      3.0,
		VelocityWindow:     10 * time.Minute,
		MaxFlowLPM:         45.0,
		OffHoursGrace:      30 * time.Minute,
		RoundMultiple:      10,
		RoundMinShare:      0.6,
		RoundFactor:        2.0,
		RoundMinSales:      20,
		PricePrecision:     3,
		RunLength:          5,
		MinBaselineSamples: 50,
		DefaultPumps:       4,
	}
}

func (c Config) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

func (c Config) pumps(base Baseline) int {
	if base.Pumps > 0 {
		return base.Pumps
	}
	if c.DefaultPumps > 0 {
		return c.DefaultPumps
	}
	return 1
}
