package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuel-fraud-alerts/internal/lifecycle"
	"fuel-fraud-alerts/internal/validate"
)

// SaleSource supplies the day's sales across all active stations.
type SaleSource interface {
	FetchSales(ctx context.Context, day time.Time) ([]Sale, error)
}

// BaselineSource supplies a station's historical aggregate excluding the
// analysis date itself.
type BaselineSource interface {
	FetchStationBaseline(ctx context.Context, stationID int64, asOf time.Time) (Baseline, error)
}

// Engine orchestrates rule execution over one day's data. It never
// persists; the caller owns the transactional write and cross-run dedup
// against already-stored alerts.
type Engine struct {
	cfg       Config
	sales     SaleSource
	baselines BaselineSource
	rules     []RuleFunc
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine constructs the detection engine with the full rule catalogue.
func NewEngine(cfg Config, sales SaleSource, baselines BaselineSource, logger zerolog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:       cfg,
		sales:     sales,
		baselines: baselines,
		rules:     Catalogue(),
		logger:    logger.With().Str("component", "engine").Logger(),
		now:       time.Now,
	}
}

// ParseDay parses a YYYY-MM-DD civil date in the given location.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return day, nil
}

// Analyze scans the given calendar day and returns the deduplicated set of
// Pending alerts. A day with zero sales yields an empty result, not an
// error. Per-station evaluation fans out on a bounded worker pool; partial
// results are discarded on any failure or cancellation.
func (e *Engine) Analyze(ctx context.Context, day time.Time) ([]Alert, error) {
	if day.IsZero() {
		return nil, ErrInvalidDate
	}
	day = civilDay(day, e.cfg.location())

	sales, err := e.fetchSales(ctx, day)
	if err != nil {
		return nil, err
	}

	byStation := groupEligible(sales)
	if len(byStation) == 0 {
		return []Alert{}, nil
	}

	var (
		mu       sync.Mutex
		findings []Finding
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)

	for stationID, stationSales := range byStation {
		stationID, stationSales := stationID, stationSales
		group.Go(func() error {
			base, err := e.fetchBaseline(groupCtx, stationID, day)
			if err != nil {
				return err
			}

			var stationFindings []Finding
			for _, rule := range e.rules {
				stationFindings = append(stationFindings, rule(e.cfg, stationSales, base)...)
			}

			mu.Lock()
			findings = append(findings, stationFindings...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	alerts := e.materialize(dedupe(findings))
	e.logger.Info().
		Time("day", day).
		Int("stations", len(byStation)).
		Int("sales", len(sales)).
		Int("alerts", len(alerts)).
		Msg("analysis complete")
	return alerts, nil
}

func (e *Engine) fetchSales(ctx context.Context, day time.Time) ([]Sale, error) {
	fetchCtx, cancel := e.repoContext(ctx)
	defer cancel()

	sales, err := e.sales.FetchSales(fetchCtx, day)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetch sales: %v", ErrDataUnavailable, err)
	}
	return sales, nil
}

func (e *Engine) fetchBaseline(ctx context.Context, stationID int64, day time.Time) (Baseline, error) {
	fetchCtx, cancel := e.repoContext(ctx)
	defer cancel()

	base, err := e.baselines.FetchStationBaseline(fetchCtx, stationID, day)
	if err != nil {
		if ctx.Err() != nil {
			return Baseline{}, ctx.Err()
		}
		return Baseline{}, fmt.Errorf("%w: baseline for station %d: %v", ErrDataUnavailable, stationID, err)
	}
	return base, nil
}

func (e *Engine) repoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.RepoTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.RepoTimeout)
}

// groupEligible drops malformed rows rather than raising: analysis must be
// resilient to occasional bad upstream data.
func groupEligible(sales []Sale) map[int64][]Sale {
	now := time.Now()
	byStation := make(map[int64][]Sale)
	for _, sale := range sales {
		if sale.Liters.Sign() <= 0 || sale.Amount.Sign() <= 0 {
			continue
		}
		if sale.Timestamp.After(now) {
			continue
		}
		if validate.InvoiceNumber(sale.InvoiceNumber) != nil {
			continue
		}
		if sale.StationCode != "" && validate.StationCode(sale.StationCode) != nil {
			continue
		}
		byStation[sale.StationID] = append(byStation[sale.StationID], sale)
	}
	return byStation
}

type findingKey struct {
	Type      AlertType
	SaleID    int64
	StationID int64
}

// dedupe merges findings that would produce a semantically identical alert:
// same rule type against the same sale, or against the same station for
// aggregate findings. The highest severity wins; findings from different
// rules against one sale stay distinct.
func dedupe(findings []Finding) []Finding {
	seen := make(map[findingKey]int, len(findings))
	merged := make([]Finding, 0, len(findings))
	for _, f := range findings {
		key := findingKey{Type: f.Type, StationID: f.StationID}
		if f.Sale != nil {
			key.SaleID = f.Sale.ID
		}
		if idx, ok := seen[key]; ok {
			if f.Severity > merged[idx].Severity {
				merged[idx] = f
			}
			continue
		}
		seen[key] = len(merged)
		merged = append(merged, f)
	}
	return merged
}

func (e *Engine) materialize(findings []Finding) []Alert {
	detectedAt := e.now().UTC()
	alerts := make([]Alert, 0, len(findings))
	for _, f := range findings {
		alert := Alert{
			Type:        f.Type,
			Description: f.Description,
			StationID:   f.StationID,
			Severity:    f.Severity,
			Status:      lifecycle.StatusPending,
			DetectedAt:  detectedAt,
		}
		if f.Sale != nil {
			id := f.Sale.ID
			alert.SaleID = &id
		}
		alerts = append(alerts, alert)
	}

	// Merge order across stations is scheduling-dependent; sort so re-runs
	// over unchanged input return an identical set.
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].StationID != alerts[j].StationID {
			return alerts[i].StationID < alerts[j].StationID
		}
		if alerts[i].Type != alerts[j].Type {
			return alerts[i].Type < alerts[j].Type
		}
		return saleID(alerts[i]) < saleID(alerts[j])
	})
	return alerts
}

func saleID(a Alert) int64 {
	if a.SaleID == nil {
		return 0
	}
	return *a.SaleID
}

func civilDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// IsRetryable reports whether the caller may retry the analysis with
// backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}
