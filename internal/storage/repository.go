package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuel-fraud-alerts/internal/detection"
)

const (
	listSalesForDaySQL = `SELECT
        s.id,
        s.station_id,
        st.code,
        s.sold_at,
        s.liters,
        s.amount,
        s.invoice_number
    FROM sales s
    JOIN stations st ON st.id = s.station_id
    WHERE st.active
      AND s.sold_at >= $1
      AND s.sold_at < $2
    ORDER BY s.sold_at, s.id;`

	baselineSQL = `SELECT
        COUNT(*),
        COALESCE(AVG(amount / liters), 0),
        COALESCE(STDDEV_SAMP(amount / liters), 0),
        COALESCE(AVG(liters), 0),
        COALESCE(AVG(amount), 0),
        COALESCE(percentile_cont(0.02) WITHIN GROUP (ORDER BY minute_of_day), 0),
        COALESCE(percentile_cont(0.98) WITHIN GROUP (ORDER BY minute_of_day), 0),
        COALESCE(AVG(CASE WHEN liters % $4 = 0 OR amount % $4 = 0 THEN 1.0 ELSE 0.0 END), 0)
    FROM (
        SELECT liters,
               amount,
               EXTRACT(HOUR FROM sold_at AT TIME ZONE $5) * 60
                   + EXTRACT(MINUTE FROM sold_at AT TIME ZONE $5) AS minute_of_day
        FROM sales
        WHERE station_id = $1
          AND sold_at >= $2
          AND sold_at < $3
          AND liters > 0
          AND amount > 0
    ) history;`

	stationPumpsSQL = `SELECT pumps FROM stations WHERE id = $1;`

	listActiveStationsSQL = `SELECT id, name, location, code, pumps, active, created_at
    FROM stations
    WHERE active
    ORDER BY code;`

	insertStationSQL = `INSERT INTO stations (name, location, code, pumps)
    VALUES ($1, $2, $3, $4)
    RETURNING id, created_at;`

	deactivateStationSQL = `UPDATE stations SET active = FALSE WHERE id = $1;`
)

// FetchSales returns all sales for the given civil day across active
// stations. The day is the start of the date in the analysis timezone.
func (s *Store) FetchSales(ctx context.Context, day time.Time) ([]detection.Sale, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	from := day
	to := day.AddDate(0, 0, 1)

	rows, queryErr := pool.Query(ctx, listSalesForDaySQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list sales for day: %w", queryErr)
	}
	defer rows.Close()

	sales := make([]detection.Sale, 0)
	for rows.Next() {
		sale, scanErr := scanSale(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sales = append(sales, sale)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sales, nil
}

// FetchStationBaseline derives the trailing-window statistics for one
// station as of the given date, excluding the date itself so the baseline
// cannot absorb the anomalies it is meant to expose.
func (s *Store) FetchStationBaseline(ctx context.Context, stationID int64, asOf time.Time) (detection.Baseline, error) {
	pool, err := s.getPool()
	if err != nil {
		return detection.Baseline{}, err
	}

	from := asOf.AddDate(0, 0, -s.opts.BaselineWindowDays)
	to := asOf

	var (
		samples     int64
		meanStr     string
		stddevStr   string
		litersStr   string
		amountStr   string
		openMinute  float64
		closeMinute float64
		roundShare  float64
	)

	row := pool.QueryRow(ctx, baselineSQL, stationID, from, to, s.opts.RoundMultiple, s.opts.Timezone)
	if scanErr := row.Scan(
		&samples,
		&meanStr,
		&stddevStr,
		&litersStr,
		&amountStr,
		&openMinute,
		&closeMinute,
		&roundShare,
	); scanErr != nil {
		return detection.Baseline{}, fmt.Errorf("baseline for station %d: %w", stationID, scanErr)
	}

	base := detection.Baseline{
		StationID:   stationID,
		Samples:     int(samples),
		OpenMinute:  int(math.Round(openMinute)),
		CloseMinute: int(math.Round(closeMinute)),
		RoundShare:  roundShare,
	}

	var convErr error
	if base.MeanUnitPrice, convErr = decimal.NewFromString(meanStr); convErr != nil {
		return detection.Baseline{}, fmt.Errorf("parse mean unit price: %w", convErr)
	}
	if base.StdDevUnitPrice, convErr = decimal.NewFromString(stddevStr); convErr != nil {
		return detection.Baseline{}, fmt.Errorf("parse unit price stddev: %w", convErr)
	}
	if base.MeanLiters, convErr = decimal.NewFromString(litersStr); convErr != nil {
		return detection.Baseline{}, fmt.Errorf("parse mean liters: %w", convErr)
	}
	if base.MeanAmount, convErr = decimal.NewFromString(amountStr); convErr != nil {
		return detection.Baseline{}, fmt.Errorf("parse mean amount: %w", convErr)
	}

	if scanErr := pool.QueryRow(ctx, stationPumpsSQL, stationID).Scan(&base.Pumps); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return base, nil
		}
		return detection.Baseline{}, fmt.Errorf("station pumps: %w", scanErr)
	}

	return base, nil
}

// ListActiveStations lists stations not yet soft-deleted.
func (s *Store) ListActiveStations(ctx context.Context) ([]Station, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveStationsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list stations: %w", queryErr)
	}
	defer rows.Close()

	stations := make([]Station, 0)
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Location, &st.Code, &st.Pumps, &st.Active, &st.CreatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return stations, nil
}

// CreateStation inserts a station. The caller validates the code format;
// the unique index rejects reuse.
func (s *Store) CreateStation(ctx context.Context, st Station) (Station, error) {
	pool, err := s.getPool()
	if err != nil {
		return Station{}, err
	}

	row := pool.QueryRow(ctx, insertStationSQL, st.Name, st.Location, st.Code, st.Pumps)
	if scanErr := row.Scan(&st.ID, &st.CreatedAt); scanErr != nil {
		return Station{}, fmt.Errorf("insert station: %w", scanErr)
	}
	st.Active = true
	return st, nil
}

// DeactivateStation soft-deletes a station, preserving sale and alert history.
func (s *Store) DeactivateStation(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, deactivateStationSQL, id)
	if execErr != nil {
		return fmt.Errorf("deactivate station: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanSale(rows pgx.Rows) (detection.Sale, error) {
	var (
		sale      detection.Sale
		litersStr string
		amountStr string
	)

	if err := rows.Scan(
		&sale.ID,
		&sale.StationID,
		&sale.StationCode,
		&sale.Timestamp,
		&litersStr,
		&amountStr,
		&sale.InvoiceNumber,
	); err != nil {
		return detection.Sale{}, err
	}

	var convErr error
	if sale.Liters, convErr = decimal.NewFromString(litersStr); convErr != nil {
		return detection.Sale{}, fmt.Errorf("parse liters: %w", convErr)
	}
	if sale.Amount, convErr = decimal.NewFromString(amountStr); convErr != nil {
		return detection.Sale{}, fmt.Errorf("parse amount: %w", convErr)
	}

	return sale, nil
}
