package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fuel-fraud-alerts/internal/detection"
	"fuel-fraud-alerts/internal/lifecycle"
)

const (
	insertAlertSQL = `INSERT INTO fraud_alerts (
        day,
        type,
        description,
        sale_id,
        station_id,
        severity,
        status,
        detected_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listAlertKeysForDaySQL = `SELECT type, COALESCE(sale_id, 0), station_id
    FROM fraud_alerts
    WHERE day = $1;`

	resolveAlertSQL = `UPDATE fraud_alerts
    SET status = $2,
        resolved_at = $3,
        resolved_by = $4
    WHERE id = $1
      AND status = 'pending';`

	alertStatusSQL = `SELECT status FROM fraud_alerts WHERE id = $1;`

	listAlertsSQL = `SELECT
        a.id,
        a.type,
        a.description,
        a.sale_id,
        a.station_id,
        a.severity,
        a.status,
        a.detected_at,
        a.resolved_at,
        a.resolved_by,
        a.day,
        st.name
    FROM fraud_alerts a
    JOIN stations st ON st.id = a.station_id
    WHERE ($2 = '' OR a.status = $2)
      AND ($3 = '' OR a.type = $3)
    ORDER BY a.detected_at DESC, a.id DESC
    LIMIT $1;`

	summaryStatusSQL = `SELECT
        (SELECT COUNT(*) FROM stations WHERE active),
        COUNT(*),
        COUNT(*) FILTER (WHERE status = 'pending'),
        COUNT(*) FILTER (WHERE status = 'confirmed'),
        COUNT(*) FILTER (WHERE status = 'false_positive')
    FROM fraud_alerts;`

	summaryByTypeSQL = `SELECT type, COUNT(*)
    FROM fraud_alerts
    GROUP BY type
    ORDER BY COUNT(*) DESC;`

	summaryByStationSQL = `SELECT st.name, COUNT(*)
    FROM fraud_alerts a
    JOIN stations st ON st.id = a.station_id
    GROUP BY st.name
    ORDER BY COUNT(*) DESC;`

	periodSalesSQL = `SELECT
        COUNT(*),
        COALESCE(SUM(amount), 0),
        COALESCE(SUM(liters), 0)
    FROM sales
    WHERE sold_at >= $1
      AND sold_at < $2;`

	dailyActivitySQL = `SELECT
        d.day,
        COALESCE(v.sales, 0),
        COALESCE(v.liters, 0),
        COALESCE(v.amount, 0),
        COALESCE(a.alerts, 0)
    FROM generate_series($1::date, $2::date, interval '1 day') AS d(day)
    LEFT JOIN (
        SELECT sold_at::date AS day, COUNT(*) AS sales, SUM(liters) AS liters, SUM(amount) AS amount
        FROM sales
        GROUP BY sold_at::date
    ) v ON v.day = d.day
    LEFT JOIN (
        SELECT day, COUNT(*) AS alerts
        FROM fraud_alerts
        GROUP BY day
    ) a ON a.day = d.day
    ORDER BY d.day;`
)

// AlertStore covers persistence of engine output and operator reads.
type AlertStore interface {
	InsertAlerts(ctx context.Context, day time.Time, alerts []detection.Alert) error
	ListAlertKeysForDay(ctx context.Context, day time.Time) (map[AlertKey]struct{}, error)
	ListAlerts(ctx context.Context, limit int, status, alertType string) ([]AlertView, error)
}

// InsertAlerts persists the full alert set for one analyzed day in a single
// transaction: either every alert lands or none does.
func (s *Store) InsertAlerts(ctx context.Context, day time.Time, alerts []detection.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin alert insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, alert := range alerts {
		var saleID interface{}
		if alert.SaleID != nil {
			saleID = *alert.SaleID
		}
		if _, execErr := tx.Exec(ctx, insertAlertSQL,
			day,
			string(alert.Type),
			alert.Description,
			saleID,
			alert.StationID,
			alert.Severity.String(),
			string(alert.Status),
			alert.DetectedAt,
		); execErr != nil {
			return fmt.Errorf("insert alert: %w", execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit alert insert: %w", err)
	}
	return nil
}

// ListAlertKeysForDay returns the suppression keys of alerts already
// persisted for a day, so re-runs do not duplicate writes.
func (s *Store) ListAlertKeysForDay(ctx context.Context, day time.Time) (map[AlertKey]struct{}, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertKeysForDaySQL, day)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert keys: %w", queryErr)
	}
	defer rows.Close()

	keys := make(map[AlertKey]struct{})
	for rows.Next() {
		var (
			typ       string
			saleID    int64
			stationID int64
		)
		if err := rows.Scan(&typ, &saleID, &stationID); err != nil {
			return nil, err
		}
		keys[AlertKey{Type: detection.AlertType(typ), SaleID: saleID, StationID: stationID}] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

// ResolveAlert applies a resolution guarded on the current status, so the
// at-most-one-transition invariant holds under concurrent requests.
func (s *Store) ResolveAlert(ctx context.Context, alertID int64, target lifecycle.Status, userID int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, resolveAlertSQL, alertID, string(target), at, userID)
	if execErr != nil {
		return fmt.Errorf("resolve alert: %w", execErr)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// CAS missed: distinguish a missing alert from one already resolved.
	var status string
	if scanErr := pool.QueryRow(ctx, alertStatusSQL, alertID).Scan(&status); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return lifecycle.ErrNotFound
		}
		return fmt.Errorf("alert status: %w", scanErr)
	}
	return lifecycle.ErrAlreadyResolved
}

// ListAlerts lists recent alerts, optionally filtered by status and type.
func (s *Store) ListAlerts(ctx context.Context, limit int, status, alertType string) ([]AlertView, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL, limit, status, alertType)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertView, 0, limit)
	for rows.Next() {
		view, scanErr := scanAlertView(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, view)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// Summary aggregates the operator dashboard counters.
func (s *Store) Summary(ctx context.Context, now time.Time) (Summary, error) {
	pool, err := s.getPool()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	row := pool.QueryRow(ctx, summaryStatusSQL)
	if scanErr := row.Scan(&sum.ActiveStations, &sum.TotalAlerts, &sum.Pending, &sum.Confirmed, &sum.FalsePositives); scanErr != nil {
		return Summary{}, fmt.Errorf("summary counters: %w", scanErr)
	}

	if sum.ByType, err = s.groupedCounts(ctx, summaryByTypeSQL); err != nil {
		return Summary{}, err
	}
	if sum.ByStation, err = s.groupedCounts(ctx, summaryByStationSQL); err != nil {
		return Summary{}, err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if sum.SalesToday, err = s.periodSales(ctx, today, today.AddDate(0, 0, 1)); err != nil {
		return Summary{}, err
	}
	if sum.SalesMonth, err = s.periodSales(ctx, today.AddDate(0, 0, -30), today.AddDate(0, 0, 1)); err != nil {
		return Summary{}, err
	}

	return sum, nil
}

func (s *Store) groupedCounts(ctx context.Context, query string) ([]CountByLabel, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("grouped counts: %w", queryErr)
	}
	defer rows.Close()

	counts := make([]CountByLabel, 0)
	for rows.Next() {
		var c CountByLabel
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

func (s *Store) periodSales(ctx context.Context, from, to time.Time) (PeriodSales, error) {
	pool, err := s.getPool()
	if err != nil {
		return PeriodSales{}, err
	}

	var (
		period    PeriodSales
		amountStr string
		litersStr string
	)
	row := pool.QueryRow(ctx, periodSalesSQL, from, to)
	if scanErr := row.Scan(&period.Count, &amountStr, &litersStr); scanErr != nil {
		return PeriodSales{}, fmt.Errorf("period sales: %w", scanErr)
	}

	var convErr error
	if period.Amount, convErr = decimal.NewFromString(amountStr); convErr != nil {
		return PeriodSales{}, fmt.Errorf("parse period amount: %w", convErr)
	}
	if period.Liters, convErr = decimal.NewFromString(litersStr); convErr != nil {
		return PeriodSales{}, fmt.Errorf("parse period liters: %w", convErr)
	}
	return period, nil
}

// ListDailyActivity returns sale volume and alert counts per day over a
// closed date range, including empty days.
func (s *Store) ListDailyActivity(ctx context.Context, from, to time.Time) ([]DayActivity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, dailyActivitySQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("daily activity: %w", queryErr)
	}
	defer rows.Close()

	days := make([]DayActivity, 0)
	for rows.Next() {
		var (
			d         DayActivity
			litersStr string
			amountStr string
		)
		if err := rows.Scan(&d.Day, &d.Sales, &litersStr, &amountStr, &d.Alerts); err != nil {
			return nil, err
		}

		var convErr error
		if d.Liters, convErr = decimal.NewFromString(litersStr); convErr != nil {
			return nil, fmt.Errorf("parse daily liters: %w", convErr)
		}
		if d.Amount, convErr = decimal.NewFromString(amountStr); convErr != nil {
			return nil, fmt.Errorf("parse daily amount: %w", convErr)
		}
		days = append(days, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return days, nil
}

func scanAlertView(rows pgx.Rows) (AlertView, error) {
	var (
		view       AlertView
		typ        string
		saleID     sql.NullInt64
		severity   string
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullInt64
	)

	if err := rows.Scan(
		&view.ID,
		&typ,
		&view.Description,
		&saleID,
		&view.StationID,
		&severity,
		&status,
		&view.DetectedAt,
		&resolvedAt,
		&resolvedBy,
		&view.Day,
		&view.StationName,
	); err != nil {
		return AlertView{}, err
	}

	view.Type = detection.AlertType(typ)
	view.Severity = detection.SeverityFromString(severity)
	view.Status = lifecycle.Status(status)
	if saleID.Valid {
		id := saleID.Int64
		view.SaleID = &id
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		view.ResolvedAt = &at
	}
	if resolvedBy.Valid {
		by := resolvedBy.Int64
		view.ResolvedBy = &by
	}

	return view, nil
}
