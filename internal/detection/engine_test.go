package detection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeSaleSource struct {
	sales []Sale
	err   error
	slow  time.Duration
}

func (f *fakeSaleSource) FetchSales(ctx context.Context, day time.Time) ([]Sale, error) {
	if f.slow > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.slow):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.sales, nil
}

type fakeBaselineSource struct {
	baselines map[int64]Baseline
	err       error
}

func (f *fakeBaselineSource) FetchStationBaseline(ctx context.Context, stationID int64, asOf time.Time) (Baseline, error) {
	if f.err != nil {
		return Baseline{}, f.err
	}
	base, ok := f.baselines[stationID]
	if !ok {
		base = testBaseline(stationID)
		base.StationID = stationID
	}
	return base, nil
}

func newTestEngine(sales SaleSource, baselines BaselineSource) *Engine {
	return NewEngine(testConfig(), sales, baselines, zerolog.Nop())
}

func day() time.Time {
	return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
}

func TestAnalyzeEmptyDay(t *testing.T) {
	engine := newTestEngine(&fakeSaleSource{}, &fakeBaselineSource{})

	alerts, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("zero sales must not error: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected empty alert set, got %d", len(alerts))
	}
}

func TestAnalyzeInvalidDate(t *testing.T) {
	engine := newTestEngine(&fakeSaleSource{}, &fakeBaselineSource{})

	if _, err := engine.Analyze(context.Background(), time.Time{}); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("zero date should fail with ErrInvalidDate, got %v", err)
	}
}

func TestAnalyzeOutlierScenario(t *testing.T) {
	// Station baseline: mean unit price 1.00, sigma 0.02. A sale of 50.00
	// for 40 liters (unit price 1.25) must produce an outlier alert.
	sale := makeSale(7, at(10, 0), "40", "50.00")
	engine := newTestEngine(&fakeSaleSource{sales: []Sale{sale}}, &fakeBaselineSource{})

	alerts, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	found := false
	for _, a := range alerts {
		if a.Type == TypeUnitPriceOutlier && a.SaleID != nil && *a.SaleID == 7 {
			found = true
			if a.Status != "pending" {
				t.Fatalf("new alerts start pending, got %s", a.Status)
			}
			if a.DetectedAt.IsZero() || a.ResolvedAt != nil || a.ResolvedBy != nil {
				t.Fatalf("resolution fields must be unset at creation: %+v", a)
			}
		}
	}
	if !found {
		t.Fatalf("expected a unit_price_outlier alert for sale 7, got %+v", alerts)
	}
}

func TestAnalyzeDuplicateInvoiceScenario(t *testing.T) {
	a := makeSale(1, at(9, 0), "30", "30.60")
	b := makeSale(2, at(11, 0), "30", "30.60")
	a.InvoiceNumber = "INV-100"
	b.InvoiceNumber = "INV-100"

	engine := newTestEngine(&fakeSaleSource{sales: []Sale{a, b}}, &fakeBaselineSource{})

	alerts, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	count := 0
	for _, alert := range alerts {
		if alert.Type == TypeDuplicateInvoice {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("two shared invoices must yield exactly one duplicate alert, got %d", count)
	}
}

func TestAnalyzeSkipsMalformedRows(t *testing.T) {
	bad := makeSale(1, at(9, 0), "40", "50.00")
	bad.Liters = decimal.Zero
	future := makeSale(2, time.Now().Add(48*time.Hour), "40", "50.00")
	badInvoice := makeSale(3, at(9, 30), "40", "50.00")
	badInvoice.InvoiceNumber = "not-an-invoice"

	engine := newTestEngine(&fakeSaleSource{sales: []Sale{bad, future, badInvoice}}, &fakeBaselineSource{})

	alerts, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("malformed rows must be excluded, not raised: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("excluded rows should produce no alerts, got %d", len(alerts))
	}
}

func TestAnalyzeDeterministicAcrossRuns(t *testing.T) {
	var sales []Sale
	for station := int64(1); station <= 6; station++ {
		for i := int64(0); i < 4; i++ {
			id := station*100 + i
			s := makeSale(id, at(10, int(i)), "40", "50.00") // every sale an outlier
			s.StationID = station
			s.InvoiceNumber = fmt.Sprintf("INV-%03d", id)
			sales = append(sales, s)
		}
	}

	engine := newTestEngine(&fakeSaleSource{sales: sales}, &fakeBaselineSource{})

	first, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := engine.Analyze(context.Background(), day())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("runs differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].StationID != second[i].StationID ||
			saleID(first[i]) != saleID(second[i]) {
			t.Fatalf("run order diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAnalyzeRepositoryUnavailable(t *testing.T) {
	engine := newTestEngine(&fakeSaleSource{err: errors.New("connection refused")}, &fakeBaselineSource{})

	if _, err := engine.Analyze(context.Background(), day()); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("repository failure should surface ErrDataUnavailable, got %v", err)
	}
	if !IsRetryable(fmt.Errorf("wrap: %w", ErrDataUnavailable)) {
		t.Fatal("ErrDataUnavailable should be retryable")
	}
}

func TestAnalyzeBaselineUnavailableAbortsWhole(t *testing.T) {
	sales := []Sale{makeSale(1, at(9, 0), "40", "50.00")}
	engine := newTestEngine(&fakeSaleSource{sales: sales}, &fakeBaselineSource{err: errors.New("timeout")})

	alerts, err := engine.Analyze(context.Background(), day())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("baseline failure should surface ErrDataUnavailable, got %v", err)
	}
	if alerts != nil {
		t.Fatal("partial results must be discarded on failure")
	}
}

func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(&fakeSaleSource{slow: time.Second}, &fakeBaselineSource{})

	if _, err := engine.Analyze(ctx, day()); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation should surface context.Canceled, got %v", err)
	}
}

func TestParseDay(t *testing.T) {
	parsed, err := ParseDay("2025-06-10", time.UTC)
	if err != nil {
		t.Fatalf("valid date should parse: %v", err)
	}
	if !parsed.Equal(day()) {
		t.Fatalf("parsed %v, want %v", parsed, day())
	}

	if _, err := ParseDay("10/06/2025", time.UTC); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("malformed date should fail with ErrInvalidDate, got %v", err)
	}
}
