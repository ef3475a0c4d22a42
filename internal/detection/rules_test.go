package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinBaselineSamples = 10
	cfg.RoundMinSales = 4
	cfg.RunLength = 3
	return cfg
}

func testBaseline(stationID int64) Baseline {
	return Baseline{
		StationID:       stationID,
		Samples:         200,
		MeanUnitPrice:   decimal.RequireFromString("1.00"),
		StdDevUnitPrice: decimal.RequireFromString("0.02"),
		MeanLiters:      decimal.RequireFromString("35"),
		MeanAmount:      decimal.RequireFromString("35"),
		OpenMinute:      6 * 60,
		CloseMinute:     22 * 60,
		RoundShare:      0.05,
		Pumps:           2,
	}
}

func makeSale(id int64, at time.Time, liters, amount string) Sale {
	return Sale{
		ID:            id,
		StationID:     1,
		StationCode:   "EST-001",
		Timestamp:     at,
		Liters:        decimal.RequireFromString(liters),
		Amount:        decimal.RequireFromString(amount),
		InvoiceNumber: fmt.Sprintf("INV-%03d", id),
	}
}

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 10, hour, min, 0, 0, time.UTC)
}

func TestUnitPriceOutlier(t *testing.T) {
	sales := []Sale{
		makeSale(1, at(10, 0), "40", "50"),    // unit price 1.25, far past 3 sigma
		makeSale(2, at(10, 5), "40", "40.80"), // unit price 1.02, inside
	}

	findings := ruleUnitPriceOutlier(testConfig(), sales, testBaseline(1))
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Sale == nil || findings[0].Sale.ID != 1 {
		t.Fatalf("finding should reference sale 1: %+v", findings[0])
	}
	if findings[0].Severity != SeverityHigh {
		t.Fatalf("a 12.5-sigma deviation should be high severity, got %s", findings[0].Severity)
	}
}

func TestUnitPriceOutlierSkipsThinBaseline(t *testing.T) {
	base := testBaseline(1)
	base.Samples = 3

	sales := []Sale{makeSale(1, at(10, 0), "40", "50")}
	if findings := ruleUnitPriceOutlier(testConfig(), sales, base); len(findings) != 0 {
		t.Fatalf("thin baseline should not produce findings, got %d", len(findings))
	}
}

func TestImprobableVelocity(t *testing.T) {
	cfg := testConfig()
	cfg.VelocityWindow = 10 * time.Minute
	cfg.MaxFlowLPM = 40

	// Capacity: 2 pumps * 40 L/min * 10 min = 800 liters.
	sales := []Sale{
		makeSale(1, at(9, 0), "400", "400"),
		makeSale(2, at(9, 3), "300", "300"),
		makeSale(3, at(9, 6), "250", "250"),
	}

	findings := ruleImprobableVelocity(cfg, sales, testBaseline(1))
	if len(findings) != 1 {
		t.Fatalf("950 liters in 6 minutes should flag once, got %d findings", len(findings))
	}
	if findings[0].Sale != nil {
		t.Fatal("velocity findings are station-level")
	}

	under := []Sale{
		makeSale(1, at(9, 0), "400", "400"),
		makeSale(2, at(9, 30), "400", "400"),
	}
	if findings := ruleImprobableVelocity(cfg, under, testBaseline(1)); len(findings) != 0 {
		t.Fatalf("volume under capacity should stay quiet, got %d findings", len(findings))
	}
}

func TestDuplicateInvoiceCountsDuplicatesBeyondFirst(t *testing.T) {
	sales := []Sale{
		makeSale(1, at(9, 0), "30", "30"),
		makeSale(2, at(10, 0), "30", "30"),
		makeSale(3, at(11, 0), "30", "30"),
	}
	sales[1].InvoiceNumber = "INV-100"
	sales[2].InvoiceNumber = "INV-100"
	sales[0].InvoiceNumber = "INV-100"

	findings := ruleDuplicateInvoice(testConfig(), sales, testBaseline(1))
	if len(findings) != 2 {
		t.Fatalf("three shared invoices must yield n-1 = 2 findings, got %d", len(findings))
	}
	for _, f := range findings {
		if f.Sale == nil || f.Sale.ID == 1 {
			t.Fatalf("the first sale holding the invoice is not a duplicate: %+v", f)
		}
	}
}

func TestDuplicateInvoiceOrderIndependent(t *testing.T) {
	forward := []Sale{makeSale(1, at(9, 0), "30", "30"), makeSale(2, at(10, 0), "30", "30")}
	forward[0].InvoiceNumber = "INV-100"
	forward[1].InvoiceNumber = "INV-100"

	reversed := []Sale{forward[1], forward[0]}

	a := ruleDuplicateInvoice(testConfig(), forward, testBaseline(1))
	b := ruleDuplicateInvoice(testConfig(), reversed, testBaseline(1))
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one finding each way, got %d and %d", len(a), len(b))
	}
	if a[0].Sale.ID != b[0].Sale.ID {
		t.Fatalf("presentation order changed the flagged sale: %d vs %d", a[0].Sale.ID, b[0].Sale.ID)
	}
}

func TestOffHours(t *testing.T) {
	cfg := testConfig()
	cfg.OffHoursGrace = 30 * time.Minute

	sales := []Sale{
		makeSale(1, at(3, 0), "30", "30"),  // deep night
		makeSale(2, at(5, 45), "30", "30"), // inside the grace margin before 06:00
		makeSale(3, at(12, 0), "30", "30"),
		makeSale(4, at(22, 29), "30", "30"), // inside the grace margin after 22:00
		makeSale(5, at(23, 30), "30", "30"),
	}

	findings := ruleOffHours(cfg, sales, testBaseline(1))
	if len(findings) != 2 {
		t.Fatalf("expected sales 1 and 5 flagged, got %d findings", len(findings))
	}
	flagged := map[int64]bool{}
	for _, f := range findings {
		flagged[f.Sale.ID] = true
	}
	if !flagged[1] || !flagged[5] {
		t.Fatalf("wrong sales flagged: %v", flagged)
	}
}

func TestOffHoursUnknownWindow(t *testing.T) {
	base := testBaseline(1)
	base.OpenMinute = 0
	base.CloseMinute = 0

	sales := []Sale{makeSale(1, at(3, 0), "30", "30")}
	if findings := ruleOffHours(testConfig(), sales, base); len(findings) != 0 {
		t.Fatalf("unknown operating window should not flag, got %d findings", len(findings))
	}
}

func TestRoundNumberClustering(t *testing.T) {
	cfg := testConfig()

	var sales []Sale
	for i := int64(1); i <= 5; i++ {
		sales = append(sales, makeSale(i, at(9, int(i)), "20", "200")) // both round
	}
	sales = append(sales, makeSale(6, at(9, 30), "23.41", "28.64"))

	findings := ruleRoundNumberClustering(cfg, sales, testBaseline(1))
	if len(findings) != 1 {
		t.Fatalf("5/6 round sales against a 5%% baseline should flag, got %d findings", len(findings))
	}
	if findings[0].Sale != nil {
		t.Fatal("round clustering findings are station-level")
	}
}

func TestRoundNumberClusteringNeedsMinimumSales(t *testing.T) {
	cfg := testConfig()
	cfg.RoundMinSales = 20

	var sales []Sale
	for i := int64(1); i <= 5; i++ {
		sales = append(sales, makeSale(i, at(9, int(i)), "20", "200"))
	}
	if findings := ruleRoundNumberClustering(cfg, sales, testBaseline(1)); len(findings) != 0 {
		t.Fatalf("tiny days must not flag, got %d findings", len(findings))
	}
}

func TestZeroVarianceRun(t *testing.T) {
	cfg := testConfig()

	// Four consecutive sales at unit price 1.23456, finer than the
	// 3-decimal pricing granularity.
	var sales []Sale
	for i := int64(1); i <= 4; i++ {
		sales = append(sales, makeSale(i, at(9, int(i)*5), "10", "12.3456"))
	}
	sales = append(sales, makeSale(5, at(10, 0), "10", "12.30"))

	findings := ruleZeroVarianceRun(cfg, sales, testBaseline(1))
	if len(findings) != 1 {
		t.Fatalf("expected one run finding, got %d", len(findings))
	}

	// The same run at exactly granularity precision is legitimate repricing.
	var coarse []Sale
	for i := int64(1); i <= 4; i++ {
		coarse = append(coarse, makeSale(i, at(9, int(i)*5), "10", "12.30"))
	}
	if findings := ruleZeroVarianceRun(cfg, coarse, testBaseline(1)); len(findings) != 0 {
		t.Fatalf("granularity-level prices should not flag, got %d findings", len(findings))
	}
}

func TestZeroVarianceRunRequiresRunLength(t *testing.T) {
	cfg := testConfig()
	cfg.RunLength = 5

	var sales []Sale
	for i := int64(1); i <= 4; i++ {
		sales = append(sales, makeSale(i, at(9, int(i)*5), "10", "12.3456"))
	}
	if findings := ruleZeroVarianceRun(cfg, sales, testBaseline(1)); len(findings) != 0 {
		t.Fatalf("run below configured length should not flag, got %d findings", len(findings))
	}
}
