package detection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RuleFunc evaluates one station's eligible sales for the target date
// against that station's baseline. Rules are stateless, deterministic,
// independent of the order sales are presented, and never error on data
// shape; composition and dedup belong to the engine.
type RuleFunc func(cfg Config, sales []Sale, base Baseline) []Finding

// Catalogue returns the fixed, ordered rule set.
func Catalogue() []RuleFunc {
	return []RuleFunc{
		ruleUnitPriceOutlier,
		ruleImprobableVelocity,
		ruleDuplicateInvoice,
		ruleOffHours,
		ruleRoundNumberClustering,
		ruleZeroVarianceRun,
	}
}

// ruleUnitPriceOutlier flags sales whose unit price deviates from the
// baseline mean by more than the configured sigma multiple, either
// direction. Abnormally cheap and abnormally expensive fills both point at
// meter tampering or price manipulation.
func ruleUnitPriceOutlier(cfg Config, sales []Sale, base Baseline) []Finding {
	if base.Samples < cfg.MinBaselineSamples || base.StdDevUnitPrice.IsZero() {
		return nil
	}

	limit := base.StdDevUnitPrice.Mul(decimal.NewFromFloat(cfg.SigmaMultiple))
	var findings []Finding
	for i := range sales {
		price := sales[i].UnitPrice()
		dev := price.Sub(base.MeanUnitPrice).Abs()
		if !dev.GreaterThan(limit) {
			continue
		}

		severity := SeverityMedium
		if dev.GreaterThan(limit.Mul(decimal.NewFromInt(2))) {
			severity = SeverityHigh
		}

		findings = append(findings, Finding{
			Type:      TypeUnitPriceOutlier,
			Sale:      &sales[i],
			StationID: sales[i].StationID,
			Description: fmt.Sprintf(
				"invoice %s: unit price %s deviates from baseline mean %s beyond %.1fσ (σ=%s)",
				sales[i].InvoiceNumber, price.StringFixed(3),
				base.MeanUnitPrice.StringFixed(3), cfg.SigmaMultiple,
				base.StdDevUnitPrice.StringFixed(4),
			),
			Severity: severity,
		})
	}
	return findings
}

// ruleImprobableVelocity flags a station when liters reported within any
// sliding window exceed what the pumps could physically dispense in it.
func ruleImprobableVelocity(cfg Config, sales []Sale, base Baseline) []Finding {
	if len(sales) == 0 || cfg.VelocityWindow <= 0 || cfg.MaxFlowLPM <= 0 {
		return nil
	}

	sorted := sortedByTime(sales)
	capacity := decimal.NewFromFloat(float64(cfg.pumps(base)) * cfg.MaxFlowLPM * cfg.VelocityWindow.Minutes())

	var findings []Finding
	sum := decimal.Zero
	start := 0
	for end := 0; end < len(sorted); end++ {
		sum = sum.Add(sorted[end].Liters)
		for sorted[end].Timestamp.Sub(sorted[start].Timestamp) > cfg.VelocityWindow {
			sum = sum.Sub(sorted[start].Liters)
			start++
		}
		if !sum.GreaterThan(capacity) {
			continue
		}

		findings = append(findings, Finding{
			Type:      TypeImprobableVelocity,
			StationID: sorted[end].StationID,
			Description: fmt.Sprintf(
				"%s liters reported between %s and %s exceed pump capacity of %s liters per %s",
				sum.StringFixed(1),
				sorted[start].Timestamp.Format(time.RFC3339),
				sorted[end].Timestamp.Format(time.RFC3339),
				capacity.StringFixed(1), cfg.VelocityWindow,
			),
			Severity: SeverityHigh,
		})

		// One finding per disjoint violating window.
		start = end + 1
		sum = decimal.Zero
	}
	return findings
}

// ruleDuplicateInvoice flags every duplicate beyond the first sale sharing
// an invoice number on the same station-day: n duplicates yield n-1 findings.
func ruleDuplicateInvoice(cfg Config, sales []Sale, base Baseline) []Finding {
	groups := make(map[string][]*Sale)
	for i := range sales {
		key := strings.ToUpper(sales[i].InvoiceNumber)
		groups[key] = append(groups[key], &sales[i])
	}

	var findings []Finding
	for invoice, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].Timestamp.Equal(group[j].Timestamp) {
				return group[i].Timestamp.Before(group[j].Timestamp)
			}
			return group[i].ID < group[j].ID
		})

		first := group[0]
		for _, dup := range group[1:] {
			findings = append(findings, Finding{
				Type:      TypeDuplicateInvoice,
				Sale:      dup,
				StationID: dup.StationID,
				Description: fmt.Sprintf(
					"invoice number %s reused at %s; first issued at %s",
					invoice,
					dup.Timestamp.Format(time.RFC3339),
					first.Timestamp.Format(time.RFC3339),
				),
				Severity: SeverityHigh,
			})
		}
	}
	return findings
}

// ruleOffHours flags sales stamped outside the station's typical operating
// window, allowing the configured grace margin on both edges.
func ruleOffHours(cfg Config, sales []Sale, base Baseline) []Finding {
	if base.OpenMinute == base.CloseMinute {
		// Window unknown; stay quiet rather than guess.
		return nil
	}

	grace := int(cfg.OffHoursGrace.Minutes())
	lo := base.OpenMinute - grace
	hi := base.CloseMinute + grace

	var findings []Finding
	for i := range sales {
		local := sales[i].Timestamp.In(cfg.location())
		minute := local.Hour()*60 + local.Minute()

		outside := false
		if base.CloseMinute > base.OpenMinute {
			outside = minute < lo || minute > hi
		} else {
			// Overnight window wrapping midnight.
			outside = minute > hi && minute < lo
		}
		if !outside {
			continue
		}

		findings = append(findings, Finding{
			Type:      TypeOffHours,
			Sale:      &sales[i],
			StationID: sales[i].StationID,
			Description: fmt.Sprintf(
				"invoice %s recorded at %s, outside operating window %s-%s (grace %s)",
				sales[i].InvoiceNumber, local.Format("15:04"),
				minuteClock(base.OpenMinute), minuteClock(base.CloseMinute),
				cfg.OffHoursGrace,
			),
			Severity: SeverityMedium,
		})
	}
	return findings
}

// ruleRoundNumberClustering flags a station-day whose share of exactly
// round liters or amounts is far above the station's history. Metered
// dispensing rarely lands on round values; manual entry does.
func ruleRoundNumberClustering(cfg Config, sales []Sale, base Baseline) []Finding {
	if len(sales) < cfg.RoundMinSales || cfg.RoundMultiple <= 0 {
		return nil
	}

	multiple := decimal.NewFromInt(int64(cfg.RoundMultiple))
	round := 0
	for i := range sales {
		if sales[i].Liters.Mod(multiple).IsZero() || sales[i].Amount.Mod(multiple).IsZero() {
			round++
		}
	}

	share := float64(round) / float64(len(sales))
	if share < cfg.RoundMinShare || share <= cfg.RoundFactor*base.RoundShare {
		return nil
	}

	return []Finding{{
		Type:      TypeRoundNumberClustering,
		StationID: sales[0].StationID,
		Description: fmt.Sprintf(
			"%d of %d sales (%.0f%%) land on multiples of %d against a historical share of %.0f%%",
			round, len(sales), share*100, cfg.RoundMultiple, base.RoundShare*100,
		),
		Severity: SeverityMedium,
	}}
}

// ruleZeroVarianceRun flags runs of consecutive sales sharing an identical
// unit price carrying more decimals than pricing granularity allows, which
// independently metered transactions do not produce.
func ruleZeroVarianceRun(cfg Config, sales []Sale, base Baseline) []Finding {
	if len(sales) < cfg.RunLength || cfg.RunLength < 2 {
		return nil
	}

	sorted := sortedByTime(sales)

	var findings []Finding
	i := 0
	for i < len(sorted) {
		price := sorted[i].UnitPrice()
		j := i + 1
		for j < len(sorted) && sorted[j].UnitPrice().Equal(price) {
			j++
		}

		if j-i >= cfg.RunLength && !price.Truncate(cfg.PricePrecision).Equal(price) {
			findings = append(findings, Finding{
				Type:      TypeZeroVarianceRun,
				StationID: sorted[i].StationID,
				Description: fmt.Sprintf(
					"%d consecutive sales between %s and %s share unit price %s beyond %d-decimal pricing granularity",
					j-i,
					sorted[i].Timestamp.Format(time.RFC3339),
					sorted[j-1].Timestamp.Format(time.RFC3339),
					price.String(), cfg.PricePrecision,
				),
				Severity: SeverityMedium,
			})
		}
		i = j
	}
	return findings
}

func sortedByTime(sales []Sale) []Sale {
	sorted := make([]Sale, len(sales))
	copy(sorted, sales)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
