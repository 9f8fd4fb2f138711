package ingest

import (
	"github.com/lox/powerwallcost/internal/table"
)

const (
	FlagNegativeEnergy        = "negative_energy"
	FlagBatteryExceedsSolar   = "battery_exceeds_solar"
	FlagBatteryExceedsExports = "battery_exceeds_exports"
)

// ValidateUsage counts records carrying implausible energy flows, keyed by
// flag. Records are reported, not altered or dropped.
func ValidateUsage(t *table.Table) map[string]int {
	flags := make(map[string]int)
	schema := t.Schema()

	for _, col := range schema.Values {
		vals, _ := t.Column(col)
		for _, v := range vals {
			if v < 0 {
				flags[FlagNegativeEnergy]++
			}
		}
	}

	exceeds := func(flag, part, whole string) {
		if !schema.HasValue(part) || !schema.HasValue(whole) {
			return
		}
		p, _ := t.Column(part)
		w, _ := t.Column(whole)
		for i := range p {
			if p[i] > w[i] {
				flags[flag]++
			}
		}
	}
	exceeds(FlagBatteryExceedsSolar, ColBatteryEnergyImportedFromSolar, ColTotalSolarGeneration)
	exceeds(FlagBatteryExceedsExports, ColGridEnergyExportedFromBattery, ColTotalGridEnergyExported)

	return flags
}
