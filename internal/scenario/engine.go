package scenario

import (
	"fmt"
	"math"

	"github.com/lox/powerwallcost/internal/ingest"
	"github.com/lox/powerwallcost/internal/table"
)

// Divisor converts energy × price into dollars: cents to dollars combined
// with the telemetry's reporting unit. Kept as one number.
const Divisor = 100000.0

const (
	ColUsage     = "usage"
	ColFeedIn    = "feed_in"
	ColBillTotal = "bill_total"

	colSolarOnlyUsage  = "solar_only_usage"
	colSolarOnlyFeedIn = "solar_only_feed_in"
)

// Scenario names, in report order.
const (
	BaseScenario     = "base_scenario"
	NoBatteryOrSolar = "no_battery_or_solar"
	SolarOnly        = "solar_only"
	BatteryOnly      = "battery_only"
)

// Scenario is one household configuration. Derive must produce the usage
// column, and the feed_in column when HasFeedIn is set; without feed-in the
// scenario earns no export credit.
type Scenario struct {
	Name      string
	Derive    []table.Stage
	HasFeedIn bool
}

// cost prices an energy column: inputs are (energy, cents per kWh).
func cost(a []float64) float64 { return a[0] * a[1] / Divisor }

// Scenarios returns the four compared configurations in report order.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name: BaseScenario,
			Derive: []table.Stage{
				table.Derive(ColFeedIn, []string{ingest.ColTotalGridEnergyExported, ingest.ColFeedInPrice}, cost),
				table.Derive(ColUsage, []string{ingest.ColGridEnergyImported, ingest.ColGeneralPrice}, cost),
			},
			HasFeedIn: true,
		},
		{
			Name: NoBatteryOrSolar,
			Derive: []table.Stage{
				table.Derive(ColUsage, []string{ingest.ColTotalHomeUsage, ingest.ColGeneralPrice}, cost),
			},
		},
		{
			Name: SolarOnly,
			Derive: []table.Stage{
				table.Derive(colSolarOnlyUsage, []string{ingest.ColTotalHomeUsage, ingest.ColTotalSolarGeneration},
					func(a []float64) float64 { return math.Max(a[0]-a[1], 0) }),
				table.Derive(colSolarOnlyFeedIn, []string{ingest.ColTotalHomeUsage, ingest.ColTotalSolarGeneration},
					func(a []float64) float64 { return math.Max(a[1]-a[0], 0) }),
				table.Derive(ColFeedIn, []string{colSolarOnlyFeedIn, ingest.ColFeedInPrice}, cost),
				table.Derive(ColUsage, []string{colSolarOnlyUsage, ingest.ColGeneralPrice}, cost),
			},
			HasFeedIn: true,
		},
		{
			Name: BatteryOnly,
			Derive: []table.Stage{
				table.Derive(ColFeedIn, []string{ingest.ColGridEnergyExportedFromBattery, ingest.ColFeedInPrice}, cost),
				table.Derive(ColUsage, []string{ingest.ColBatteryEnergyImportedFromSolar, ingest.ColGridEnergyImported, ingest.ColGeneralPrice},
					func(a []float64) float64 { return (a[0] + a[1]) * a[2] / Divisor }),
			},
			HasFeedIn: true,
		},
	}
}

// monthlyStages builds the per-month bill pipeline for one scenario.
func monthlyStages(s Scenario) []table.Stage {
	stages := append([]table.Stage(nil), s.Derive...)
	if s.HasFeedIn {
		stages = append(stages, table.GroupBy([]string{ColMonth}, []string{ColFeedIn, ColUsage}, SumRound2))
	} else {
		stages = append(stages,
			table.GroupBy([]string{ColMonth}, []string{ColUsage}, SumRound2),
			table.ConstValue(ColFeedIn, 0))
	}
	return append(stages,
		table.ConstLabel(ColScenario, s.Name),
		table.Derive(ColBillTotal, []string{ColFeedIn, ColUsage}, func(a []float64) float64 { return a[0] + a[1] }),
		table.Select([]string{ColMonth, ColScenario}, []string{ColUsage, ColFeedIn, ColBillTotal}),
	)
}

// Engine computes monthly and whole-window bills for every scenario.
type Engine struct {
	monthly []*table.Pipeline
	totals  *table.Pipeline
}

// NewEngine builds every scenario pipeline against the merged schema, so a
// missing telemetry or price column fails before any row is processed.
func NewEngine(merged table.Schema) (*Engine, error) {
	return NewEngineFor(merged, Scenarios())
}

// NewEngineFor is NewEngine with an explicit scenario list.
func NewEngineFor(merged table.Schema, scenarios []Scenario) (*Engine, error) {
	e := &Engine{}
	for _, s := range scenarios {
		p, err := table.NewPipeline(s.Name, merged, monthlyStages(s)...)
		if err != nil {
			return nil, err
		}
		e.monthly = append(e.monthly, p)
	}

	monthlySchema := table.Schema{
		Labels: []string{ColMonth, ColScenario},
		Values: []string{ColUsage, ColFeedIn, ColBillTotal},
	}
	totals, err := table.NewPipeline("totals", monthlySchema,
		table.GroupBy([]string{ColScenario}, []string{ColBillTotal}, SumRound2),
		table.Select([]string{ColScenario}, []string{ColBillTotal}),
	)
	if err != nil {
		return nil, err
	}
	e.totals = totals
	return e, nil
}

// Run computes the bills for a merged table.
func (e *Engine) Run(merged *table.Table) (*Result, error) {
	var monthly []*table.Table
	for _, p := range e.monthly {
		t, err := p.Run(merged)
		if err != nil {
			return nil, err
		}
		monthly = append(monthly, t)
	}
	stacked := table.Concat(monthly...)
	if len(monthly) == 0 {
		stacked = table.Empty(table.Schema{
			Labels: []string{ColMonth, ColScenario},
			Values: []string{ColUsage, ColFeedIn, ColBillTotal},
		})
	}
	totals, err := e.totals.Run(stacked)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}
	return &Result{Monthly: stacked, Totals: totals}, nil
}

// Result holds the stacked monthly bills and the per-scenario totals.
type Result struct {
	Monthly *table.Table
	Totals  *table.Table
}

// MonthlyBill is one scenario's bill for one month, in dollars.
type MonthlyBill struct {
	Month     string
	Scenario  string
	Usage     float64
	FeedIn    float64
	BillTotal float64
}

// Total is one scenario's bill over the whole window, in dollars.
type Total struct {
	Scenario  string
	BillTotal float64
}

// MonthlyBills returns the monthly rows, scenarios in report order.
func (r *Result) MonthlyBills() []MonthlyBill {
	out := make([]MonthlyBill, r.Monthly.Len())
	for i := range out {
		row := r.Monthly.Row(i)
		out[i] = MonthlyBill{
			Month:     row.Labels[0],
			Scenario:  row.Labels[1],
			Usage:     row.Values[0],
			FeedIn:    row.Values[1],
			BillTotal: row.Values[2],
		}
	}
	return out
}

// TotalBills returns one total per scenario in report order.
func (r *Result) TotalBills() []Total {
	out := make([]Total, r.Totals.Len())
	for i := range out {
		row := r.Totals.Row(i)
		out[i] = Total{Scenario: row.Labels[0], BillTotal: row.Values[0]}
	}
	return out
}
