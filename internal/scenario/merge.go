package scenario

import (
	"fmt"
	"time"

	"github.com/lox/powerwallcost/internal/config"
	"github.com/lox/powerwallcost/internal/metrics"
	"github.com/lox/powerwallcost/internal/table"
)

const (
	ColMonth    = "month"
	ColScenario = "scenario"
)

// Month buckets a timestamp as YYYYMM in the market zone.
func Month(t time.Time) string {
	return t.In(config.MarketZone).Format("200601")
}

// Merge inner-joins prices and usage on the interval instant and labels
// every surviving row with its month. An interval missing from either side
// is dropped: it has no price or no usage to cost.
func Merge(usage, prices *table.Table) (*table.Table, error) {
	joined, stats := table.InnerJoin(prices, usage)
	metrics.IntervalsMerged.Add(float64(joined.Len()))
	metrics.IntervalsUnmatched.WithLabelValues("price_only").Add(float64(stats.LeftOnly))
	metrics.IntervalsUnmatched.WithLabelValues("usage_only").Add(float64(stats.RightOnly))

	p, err := table.NewPipeline("merge", joined.Schema(), table.TimeLabel(ColMonth, Month))
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return p.Run(joined)
}
