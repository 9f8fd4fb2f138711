package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/lox/powerwallcost/internal/config"
	"github.com/lox/powerwallcost/internal/metrics"
	"github.com/lox/powerwallcost/internal/table"
)

// Price columns read by the scenario engine, in cents per kWh.
const (
	ColGeneralPrice = "amber_general"
	ColFeedInPrice  = "amber_feed_in"
)

const pricePrefix = "amber_"

// Provider reports the interval end; rows are keyed on the interval start.
const intervalShift = 5 * time.Minute

// priceColumns renames provider channel types to column names. Channels not
// listed go through camelToSnake with the same prefix.
var priceColumns = map[string]string{
	"general":        ColGeneralPrice,
	"feedIn":         ColFeedInPrice,
	"controlledLoad": "amber_controlled_load",
}

// PriceColumn returns the column name for a provider channel type.
func PriceColumn(channel string) string {
	if col, ok := priceColumns[channel]; ok {
		return col
	}
	return camelToSnake(pricePrefix + channel)
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && s[i-1] != '_' {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Quote is one price in long form: an interval start, a channel and a cost.
type Quote struct {
	Time time.Time
	Type string
	Cost float64
}

// PriceFetcher returns every channel's 5-minute prices between two dates.
type PriceFetcher interface {
	Prices(ctx context.Context, start, end time.Time) ([]AmberPrice, error)
}

// PriceBuilder turns chunked price requests into one wide price table.
type PriceBuilder struct {
	fetcher PriceFetcher
	logger  *zap.Logger
}

func NewPriceBuilder(fetcher PriceFetcher, logger *zap.Logger) *PriceBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceBuilder{fetcher: fetcher, logger: logger}
}

// Build requests each chunk of the window in order and pivots the quotes
// into one row per interval.
func (b *PriceBuilder) Build(ctx context.Context, w config.Window) (*table.Table, error) {
	var quotes []Quote
	for _, c := range Chunks(w) {
		prices, err := b.fetcher.Prices(ctx, c.Start, c.End)
		if err != nil {
			return nil, fmt.Errorf("prices %s..%s: %w", c.Start.Format(config.DateLayout), c.End.Format(config.DateLayout), err)
		}
		q, err := QuotesFromPrices(prices)
		if err != nil {
			return nil, fmt.Errorf("prices %s..%s: %w", c.Start.Format(config.DateLayout), c.End.Format(config.DateLayout), err)
		}
		b.logger.Info("price chunk ingested",
			zap.String("start", c.Start.Format(config.DateLayout)),
			zap.String("end", c.End.Format(config.DateLayout)),
			zap.Int("quotes", len(q)))
		quotes = append(quotes, q...)
	}

	t, dups, err := PivotQuotes(quotes, w.Start)
	if err != nil {
		return nil, fmt.Errorf("pivot prices: %w", err)
	}
	metrics.PriceQuotesDuplicate.Add(float64(dups))
	if dups > 0 {
		b.logger.Debug("duplicate price quotes skipped", zap.Int("count", dups))
	}
	return t, nil
}

// QuotesFromPrices keeps nemTime, channelType and perKwh from each price,
// parses the time and moves it back to the start of the interval. perKwh
// is coerced to float like any telemetry field.
func QuotesFromPrices(prices []AmberPrice) ([]Quote, error) {
	quotes := make([]Quote, 0, len(prices))
	for i, p := range prices {
		if p.NemTime == nil {
			return nil, fmt.Errorf("price %d: %w: nemTime", i, ErrSchema)
		}
		if p.ChannelType == nil {
			return nil, fmt.Errorf("price %d: %w: channelType", i, ErrSchema)
		}
		if p.PerKwh == nil {
			return nil, fmt.Errorf("price %d: %w: perKwh", i, ErrSchema)
		}
		end, err := time.Parse(time.RFC3339, *p.NemTime)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w: nemTime %q: %v", i, ErrSchema, *p.NemTime, err)
		}
		cost, err := coerceFloat(p.PerKwh)
		if err != nil {
			return nil, fmt.Errorf("price %d perKwh: %w", i, err)
		}
		quotes = append(quotes, Quote{
			Time: end.Add(-intervalShift),
			Type: *p.ChannelType,
			Cost: cost,
		})
	}
	return quotes, nil
}

// PivotQuotes spreads quotes into one column per channel, one row per
// interval start. Rows and columns follow first appearance. A repeated
// (interval, channel) pair keeps the first quote; quotes starting before
// notBefore are dropped. The second result counts skipped duplicates.
func PivotQuotes(quotes []Quote, notBefore time.Time) (*table.Table, int, error) {
	var cols []string
	colIdx := make(map[string]int)
	rowIdx := make(map[int64]int)
	var times []time.Time
	var cells []map[int]float64
	dups := 0

	for _, q := range quotes {
		if q.Time.Before(notBefore) {
			continue
		}
		col := PriceColumn(q.Type)
		ci, ok := colIdx[col]
		if !ok {
			ci = len(cols)
			colIdx[col] = ci
			cols = append(cols, col)
		}
		key := q.Time.UnixNano()
		ri, ok := rowIdx[key]
		if !ok {
			ri = len(times)
			rowIdx[key] = ri
			times = append(times, q.Time)
			cells = append(cells, make(map[int]float64))
		}
		if _, seen := cells[ri][ci]; seen {
			dups++
			continue
		}
		cells[ri][ci] = q.Cost
		metrics.PriceQuotesIngested.WithLabelValues(q.Type).Inc()
	}

	rows := make([]table.Row, len(times))
	for i, ts := range times {
		vals := make([]float64, len(cols))
		for ci, v := range cells[i] {
			vals[ci] = v
		}
		rows[i] = table.Row{Time: ts, Values: vals}
	}
	t, err := table.New(table.Schema{Values: cols}, rows)
	if err != nil {
		return nil, 0, err
	}
	return t, dups, nil
}
