package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lox/powerwallcost/internal/config"
	"github.com/lox/powerwallcost/internal/table"
)

// SeriesBuilder produces one aligned input series for a window.
type SeriesBuilder interface {
	Build(ctx context.Context, w config.Window) (*table.Table, error)
}

// Compare runs the whole report: usage first, then prices, then the merge
// and the scenario engine. Any failure aborts the run.
func Compare(ctx context.Context, w config.Window, usage, prices SeriesBuilder, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	usageTable, err := usage.Build(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("build usage series: %w", err)
	}
	logger.Info("usage series built", zap.Int("records", usageTable.Len()))

	priceTable, err := prices.Build(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("build price series: %w", err)
	}
	logger.Info("price series built", zap.Int("records", priceTable.Len()))

	merged, err := Merge(usageTable, priceTable)
	if err != nil {
		return nil, err
	}
	logger.Info("series merged", zap.Int("intervals", merged.Len()))

	engine, err := NewEngine(merged.Schema())
	if err != nil {
		return nil, fmt.Errorf("build scenarios: %w", err)
	}
	return engine.Run(merged)
}
