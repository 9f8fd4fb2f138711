package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/powerwallcost/internal/config"
	"github.com/lox/powerwallcost/internal/metrics"
	"github.com/lox/powerwallcost/internal/table"
)

// ErrSchema reports provider JSON that lacks a field the report relies on
// or carries a value of the wrong type.
var ErrSchema = errors.New("unexpected provider schema")

const (
	fieldTimestamp    = "timestamp"
	fieldRawTimestamp = "raw_timestamp"

	// missingValue is what absent or null telemetry fields read as before
	// coercion to float.
	missingValue = "0.0"
)

// Telemetry columns read by the scenario engine.
const (
	ColGridEnergyImported             = "grid_energy_imported"
	ColTotalGridEnergyExported        = "total_grid_energy_exported"
	ColTotalHomeUsage                 = "total_home_usage"
	ColTotalSolarGeneration           = "total_solar_generation"
	ColBatteryEnergyImportedFromSolar = "battery_energy_imported_from_solar"
	ColGridEnergyExportedFromBattery  = "grid_energy_exported_from_battery"
)

// TelemetryFetcher returns the raw samples between two ISO-8601 timestamps.
type TelemetryFetcher interface {
	CalendarHistory(ctx context.Context, start, end string) ([]Sample, error)
}

// UsageBuilder turns per-day telemetry into one usage table.
type UsageBuilder struct {
	fetcher TelemetryFetcher
	logger  *zap.Logger
}

func NewUsageBuilder(fetcher TelemetryFetcher, logger *zap.Logger) *UsageBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageBuilder{fetcher: fetcher, logger: logger}
}

// Build requests every day of the window in order, one call per day, and
// concatenates the resulting records.
func (b *UsageBuilder) Build(ctx context.Context, w config.Window) (*table.Table, error) {
	var days []*table.Table
	for _, d := range w.Days() {
		start, end := DayWindow(d, w.DaylightSaving)
		samples, err := b.fetcher.CalendarHistory(ctx, ISOTimestamp(start), ISOTimestamp(end))
		if err != nil {
			return nil, fmt.Errorf("telemetry %s: %w", d.Format(config.DateLayout), err)
		}

		day, dropped, err := UsageDay(d, w.DaylightSaving, samples)
		if err != nil {
			return nil, fmt.Errorf("telemetry %s: %w", d.Format(config.DateLayout), err)
		}
		metrics.TelemetrySamplesIngested.Add(float64(day.Len()))
		metrics.TelemetrySamplesOutOfWindow.Add(float64(dropped))
		for flag, n := range ValidateUsage(day) {
			metrics.TelemetryQualityFlags.WithLabelValues(flag).Add(float64(n))
			b.logger.Warn("implausible telemetry",
				zap.String("date", d.Format(config.DateLayout)),
				zap.String("flag", flag),
				zap.Int("records", n))
		}

		b.logger.Info("telemetry day ingested",
			zap.String("date", d.Format(config.DateLayout)),
			zap.Int("records", day.Len()),
			zap.Int("out_of_window", dropped))
		days = append(days, day)
	}
	return table.Concat(days...), nil
}

// UsageDay converts one day's samples into usage records. Each sample's
// timestamp becomes the row time; every other field becomes a float column.
// Samples whose instant lies outside the range requested for day d are
// dropped and counted. The sample's own offset plays no part in the check.
func UsageDay(d, daylightSaving time.Time, samples []Sample) (*table.Table, int, error) {
	seen := make(map[string]bool)
	var cols []string
	for _, s := range samples {
		for k := range s {
			if k == fieldTimestamp || k == fieldRawTimestamp || seen[k] {
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)

	start, end := DayWindow(d, daylightSaving)
	dropped := 0
	rows := make([]table.Row, 0, len(samples))
	for i, s := range samples {
		ts, err := sampleTime(s)
		if err != nil {
			return nil, 0, fmt.Errorf("sample %d: %w", i, err)
		}
		if ts.Before(start) || ts.After(end) {
			dropped++
			continue
		}

		row := table.Row{Time: ts, Values: make([]float64, len(cols))}
		for j, c := range cols {
			v, err := coerceFloat(s[c])
			if err != nil {
				return nil, 0, fmt.Errorf("sample %d field %s: %w", i, c, err)
			}
			row.Values[j] = v
		}
		rows = append(rows, row)
	}

	t, err := table.New(table.Schema{Values: cols}, rows)
	if err != nil {
		return nil, 0, err
	}
	return t, dropped, nil
}

func sampleTime(s Sample) (time.Time, error) {
	raw, ok := s[fieldTimestamp].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrSchema, fieldTimestamp)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", ErrSchema, fieldTimestamp, raw, err)
	}
	return ts, nil
}

// coerceFloat converts a decoded JSON value to float64. Null reads as the
// string "0.0" first, so defaults and provider strings parse the same way.
func coerceFloat(v any) (float64, error) {
	if v == nil {
		v = missingValue
	}
	switch x := v.(type) {
	case json.Number:
		return parseFloat(x.String())
	case string:
		return parseFloat(x)
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("%w: %T is not numeric", ErrSchema, v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrSchema, s)
	}
	return f, nil
}
