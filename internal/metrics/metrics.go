package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powerwallcost"

var (
	ProviderAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerwallcost_provider_api_calls_total",
			Help: "Total telemetry and price provider API calls",
		},
		[]string{"provider", "endpoint", "status"},
	)

	ProviderAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerwallcost_provider_api_latency_seconds",
			Help:    "Provider API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "endpoint"},
	)

	TelemetrySamplesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerwallcost_telemetry_samples_ingested_total",
			Help: "Telemetry samples turned into usage records",
		},
	)

	TelemetrySamplesOutOfWindow = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerwallcost_telemetry_samples_out_of_window_total",
			Help: "Telemetry samples dropped for falling outside the requested time range",
		},
	)

	TelemetryQualityFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerwallcost_telemetry_quality_flags_total",
			Help: "Usage records with implausible energy flows, by flag",
		},
		[]string{"flag"},
	)

	PriceQuotesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerwallcost_price_quotes_ingested_total",
			Help: "Price quotes turned into price records",
		},
		[]string{"channel"},
	)

	PriceQuotesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerwallcost_price_quotes_duplicate_total",
			Help: "Price quotes skipped because the interval and channel were already seen",
		},
	)

	IntervalsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerwallcost_intervals_merged_total",
			Help: "Intervals present in both the usage and price series",
		},
	)

	IntervalsUnmatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerwallcost_intervals_unmatched_total",
			Help: "Intervals dropped from the merge because only one series had them",
		},
		[]string{"side"},
	)
)

// Summary gathers every powerwallcost metric from g and returns one value
// per family: counters are summed across label sets and histograms report
// their total observation count.
func Summary(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, namespace+"_") {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[strings.TrimPrefix(name, namespace+"_")] = total
	}
	return out, nil
}

// SortedKeys returns the keys of a summary in a stable order for logging.
func SortedKeys(summary map[string]float64) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
