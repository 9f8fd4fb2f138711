package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lox/powerwallcost/internal/config"
)

func strp(s string) *string { return &s }

func price(nem, channel string, perKwh float64) AmberPrice {
	return AmberPrice{
		NemTime:     strp(nem),
		ChannelType: strp(channel),
		PerKwh:      json.Number(strconv.FormatFloat(perKwh, 'f', -1, 64)),
	}
}

type fakePrices struct {
	calls  [][2]string
	chunks map[string][]AmberPrice
}

func (f *fakePrices) Prices(ctx context.Context, start, end time.Time) ([]AmberPrice, error) {
	f.calls = append(f.calls, [2]string{start.Format(config.DateLayout), end.Format(config.DateLayout)})
	return f.chunks[start.Format(config.DateLayout)], nil
}

func TestPriceColumn(t *testing.T) {
	tests := map[string]string{
		"general":        "amber_general",
		"feedIn":         "amber_feed_in",
		"controlledLoad": "amber_controlled_load",
		"demandWindow":   "amber_demand_window",
		"spot":           "amber_spot",
	}
	for channel, want := range tests {
		if got := PriceColumn(channel); got != want {
			t.Errorf("PriceColumn(%q) = %q, want %q", channel, got, want)
		}
	}
}

func TestQuotesFromPrices_ShiftsToIntervalStart(t *testing.T) {
	quotes, err := QuotesFromPrices([]AmberPrice{price("2024-01-01T00:05:00+10:00", "general", 25.5)})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, config.MarketZone)
	if !quotes[0].Time.Equal(want) {
		t.Errorf("time = %v, want %v", quotes[0].Time, want)
	}
	if quotes[0].Type != "general" || quotes[0].Cost != 25.5 {
		t.Errorf("quote = %+v", quotes[0])
	}
}

func TestQuotesFromPrices_CoercesCost(t *testing.T) {
	var prices []AmberPrice
	body := `[
		{"nemTime":"2024-01-01T00:05:00+10:00","channelType":"general","perKwh":21.3},
		{"nemTime":"2024-01-01T00:05:00+10:00","channelType":"feedIn","perKwh":"-4.25"}
	]`
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&prices); err != nil {
		t.Fatalf("decode: %v", err)
	}

	quotes, err := QuotesFromPrices(prices)
	if err != nil {
		t.Fatalf("QuotesFromPrices: %v", err)
	}
	if quotes[0].Cost != 21.3 || quotes[1].Cost != -4.25 {
		t.Errorf("costs = %v, %v; want 21.3, -4.25", quotes[0].Cost, quotes[1].Cost)
	}
}

func TestQuotesFromPrices_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		p    AmberPrice
	}{
		{"no nemTime", AmberPrice{ChannelType: strp("general"), PerKwh: json.Number("1")}},
		{"no channelType", AmberPrice{NemTime: strp("2024-01-01T00:05:00+10:00"), PerKwh: json.Number("1")}},
		{"no perKwh", AmberPrice{NemTime: strp("2024-01-01T00:05:00+10:00"), ChannelType: strp("general")}},
		{"bad nemTime", price("midnight", "general", 1)},
		{"non-numeric perKwh", AmberPrice{NemTime: strp("2024-01-01T00:05:00+10:00"), ChannelType: strp("general"), PerKwh: "cheap"}},
	}
	for _, tt := range tests {
		if _, err := QuotesFromPrices([]AmberPrice{tt.p}); !errors.Is(err, ErrSchema) {
			t.Errorf("%s: err = %v, want ErrSchema", tt.name, err)
		}
	}
}

func TestPivotQuotes(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, config.MarketZone)
	quotes := []Quote{
		{Time: t0.Add(-5 * time.Minute), Type: "general", Cost: 99},
		{Time: t0, Type: "general", Cost: 20},
		{Time: t0, Type: "feedIn", Cost: -5},
		{Time: t0.Add(5 * time.Minute), Type: "general", Cost: 21},
		{Time: t0, Type: "general", Cost: 30},
		{Time: t0.Add(5 * time.Minute), Type: "feedIn", Cost: -6},
	}

	tbl, dups, err := PivotQuotes(quotes, t0)
	if err != nil {
		t.Fatal(err)
	}
	if dups != 1 {
		t.Errorf("dups = %d, want 1", dups)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	if s := tbl.Schema(); len(s.Values) != 2 || s.Values[0] != ColGeneralPrice || s.Values[1] != ColFeedInPrice {
		t.Errorf("columns = %v", s.Values)
	}

	general, _ := tbl.Column(ColGeneralPrice)
	feedIn, _ := tbl.Column(ColFeedInPrice)
	if general[0] != 20 || general[1] != 21 {
		t.Errorf("general = %v, want [20 21]", general)
	}
	if feedIn[0] != -5 || feedIn[1] != -6 {
		t.Errorf("feed_in = %v, want [-5 -6]", feedIn)
	}
	if times := tbl.Times(); !times[0].Equal(t0) {
		t.Errorf("first row at %v, want %v", times[0], t0)
	}
}

func TestPriceBuilder_RequestsChunksAndDedupesOverlap(t *testing.T) {
	w, err := config.NewWindow("2024-01-01", "2024-01-06", config.DefaultDaylightSaving, 4)
	if err != nil {
		t.Fatal(err)
	}
	// Both chunks include 2024-01-05, so the boundary interval arrives twice.
	fake := &fakePrices{chunks: map[string][]AmberPrice{
		"2024-01-01": {
			price("2024-01-01T00:00:00+10:00", "general", 50),
			price("2024-01-01T00:05:00+10:00", "general", 10),
			price("2024-01-05T00:05:00+10:00", "general", 11),
		},
		"2024-01-05": {
			price("2024-01-05T00:05:00+10:00", "general", 12),
			price("2024-01-06T00:05:00+10:00", "feedIn", 3),
		},
	}}

	tbl, err := NewPriceBuilder(fake, nil).Build(context.Background(), w)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantCalls := [][2]string{{"2024-01-01", "2024-01-05"}, {"2024-01-05", "2024-01-06"}}
	if len(fake.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", fake.calls, wantCalls)
	}
	for i := range wantCalls {
		if fake.calls[i] != wantCalls[i] {
			t.Errorf("call %d = %v, want %v", i, fake.calls[i], wantCalls[i])
		}
	}

	// The 00:00 quote covers 23:55 the day before the window and is dropped.
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}
	general, _ := tbl.Column(ColGeneralPrice)
	if general[0] != 10 || general[1] != 11 || general[2] != 0 {
		t.Errorf("general = %v, want [10 11 0]", general)
	}
}
