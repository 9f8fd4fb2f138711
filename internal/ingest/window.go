package ingest

import (
	"time"

	"github.com/lox/powerwallcost/internal/config"
)

const isoLayout = "2006-01-02T15:04:05-07:00"

// DayEndHour is the last hour requested for day d. Days on or after the
// daylight-saving transition stop at 22:59:59 so the calendar-day query does
// not reach into the next day's data.
func DayEndHour(d, daylightSaving time.Time) int {
	if !dateBefore(d, daylightSaving) {
		return 22
	}
	return 23
}

// DayWindow returns the first and last instants requested for day d, both
// in the fixed market offset.
func DayWindow(d, daylightSaving time.Time) (time.Time, time.Time) {
	y, m, day := d.Date()
	start := time.Date(y, m, day, 0, 0, 0, 0, config.MarketZone)
	end := time.Date(y, m, day, DayEndHour(d, daylightSaving), 59, 59, 0, config.MarketZone)
	return start, end
}

// ISOTimestamp renders t's wall clock with the fixed +10:00 offset, e.g.
// 2024-01-01T00:00:00+10:00. The wall clock is kept as is.
func ISOTimestamp(t time.Time) string {
	y, m, d := t.Date()
	fixed := time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, config.MarketZone)
	return fixed.Format(isoLayout)
}

// Chunk is one price request range. Both dates are inclusive.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Chunks splits the window into price requests starting every PeriodDays
// days. Each chunk ends PeriodDays after its start, clipped to the window
// end, so neighbouring chunks share their boundary day.
func Chunks(w config.Window) []Chunk {
	var chunks []Chunk
	for start := w.Start; !start.After(w.End); start = start.AddDate(0, 0, w.PeriodDays) {
		end := start.AddDate(0, 0, w.PeriodDays)
		if end.After(w.End) {
			end = w.End
		}
		chunks = append(chunks, Chunk{Start: start, End: end})
	}
	return chunks
}

func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
