package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// MarketZone is the fixed +10:00 offset used for provider queries and for
// month bucketing. It carries no daylight-saving rules.
var MarketZone = time.FixedZone("AEST", 10*60*60)

const DateLayout = "2006-01-02"

// Reference analysis window.
const (
	DefaultStart          = "2024-01-01"
	DefaultEnd            = "2024-06-30"
	DefaultDaylightSaving = "2024-04-07"
	DefaultPeriodDays     = 4
)

// Window is the reporting period. All dates are midnight in MarketZone.
type Window struct {
	Start          time.Time
	End            time.Time
	DaylightSaving time.Time
	PeriodDays     int
}

// ParseDate parses a YYYY-MM-DD date as midnight in MarketZone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), MarketZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// NewWindow parses and validates a reporting window.
func NewWindow(start, end, daylightSaving string, periodDays int) (Window, error) {
	var w Window
	var err error
	if w.Start, err = ParseDate(start); err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	if w.End, err = ParseDate(end); err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	if w.DaylightSaving, err = ParseDate(daylightSaving); err != nil {
		return Window{}, fmt.Errorf("daylight saving: %w", err)
	}
	w.PeriodDays = periodDays
	return w, w.Validate()
}

func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return fmt.Errorf("end %s is before start %s", w.End.Format(DateLayout), w.Start.Format(DateLayout))
	}
	if w.PeriodDays < 1 {
		return fmt.Errorf("period length must be at least 1 day, got %d", w.PeriodDays)
	}
	return nil
}

// Days returns every calendar day in [Start, End] in order.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// ErrMissingCredential is returned when a required environment variable is unset.
var ErrMissingCredential = errors.New("missing credential")

// Credentials for the telemetry and price providers.
type Credentials struct {
	TeslaUsername    string
	TeslaAccessToken string
	AmberSiteID      string
	AmberAPIKey      string
}

// CredentialsFromEnv reads credentials from the environment. Call after any
// .env file has been loaded.
func CredentialsFromEnv() Credentials {
	return Credentials{
		TeslaUsername:    os.Getenv("TESLA_USERNAME"),
		TeslaAccessToken: os.Getenv("TESLA_ACCESS_TOKEN"),
		AmberSiteID:      os.Getenv("AMBER_SITE_ID"),
		AmberAPIKey:      os.Getenv("AMBER_API_KEY"),
	}
}

// Validate reports every missing credential at once.
func (c Credentials) Validate() error {
	var missing []string
	if c.TeslaUsername == "" {
		missing = append(missing, "TESLA_USERNAME")
	}
	if c.TeslaAccessToken == "" {
		missing = append(missing, "TESLA_ACCESS_TOKEN")
	}
	if c.AmberSiteID == "" {
		missing = append(missing, "AMBER_SITE_ID")
	}
	if c.AmberAPIKey == "" {
		missing = append(missing, "AMBER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}
