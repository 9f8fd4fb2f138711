package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lox/powerwallcost/internal/httputil"
)

const DefaultTeslaURL = "https://owner-api.teslamotors.com"

// Sample is one raw telemetry interval as returned by the provider: a
// timestamp plus named energy-flow fields in Wh.
type Sample map[string]any

// Battery is a Powerwall energy site on the account.
type Battery struct {
	EnergySiteID int64
	SiteName     string
}

// TeslaClient reads energy-site history from the Tesla owner API.
type TeslaClient struct {
	baseURL string
	token   string
	siteID  string
	req     *httputil.Requester
}

func NewTeslaClient(client *http.Client, baseURL, token string, retries uint64) *TeslaClient {
	if baseURL == "" {
		baseURL = DefaultTeslaURL
	}
	return &TeslaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		req:     &httputil.Requester{Client: client, Provider: "tesla", Retries: retries},
	}
}

// ForSite returns a copy of the client bound to an energy site.
func (c *TeslaClient) ForSite(siteID string) *TeslaClient {
	cp := *c
	cp.siteID = siteID
	return &cp
}

func (c *TeslaClient) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

type productsResponse struct {
	Response []struct {
		EnergySiteID int64  `json:"energy_site_id"`
		ResourceType string `json:"resource_type"`
		SiteName     string `json:"site_name"`
	} `json:"response"`
}

// Batteries lists the battery energy sites on the account in provider order.
func (c *TeslaClient) Batteries(ctx context.Context) ([]Battery, error) {
	var data productsResponse
	if err := c.req.GetJSON(ctx, "products", c.baseURL+"/api/1/products", c.header(), &data); err != nil {
		return nil, err
	}
	var out []Battery
	for _, p := range data.Response {
		if p.ResourceType != "battery" {
			continue
		}
		out = append(out, Battery{EnergySiteID: p.EnergySiteID, SiteName: p.SiteName})
	}
	return out, nil
}

// FirstBattery returns the account's first battery.
func (c *TeslaClient) FirstBattery(ctx context.Context) (Battery, error) {
	batteries, err := c.Batteries(ctx)
	if err != nil {
		return Battery{}, fmt.Errorf("list batteries: %w", err)
	}
	if len(batteries) == 0 {
		return Battery{}, fmt.Errorf("no battery found on account")
	}
	return batteries[0], nil
}

type calendarHistoryResponse struct {
	Response *struct {
		TimeSeries *[]Sample `json:"time_series"`
	} `json:"response"`
}

// CalendarHistory returns the energy time series between two ISO-8601
// timestamps for the bound site.
func (c *TeslaClient) CalendarHistory(ctx context.Context, start, end string) ([]Sample, error) {
	if c.siteID == "" {
		return nil, fmt.Errorf("calendar history: no energy site selected")
	}
	params := url.Values{}
	params.Set("kind", "energy")
	params.Set("period", "day")
	params.Set("start_date", start)
	params.Set("end_date", end)
	u := fmt.Sprintf("%s/api/1/energy_sites/%s/calendar_history?%s", c.baseURL, url.PathEscape(c.siteID), params.Encode())

	var data calendarHistoryResponse
	if err := c.req.GetJSON(ctx, "calendar_history", u, c.header(), &data); err != nil {
		return nil, err
	}
	if data.Response == nil || data.Response.TimeSeries == nil {
		return nil, fmt.Errorf("calendar history: %w: response.time_series", ErrSchema)
	}
	return *data.Response.TimeSeries, nil
}
