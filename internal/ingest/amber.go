package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lox/powerwallcost/internal/httputil"
)

const DefaultAmberURL = "https://api.amber.com.au/v1"

// AmberPrice is one interval price for one channel. Only the fields the
// report needs are decoded; pointers distinguish absent from zero. PerKwh
// holds the raw decoded value (json.Number or string) and is coerced with
// the telemetry fields.
type AmberPrice struct {
	NemTime     *string `json:"nemTime"`
	ChannelType *string `json:"channelType"`
	PerKwh      any     `json:"perKwh"`
}

// AmberClient reads historical prices for one Amber site.
type AmberClient struct {
	baseURL string
	siteID  string
	apiKey  string
	req     *httputil.Requester
}

func NewAmberClient(client *http.Client, baseURL, siteID, apiKey string, retries uint64) *AmberClient {
	if baseURL == "" {
		baseURL = DefaultAmberURL
	}
	return &AmberClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		siteID:  siteID,
		apiKey:  apiKey,
		req:     &httputil.Requester{Client: client, Provider: "amber", Retries: retries},
	}
}

// Prices returns 5-minute prices for every channel between two dates,
// both inclusive.
func (c *AmberClient) Prices(ctx context.Context, start, end time.Time) ([]AmberPrice, error) {
	params := url.Values{}
	params.Set("startDate", start.Format("2006-01-02"))
	params.Set("endDate", end.Format("2006-01-02"))
	params.Set("resolution", "5")
	u := fmt.Sprintf("%s/sites/%s/prices?%s", c.baseURL, url.PathEscape(c.siteID), params.Encode())

	h := http.Header{}
	h.Set("accept", "application/json")
	h.Set("Authorization", "Bearer "+c.apiKey)

	var prices []AmberPrice
	if err := c.req.GetJSON(ctx, "prices", u, h, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}
