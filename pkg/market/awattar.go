// Package market fetches day-ahead electricity prices from the aWATTar
// public API. Prices are hourly and country-based (Germany or Austria).
package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/robotnikz/sunflow/pkg/log"
)

const (
	endpointDE = "https://api.awattar.de/v1/marketdata"
	endpointAT = "https://api.awattar.at/v1/marketdata"

	requestTimeout = 10 * time.Second
)

type marketdataResponse struct {
	Data []struct {
		StartTimestamp int64   `json:"start_timestamp"`
		Marketprice    float64 `json:"marketprice"`
		Unit           string  `json:"unit"`
	} `json:"data"`
}

// Client fetches and caches market prices. Day-ahead prices never change
// once published, so a fetched range is kept for the life of the process.
type Client struct {
	http *resty.Client

	mu    sync.Mutex
	cache map[string]map[time.Time]float64
}

func New() *Client {
	return &Client{
		http:  resty.New().SetTimeout(requestTimeout),
		cache: make(map[string]map[time.Time]float64),
	}
}

// Prices returns Eur/kWh keyed by local hour start for the given range.
// Country is "de" or "at"; anything else falls back to Germany. aWATTar
// reports Eur/MWh, converted here.
func (c *Client) Prices(ctx context.Context, country string, start, end time.Time) (map[time.Time]float64, error) {
	endpoint := endpointDE
	cc := "de"
	if country == "at" || country == "AT" {
		endpoint = endpointAT
		cc = "at"
	}

	key := cc + ":" + strconv.FormatInt(start.UnixMilli(), 10) + ":" + strconv.FormatInt(end.UnixMilli(), 10)
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var body marketdataResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("start", strconv.FormatInt(start.UnixMilli(), 10)).
		SetQueryParam("end", strconv.FormatInt(end.UnixMilli(), 10)).
		SetResult(&body).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching awattar marketdata: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("awattar marketdata returned %s", resp.Status())
	}

	prices := make(map[time.Time]float64, len(body.Data))
	for _, d := range body.Data {
		if d.StartTimestamp == 0 {
			continue
		}
		hour := time.UnixMilli(d.StartTimestamp).Local().Truncate(time.Hour)
		prices[hour] = d.Marketprice / 1000
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched awattar marketdata",
		"country", cc, "hours", len(prices))

	c.mu.Lock()
	c.cache[key] = prices
	c.mu.Unlock()
	return prices, nil
}
