package forecast

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-resty/resty/v2"
)

const openMeteoBase = "https://api.open-meteo.com/v1/forecast"

// sunTimes resolves today's sunrise and sunset for a location via
// Open-Meteo and caches them per location and day. Open-Meteo needs no API
// key, so this costs nothing beyond one call per day.
type sunTimes struct {
	http *resty.Client
	clk  clock.Clock

	mu    sync.Mutex
	cache map[string][2]time.Time
}

func newSunTimes(client *resty.Client, clk clock.Clock) *sunTimes {
	return &sunTimes{
		http:  client,
		clk:   clk,
		cache: make(map[string][2]time.Time),
	}
}

type openMeteoResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Daily            struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

func (s *sunTimes) Today(ctx context.Context, lat, lon float64, now time.Time) (sunrise, sunset time.Time, err error) {
	if lat == 0 && lon == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("no location configured for sun times")
	}

	key := fmt.Sprintf("%.4f:%.4f:%s", lat, lon, now.Format("2006-01-02"))
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached[0], cached[1], nil
	}
	s.mu.Unlock()

	var body openMeteoResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":      strconv.FormatFloat(lat, 'f', 4, 64),
			"longitude":     strconv.FormatFloat(lon, 'f', 4, 64),
			"daily":         "sunrise,sunset",
			"timezone":      "auto",
			"forecast_days": "1",
		}).
		SetResult(&body).
		Get(openMeteoBase)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("fetching sun times: %w", err)
	}
	if !resp.IsSuccess() {
		return time.Time{}, time.Time{}, fmt.Errorf("open-meteo returned %s", resp.Status())
	}
	if len(body.Daily.Sunrise) == 0 || len(body.Daily.Sunset) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("open-meteo returned no sun times")
	}

	// Open-Meteo returns local wall-clock ISO strings for the requested
	// location plus the UTC offset they are relative to.
	zone := time.FixedZone("location", body.UTCOffsetSeconds)
	sunrise, err = time.ParseInLocation("2006-01-02T15:04", body.Daily.Sunrise[0], zone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing sunrise %q: %w", body.Daily.Sunrise[0], err)
	}
	sunset, err = time.ParseInLocation("2006-01-02T15:04", body.Daily.Sunset[0], zone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing sunset %q: %w", body.Daily.Sunset[0], err)
	}

	s.mu.Lock()
	s.cache[key] = [2]time.Time{sunrise, sunset}
	s.mu.Unlock()
	return sunrise, sunset, nil
}
