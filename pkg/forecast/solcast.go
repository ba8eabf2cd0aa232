// Package forecast proxies the Solcast rooftop production forecast. The
// hobbyist Solcast tier allows roughly ten calls a day, so responses are
// cached for 75 minutes and the upstream is only called inside the daylight
// window (sunrise to sunset with a two hour buffer on both ends).
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-resty/resty/v2"

	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	solcastBase    = "https://api.solcast.com.au"
	cacheTTL       = 75 * time.Minute
	daylightBuffer = 2 * time.Hour
	requestTimeout = 8 * time.Second
)

var (
	// ErrNotConfigured is returned while the Solcast credentials are unset.
	ErrNotConfigured = errors.New("solcast is not configured")
	// ErrRateLimited is returned when Solcast rejects the call with a 429.
	ErrRateLimited = errors.New("solcast rate limit reached")

	credentialPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

type Service struct {
	http *resty.Client
	clk  clock.Clock
	sun  *sunTimes

	mu       sync.Mutex
	cached   json.RawMessage
	cachedAt time.Time
}

func New(clk clock.Clock) *Service {
	client := resty.New().SetTimeout(requestTimeout)
	return &Service{
		http: client,
		clk:  clk,
		sun:  newSunTimes(client, clk),
	}
}

// Forecast returns the raw Solcast forecast document. Cached data is served
// while fresh and, outside daylight, stale data is preferred over burning a
// nighttime API call that would report zeros anyway.
func (s *Service) Forecast(ctx context.Context, cfg types.SolcastSettings) (json.RawMessage, error) {
	if !credentialPattern.MatchString(cfg.APIKey) || !credentialPattern.MatchString(cfg.ResourceID) {
		return nil, ErrNotConfigured
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if s.cached != nil && now.Sub(s.cachedAt) < cacheTTL {
		return s.cached, nil
	}

	if !s.daylight(ctx, cfg, now) {
		if s.cached != nil {
			return s.cached, nil
		}
		return json.RawMessage(`{"forecasts":[]}`), nil
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("format", "json").
		SetQueryParam("api_key", cfg.APIKey).
		Get(solcastBase + "/rooftop_sites/" + cfg.ResourceID + "/forecasts")
	if err != nil || !resp.IsSuccess() {
		if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
		// serve stale data over failing
		if s.cached != nil {
			return s.cached, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fetching solcast forecast: %w", err)
		}
		return nil, fmt.Errorf("solcast returned %s", resp.Status())
	}

	s.cached = json.RawMessage(resp.Body())
	s.cachedAt = now
	return s.cached, nil
}

// daylight reports whether now falls in the solar window. Missing sun times
// degrade to the fixed 06:00-18:00 window.
func (s *Service) daylight(ctx context.Context, cfg types.SolcastSettings, now time.Time) bool {
	sunrise, sunset, err := s.sun.Today(ctx, cfg.Latitude, cfg.Longitude, now)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "falling back to fixed daylight window", "error", err)
		h := now.Hour()
		return h >= 6 && h < 18
	}
	return !now.Before(sunrise.Add(-daylightBuffer)) && now.Before(sunset.Add(daylightBuffer))
}

// RemainingTodayKWH sums the forecast production left for today, used by
// notification heuristics. Solcast reports average power per 30 minute slot.
func RemainingTodayKWH(raw json.RawMessage, now time.Time) float64 {
	var doc struct {
		Forecasts []struct {
			PVEstimate float64   `json:"pv_estimate"`
			PeriodEnd  time.Time `json:"period_end"`
		} `json:"forecasts"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0
	}
	var kwh float64
	for _, f := range doc.Forecasts {
		if f.PeriodEnd.After(now) && f.PeriodEnd.Local().Day() == now.Day() {
			kwh += f.PVEstimate * 0.5
		}
	}
	return kwh
}
