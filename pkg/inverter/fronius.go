// Package inverter talks to a Fronius inverter's Solar API. A one second
// cache throttles requests so multiple open dashboards cannot overload the
// device, which answers slowly under load.
package inverter

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-resty/resty/v2"

	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	powerflowPath  = "/solar_api/v1/GetPowerFlowRealtimeData.fcgi"
	cacheTTL       = time.Second
	requestTimeout = 3 * time.Second
)

var hostPattern = regexp.MustCompile(`^([0-9]{1,3}(?:\.[0-9]{1,3}){3})(?::([0-9]{1,5}))?$`)

// ValidateHost accepts only a private IPv4 address with an optional port.
// The inverter lives on the LAN; anything else is a misconfiguration.
func ValidateHost(host string) error {
	m := hostPattern.FindStringSubmatch(strings.TrimSpace(host))
	if m == nil {
		return fmt.Errorf("inverter host %q must be an IPv4 address with optional port", host)
	}
	ip := net.ParseIP(m[1])
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("inverter host %q is not a valid IPv4 address", host)
	}
	if !ip.IsPrivate() {
		return fmt.Errorf("inverter host %q must be a private address", host)
	}
	if m[2] != "" {
		p, err := strconv.Atoi(m[2])
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("inverter host %q has an invalid port", host)
		}
	}
	return nil
}

// Reading is one snapshot of the powerflow endpoint, normalized into a
// PowerSample plus the site-level ratios the realtime view shows.
type Reading struct {
	Sample types.PowerSample
	// Online is false when the inverter did not answer at all.
	Online bool
	// AutonomyPercent and SelfConsumptionPercent are the inverter's own
	// instantaneous figures.
	AutonomyPercent        float64
	SelfConsumptionPercent float64
}

type powerflowResponse struct {
	Head struct {
		Status struct {
			Code int `json:"Code"`
		} `json:"Status"`
	} `json:"Head"`
	Body struct {
		Data struct {
			Site struct {
				PPV                float64 `json:"P_PV"`
				PLoad              float64 `json:"P_Load"`
				PGrid              float64 `json:"P_Grid"`
				PAkku              float64 `json:"P_Akku"`
				EDay               float64 `json:"E_Day"`
				RelAutonomy        float64 `json:"rel_Autonomy"`
				RelSelfConsumption float64 `json:"rel_SelfConsumption"`
			} `json:"Site"`
			Inverters map[string]struct {
				SOC        float64 `json:"SOC"`
				StatusCode *int    `json:"StatusCode"`
			} `json:"Inverters"`
		} `json:"Data"`
	} `json:"Body"`
}

type Client struct {
	http *resty.Client
	clk  clock.Clock

	mu       sync.Mutex
	cached   *Reading
	cachedAt time.Time
}

func New(clk clock.Clock) *Client {
	return &Client{
		http: resty.New().SetTimeout(requestTimeout),
		clk:  clk,
	}
}

// Fetch returns the current powerflow reading. An unreachable inverter is a
// state, not an error: the reading comes back with Online false and status
// offline so the caller still logs a sample. Only a rejected host errors.
func (c *Client) Fetch(ctx context.Context, host string) (Reading, error) {
	if err := ValidateHost(host); err != nil {
		return Reading{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if c.cached != nil && now.Sub(c.cachedAt) < cacheTTL {
		r := *c.cached
		r.Sample.Timestamp = now
		return r, nil
	}

	var body powerflowResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("http://" + strings.TrimSpace(host) + powerflowPath)

	r := Reading{Sample: types.PowerSample{Timestamp: now, Status: types.StatusOffline}}
	if err == nil && resp.IsSuccess() {
		r = normalize(body, now)
	}
	c.cached = &r
	c.cachedAt = now
	return r, nil
}

func normalize(body powerflowResponse, now time.Time) Reading {
	site := body.Body.Data.Site

	var soc float64
	var deviceStatus *int
	if len(body.Body.Data.Inverters) > 0 {
		keys := make([]string, 0, len(body.Body.Data.Inverters))
		for k := range body.Body.Data.Inverters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		inv := body.Body.Data.Inverters[keys[0]]
		soc = inv.SOC
		deviceStatus = inv.StatusCode
	}

	r := Reading{
		Sample: types.PowerSample{
			Timestamp:       now,
			SolarW:          site.PPV,
			HomeW:           abs(site.PLoad),
			GridW:           site.PGrid,
			BatteryW:        site.PAkku,
			SOC:             soc,
			DayProductionWh: site.EDay,
		},
		Online:                 true,
		AutonomyPercent:        site.RelAutonomy,
		SelfConsumptionPercent: site.RelSelfConsumption,
	}
	r.Sample.Status = deriveStatus(body.Head.Status.Code, deviceStatus, site.PPV, site.PAkku)
	return r
}

// deriveStatus maps the Solar API status onto the dashboard states. Device
// status 7 is producing, 8 and 9 are standby/boot, 10 and up are faults.
// Older firmware omits the device status, so near-zero PV and battery power
// is treated as idle.
func deriveStatus(apiCode int, deviceStatus *int, pvW, battW float64) types.InverterStatus {
	if apiCode != 0 {
		return types.StatusError
	}
	if deviceStatus != nil {
		switch {
		case *deviceStatus == 7:
			return types.StatusNormal
		case *deviceStatus == 8 || *deviceStatus == 9:
			return types.StatusIdle
		case *deviceStatus >= 10:
			return types.StatusError
		}
	}
	if abs(pvW) < 5 && abs(battW) < 10 {
		return types.StatusIdle
	}
	return types.StatusNormal
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
