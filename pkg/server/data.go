package server

import (
	"errors"
	"math"
	"net/http"

	"github.com/robotnikz/sunflow/pkg/forecast"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/notify"
)

type realtimePower struct {
	PV      float64 `json:"pv"`
	Load    float64 `json:"load"`
	Grid    float64 `json:"grid"`
	Battery float64 `json:"battery"`
}

type realtimeBattery struct {
	SOC   float64 `json:"soc"`
	State string  `json:"state"`
}

type realtimeData struct {
	Power   realtimePower   `json:"power"`
	Battery realtimeBattery `json:"battery"`
	Energy  struct {
		Today struct {
			Production  float64 `json:"production"`
			Consumption float64 `json:"consumption"`
		} `json:"today"`
	} `json:"energy"`
	Autonomy        float64 `json:"autonomy"`
	SelfConsumption float64 `json:"selfConsumption"`
}

// handleRealtimeData returns the current inverter snapshot for the live
// dashboard tiles.
func (s *Server) handleRealtimeData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}
	if cfg.InverterHost == "" {
		writeJSONError(w, "no inverter host configured", http.StatusInternalServerError)
		return
	}

	reading, err := s.inverter.Fetch(ctx, cfg.InverterHost)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data realtimeData
	if reading.Online {
		sample := reading.Sample
		data.Power = realtimePower{
			PV:      math.Round(sample.SolarW),
			Load:    math.Round(sample.HomeW),
			Grid:    math.Round(sample.GridW),
			Battery: math.Round(sample.BatteryW),
		}
		data.Battery = realtimeBattery{SOC: sample.SOC, State: batteryState(sample.BatteryW)}
		data.Energy.Today.Production = sample.DayProductionWh / 1000
		data.Autonomy = math.Round(reading.AutonomyPercent)
		data.SelfConsumption = math.Round(reading.SelfConsumptionPercent)
	} else {
		data.Battery.State = "idle"
	}
	writeJSON(w, data)
}

func batteryState(batteryW float64) string {
	switch {
	case batteryW < -10:
		return "charging"
	case batteryW > 10:
		return "discharging"
	default:
		return "idle"
	}
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}

	raw, err := s.forecast.Forecast(ctx, cfg.Solcast)
	switch {
	case errors.Is(err, forecast.ErrNotConfigured):
		writeJSONError(w, "solcast not configured", http.StatusBadRequest)
	case errors.Is(err, forecast.ErrRateLimited):
		writeJSONError(w, "solcast rate limit reached", http.StatusTooManyRequests)
	case err != nil:
		log.Ctx(ctx).ErrorContext(ctx, "forecast fetch failed", "error", err)
		writeJSONError(w, "failed to fetch forecast", http.StatusBadGateway)
	default:
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(raw); err != nil {
			panic(http.ErrAbortHandler)
		}
	}
}

// handleTestNotification sends a test embed to the webhook persisted in
// config. The webhook is never taken from the request so this endpoint
// cannot be used to probe arbitrary URLs.
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}
	if _, err := notify.ValidateWebhook(cfg.Notifications.WebhookURL); err != nil {
		writeJSONError(w, "Discord webhook not configured", http.StatusBadRequest)
		return
	}

	err = s.sender.Send(ctx, cfg.Notifications.WebhookURL, notify.Embed{
		Title:       "Test Notification",
		Description: "SunFlow notifications are working correctly!",
		Color:       notify.ColorWarn,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "test notification failed", "error", err)
		writeJSONError(w, "failed to send notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Success bool `json:"success"`
	}{Success: true})
}
