package server

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"

	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/types"
)

const maxConfigBody = 64 << 10

var solcastTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}
	if !s.isAdmin(r) {
		cfg = redactConfig(cfg)
	}
	writeJSON(w, cfg)
}

func (s *Server) isAdmin(r *http.Request) bool {
	if s.adminToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.adminToken
}

// redactConfig strips secrets before handing the config to an
// unauthenticated dashboard.
func redactConfig(c types.Config) types.Config {
	if c.Notifications.WebhookURL != "" {
		c.Notifications.WebhookURL = "(configured)"
	}
	if c.Solcast.APIKey != "" {
		c.Solcast.APIKey = "(configured)"
	}
	return c
}

// handleUpdateConfig applies a shallow merge patch. Fields that end up in
// outbound request URLs (inverter host, webhook, Solcast credentials) are
// validated before anything is persisted.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil {
		writeJSONError(w, "invalid config payload", http.StatusBadRequest)
		return
	}

	if raw, ok := patch["inverterHost"]; ok {
		var host string
		if err := json.Unmarshal(raw, &host); err != nil {
			writeJSONError(w, "invalid inverterHost", http.StatusBadRequest)
			return
		}
		if host != "" {
			if err := inverter.ValidateHost(host); err != nil {
				writeJSONError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
	}
	if raw, ok := patch["notifications"]; ok {
		var n types.NotificationSettings
		if err := json.Unmarshal(raw, &n); err != nil {
			writeJSONError(w, "invalid notifications payload", http.StatusBadRequest)
			return
		}
		if n.WebhookURL != "" {
			if _, err := notify.ValidateWebhook(n.WebhookURL); err != nil {
				writeJSONError(w, "invalid Discord webhook URL", http.StatusBadRequest)
				return
			}
		}
	}
	if raw, ok := patch["solcast"]; ok {
		var sc types.SolcastSettings
		if err := json.Unmarshal(raw, &sc); err != nil {
			writeJSONError(w, "invalid solcast payload", http.StatusBadRequest)
			return
		}
		if sc.APIKey != "" && !solcastTokenPattern.MatchString(sc.APIKey) {
			writeJSONError(w, "invalid Solcast API key", http.StatusBadRequest)
			return
		}
		if sc.ResourceID != "" && !solcastTokenPattern.MatchString(sc.ResourceID) {
			writeJSONError(w, "invalid Solcast resource ID", http.StatusBadRequest)
			return
		}
	}

	if _, err := s.config.Merge(body); err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "saving config failed", "error", err)
		writeJSONError(w, "failed to save config", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Success bool `json:"success"`
	}{Success: true})
}
