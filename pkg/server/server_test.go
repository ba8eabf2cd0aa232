package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/forecast"
	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/market"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/storage"
	"github.com/robotnikz/sunflow/pkg/storage/storagemock"
	"github.com/robotnikz/sunflow/pkg/types"
)

type stubSender struct {
	sent []notify.Embed
	err  error
}

func (s *stubSender) Send(_ context.Context, _ string, embed notify.Embed) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, embed)
	return nil
}

func newTestServer(t *testing.T, db storage.Database) (*Server, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local))
	srv := &Server{
		storage:    db,
		config:     config.New(filepath.Join(t.TempDir(), "config.json")),
		inverter:   inverter.New(clk),
		market:     market.New(),
		forecast:   forecast.New(clk),
		sender:     &stubSender{},
		hub:        NewHub(),
		clk:        clk,
		serverName: "sunflow",
		version:    "1.0.0",
	}
	srv.releaseCheck.http = resty.New()
	return srv, clk
}

func doRequest(srv *Server, method, target string, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)
	return w
}

func TestRequireAdmin(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv, _ := newTestServer(t, db)
	srv.adminToken = "secret"

	handler := srv.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest("POST", "/api/config", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("POST", "/api/config", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("POST", "/api/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireAdminOpenWithoutToken(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv, _ := newTestServer(t, db)

	handler := srv.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest("POST", "/api/config", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv, _ := newTestServer(t, db)
	srv.adminToken = "secret"

	cfg, err := srv.config.Get()
	require.NoError(t, err)
	cfg.Notifications.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	cfg.Solcast.APIKey = "key-123"
	require.NoError(t, srv.config.Save(cfg))

	w := doRequest(srv, "GET", "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "webhooks/1/abc")
	assert.NotContains(t, w.Body.String(), "key-123")

	req := httptest.NewRequest("GET", "/api/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "webhooks/1/abc")
}

func TestUpdateConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid host", `{"inverterHost":"192.168.1.50"}`, http.StatusOK},
		{"public host rejected", `{"inverterHost":"8.8.8.8"}`, http.StatusBadRequest},
		{"hostname rejected", `{"inverterHost":"fronius.local"}`, http.StatusBadRequest},
		{"valid webhook", `{"notifications":{"webhookUrl":"https://discord.com/api/webhooks/1/t"}}`, http.StatusOK},
		{"foreign webhook rejected", `{"notifications":{"webhookUrl":"https://evil.example/api/webhooks/1/t"}}`, http.StatusBadRequest},
		{"bad solcast key", `{"solcast":{"apiKey":"has spaces!"}}`, http.StatusBadRequest},
		{"not json", `[1,2,3]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &storagemock.MockDatabase{})
			w := doRequest(srv, "POST", "/api/config", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestUpdateConfigMergePersists(t *testing.T) {
	srv, _ := newTestServer(t, &storagemock.MockDatabase{})

	w := doRequest(srv, "POST", "/api/config", `{"inverterHost":"10.0.0.7","batteryCapacityKwh":12.5}`)
	require.Equal(t, http.StatusOK, w.Code)

	cfg, err := srv.config.Get()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.InverterHost)
	assert.Equal(t, 12.5, cfg.BatteryCapacityKWH)
}

func TestTestNotification(t *testing.T) {
	srv, _ := newTestServer(t, &storagemock.MockDatabase{})

	// unconfigured webhook
	w := doRequest(srv, "POST", "/api/test-notification", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cfg, err := srv.config.Get()
	require.NoError(t, err)
	cfg.Notifications.WebhookURL = "https://discord.com/api/webhooks/1/abc"
	require.NoError(t, srv.config.Save(cfg))

	w = doRequest(srv, "POST", "/api/test-notification", "")
	require.Equal(t, http.StatusOK, w.Code)
	sender := srv.sender.(*stubSender)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Test Notification", sender.sent[0].Title)
}

func TestBatteryHealthEndpoint(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("GetBatteryDayStats", mock.Anything).Return([]types.BatteryDayStats{
		{Date: "2024-06-01", ChargeWSum: 600000, DischargeWSum: 540000, MinSOC: 10, MaxSOC: 95, Samples: 700},
	}, nil)
	srv, _ := newTestServer(t, db)

	w := doRequest(srv, "GET", "/api/battery-health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"averageEfficiency":90`)
	assert.Contains(t, body, `"dataPoints"`)
	db.AssertExpectations(t)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &storagemock.MockDatabase{})
	w := doRequest(srv, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
