// Package server exposes the HTTP API for the dashboard: history, ROI,
// battery health, tariff comparison, configuration and data import.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/benbjohnson/clock"
	"github.com/go-resty/resty/v2"
	"github.com/levenlabs/go-lflag"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/forecast"
	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/market"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/storage"
)

// Server handles the HTTP API for the SunFlow system. It orchestrates
// interactions between the inverter, storage, market data and config.
type Server struct {
	storage  storage.Database
	config   *config.Store
	inverter *inverter.Client
	market   *market.Client
	forecast *forecast.Service
	sender   notify.Sender
	hub      *Hub
	clk      clock.Clock

	listenAddr string
	devProxy   string
	adminToken string
	serverName string
	version    string
	httpServer *http.Server

	releaseCheck releaseCache
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, cfg *config.Store, inv *inverter.Client, mkt *market.Client, fc *forecast.Service, sender notify.Sender, hub *Hub, clk clock.Clock) *Server {
	srv := &Server{
		storage:    db,
		config:     cfg,
		inverter:   inv,
		market:     mkt,
		forecast:   fc,
		sender:     sender,
		hub:        hub,
		clk:        clk,
		serverName: "sunflow",
	}
	srv.releaseCheck.http = resty.New().SetTimeout(5 * time.Second)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	adminToken := lflag.String("admin-token", "", "Bearer token required on mutating endpoints; empty disables the check")
	version := lflag.String("version", "dev", "Version reported by /api/info")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		srv.adminToken = *adminToken
		srv.version = *version
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/config", s.handleGetConfig)
	apiMux.HandleFunc("POST /api/config", s.requireAdmin(s.handleUpdateConfig))
	apiMux.HandleFunc("GET /api/tariffs", s.handleListTariffs)
	apiMux.HandleFunc("POST /api/tariffs", s.requireAdmin(s.handleAddTariff))
	apiMux.HandleFunc("DELETE /api/tariffs/{id}", s.requireAdmin(s.handleDeleteTariff))
	apiMux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	apiMux.HandleFunc("POST /api/expenses", s.requireAdmin(s.handleAddExpense))
	apiMux.HandleFunc("DELETE /api/expenses/{id}", s.requireAdmin(s.handleDeleteExpense))
	apiMux.HandleFunc("GET /api/history", s.handleHistory)
	apiMux.HandleFunc("GET /api/energy", s.handleEnergy)
	apiMux.HandleFunc("GET /api/simulation-data", s.handleSimulationData)
	apiMux.HandleFunc("GET /api/roi", s.handleROI)
	apiMux.HandleFunc("GET /api/battery-health", s.handleBatteryHealth)
	apiMux.HandleFunc("GET /api/dynamic-pricing/awattar/compare", s.handleAwattarCompare)
	apiMux.HandleFunc("GET /api/data", s.handleRealtimeData)
	apiMux.HandleFunc("GET /api/forecast", s.handleForecast)
	apiMux.HandleFunc("POST /api/test-notification", s.requireAdmin(s.handleTestNotification))
	apiMux.HandleFunc("POST /api/import-csv", s.requireAdmin(s.handleImportCSV))
	apiMux.HandleFunc("POST /api/preview-csv", s.requireAdmin(s.handlePreviewCSV))
	apiMux.HandleFunc("GET /api/info", s.handleInfo)
	apiMux.HandleFunc("GET /api/live", s.handleLive)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	mux.HandleFunc("/healthz", s.handleHealthz)

	// proxy everything else to the frontend dev server when configured
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	}

	return s.serverNameMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// requireAdmin guards mutating endpoints with a bearer token. With no token
// configured the instance is treated as a trusted single-user deployment
// and the check is skipped.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token != s.adminToken {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) serverNameMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
