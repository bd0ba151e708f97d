package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusnet/internal/catalog"
	"campusnet/internal/events"
	"campusnet/internal/failover"
	"campusnet/internal/history"
	"campusnet/internal/metrics"
	"campusnet/internal/models"
	"campusnet/internal/monitor"
	"campusnet/internal/reconnect"
)

var errStreamUnavailable = errors.New("event stream unavailable")

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 5000
	maxTimelineHours    = 24 * 7
	maxTimelinePoints   = 1440
)

// Checker probes connectivity on demand.
type Checker interface {
	CheckNow(ctx context.Context) models.ConnectivityStatus
}

// Reconnector is the portal re-login service.
type Reconnector interface {
	TriggerReconnect() bool
	State() reconnect.State
	Enabled() bool
	SetEnabled(bool)
}

// FailoverRunner is the WiFi failover controller.
type FailoverRunner interface {
	Failover(ctx context.Context, ssid string) (failover.Outcome, error)
	Running() bool
}

// ProfileSource yields the current profile snapshot.
type ProfileSource interface {
	Catalog() *catalog.Catalog
}

// EventSource answers event journal queries.
type EventSource interface {
	Query(since time.Time, limit int, types ...events.Type) []events.Event
}

// Subscriber is the event bus as seen by the live stream.
type Subscriber interface {
	SubscribeAll(h events.Handler) func()
}

// Options wires the server to the engine. Failover may be nil when the
// platform has no WiFi control.
type Options struct {
	Addr           string
	AllowedOrigins []string

	Monitor   monitor.ConnectivitySource
	Checker   Checker
	Reconnect Reconnector
	Failover  FailoverRunner
	Profiles  ProfileSource
	Journal   EventSource
	Bus       Subscriber

	Clock clockwork.Clock
	Log   logr.Logger
}

// Server wraps HTTP serving of the API.
type Server struct {
	httpServer *http.Server
	opts       Options
	clock      clockwork.Clock
	log        logr.Logger
	upgrader   *websocket.Upgrader

	// closed by Shutdown; open event streams return when it is.
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a configured HTTP server.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Log.WithName("server"),
		upgrader: newUpgrader(opts.AllowedOrigins),
		done:     make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	s.log.Info("HTTP API listening", "addr", s.opts.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts the server down and closes open event streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/uptime", s.handleUptime).Methods(http.MethodGet)
	api.HandleFunc("/timeline", s.handleTimeline).Methods(http.MethodGet)
	api.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{ssid}", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/stream", s.handleEventStream).Methods(http.MethodGet)
	api.HandleFunc("/reconnect", s.handleReconnect).Methods(http.MethodPost)
	api.HandleFunc("/reconnect/enabled", s.handleReconnectEnabled).Methods(http.MethodPut)
	api.HandleFunc("/failover", s.handleFailover).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" && s.opts.Checker != nil {
		writeJSON(w, http.StatusOK, s.opts.Checker.CheckNow(r.Context()))
		return
	}
	status, ok := s.opts.Monitor.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"connected":  false,
			"checked_at": nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries := s.opts.Monitor.HistorySince(since)
	limit := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []models.ConnectivityStatus{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.ComputeUptime(s.opts.Monitor.HistorySince(since)))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	hours := parseInt(r, "hours", 24)
	if hours > maxTimelineHours {
		hours = maxTimelineHours
	}
	points := parseInt(r, "points", history.DefaultTimelinePoints)
	if points > maxTimelinePoints {
		points = maxTimelinePoints
	}

	end := s.clock.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	// One extra interval so the first bucket can inherit the prior state.
	samples := s.opts.Monitor.HistorySince(start.Add(-time.Hour))

	writeJSON(w, http.StatusOK, map[string]any{
		"start":    start,
		"end":      end,
		"timeline": history.BuildConnectivityTimeline(samples, start, end, points),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := s.opts.Profiles.Catalog().ByPriority()
	out := make([]models.WifiProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ssid := mux.Vars(r)["ssid"]
	p, ok := s.opts.Profiles.Catalog().Lookup(ssid)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown profile"))
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

type stateResponse struct {
	Reconnect struct {
		State   reconnect.State `json:"state"`
		Enabled bool            `json:"enabled"`
	} `json:"reconnect"`
	Failover struct {
		Available bool `json:"available"`
		Running   bool `json:"running"`
	} `json:"failover"`
	Profiles    int       `json:"profiles"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	var resp stateResponse
	resp.Reconnect.State = s.opts.Reconnect.State()
	resp.Reconnect.Enabled = s.opts.Reconnect.Enabled()
	if s.opts.Failover != nil {
		resp.Failover.Available = true
		resp.Failover.Running = s.opts.Failover.Running()
	}
	resp.Profiles = s.opts.Profiles.Catalog().Len()
	resp.GeneratedAt = s.clock.Now().UTC()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var types []events.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.Type(t))
			}
		}
	}
	limit := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	list := s.opts.Journal.Query(since, limit, types...)
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	if !s.opts.Reconnect.TriggerReconnect() {
		writeError(w, http.StatusConflict, reconnect.ErrInProgress)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleReconnectEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"enabled": true|false}`))
		return
	}
	s.opts.Reconnect.SetEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": s.opts.Reconnect.Enabled()})
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	if s.opts.Failover == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("wifi control unavailable on this platform"))
		return
	}
	var body struct {
		SSID string `json:"ssid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.SSID) == "" {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"ssid": "..."}`))
		return
	}

	outcome, err := s.opts.Failover.Failover(r.Context(), body.SSID)
	switch {
	case errors.Is(err, failover.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, failover.ErrNotEligible):
		writeError(w, http.StatusUnprocessableEntity, err)
	case err == nil, errors.Is(err, failover.ErrAllFailed):
		writeJSON(w, http.StatusOK, outcome)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func parseLimit(r *http.Request, fallback, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func parseInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseSince(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("since must be an RFC3339 timestamp")
	}
	return t, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
