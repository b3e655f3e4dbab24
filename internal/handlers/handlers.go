package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"golang.org/x/xerrors"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"FOCUS_TRACKER/go-backend/internal/database"
	"FOCUS_TRACKER/go-backend/internal/models"
	"FOCUS_TRACKER/go-backend/internal/protocol"
	"FOCUS_TRACKER/go-backend/internal/services"
)

// API serves the REST routes over stored sessions.
type API struct {
	log      slog.Logger
	stats    *services.StatsService
	registry *services.Registry
	health   *services.HealthService
	clock    quartz.Clock
	started  time.Time
	version  string
	metrics  http.Handler
}

func NewAPI(log slog.Logger, stats *services.StatsService, registry *services.Registry, health *services.HealthService, clock quartz.Clock, version string) *API {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &API{
		log:      log.Named("api"),
		stats:    stats,
		registry: registry,
		health:   health,
		clock:    clock,
		started:  clock.Now(),
		version:  version,
	}
}

func (a *API) Routes(r chi.Router) {
	r.Get("/", a.handleRoot)
	r.Get("/health", a.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		if a.metrics != nil {
			r.Handle("/metrics", a.metrics)
		}
		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Get("/", a.handleListSessions)
			r.Get("/current", a.handleCurrentSession)
			r.Get("/daily/{date}", a.handleDailyStats)
			r.Get("/weekly", a.handleWeeklyStats)
		})
		r.Get("/leaderboard/{period}", a.handleLeaderboard)
		r.Get("/stats/{userID}/summary", a.handleSummary)
	})
}

func (a *API) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Focus tracker API",
		"version": a.version,
		"status":  "running",
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:     "healthy",
		Store:      "ok",
		GRPCStatus: healthpb.HealthCheckResponse_SERVING.String(),
		UptimeSec:  int64(a.clock.Since(a.started).Seconds()),
		Timestamp:  a.clock.Now().UTC().Format(time.RFC3339),
		Version:    a.version,
	}
	if a.registry != nil {
		status.ActiveClients = a.registry.Count()
		status.ActiveSessions = a.registry.ActiveSessions()
	}
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		serving := a.health.Check(ctx)
		status.GRPCStatus = serving.String()
		if serving != healthpb.HealthCheckResponse_SERVING {
			status.Status = "degraded"
			status.Store = "unavailable"
		}
	}
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()

	from, err := a.parseTime(q.Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date: "+err.Error())
		return
	}
	to, err := a.parseTime(q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date: "+err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"), services.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	sessions, err := a.stats.Sessions(r.Context(), userID, from, to, limit)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.StudySession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleCurrentSession answers null when the user has no stored session.
func (a *API) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.stats.Current(r.Context(), chi.URLParam(r, "userID"))
	if xerrors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date, err := a.parseTime(chi.URLParam(r, "date"))
	if err != nil || date.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}
	stats, err := a.stats.Daily(r.Context(), chi.URLParam(r, "userID"), date)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleWeeklyStats(w http.ResponseWriter, r *http.Request) {
	weekStart, err := a.parseTime(r.URL.Query().Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid week_start")
		return
	}
	stats, err := a.stats.Weekly(r.Context(), chi.URLParam(r, "userID"), weekStart)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), services.MaxLeaderboardLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	board, err := a.stats.Leaderboard(r.Context(), chi.URLParam(r, "period"), limit)
	if xerrors.Is(err, services.ErrInvalidPeriod) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.stats.Summary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// parseTime accepts a bare date in the stats location or any instant the
// wire protocol accepts. Empty input yields the zero time.
func (a *API) parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, a.stats.Location()); err == nil {
		return t, nil
	}
	return protocol.ParseInstant(v)
}

func parseLimit(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, xerrors.Errorf("limit %q is not a positive integer", v)
	}
	return n, nil
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error(r.Context(), "request failed", slog.F("path", r.URL.Path), slog.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     msg,
		Timestamp: time.Now().Unix(),
	})
}
