// Package handlers implements the HTTP request handlers for the stats API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"statbucket/application/stats"
	"statbucket/domain/metrics"
	"statbucket/domain/timebucket"
	"statbucket/pkg/api"
	apperrors "statbucket/pkg/errors"
	"statbucket/pkg/utils"
)

// StatsHandler exposes the stats engine over HTTP.
type StatsHandler struct {
	service *stats.Service
	logger  *zap.Logger
}

// NewStatsHandler creates the handler.
func NewStatsHandler(service *stats.Service, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logger}
}

// PutStatsRequest is the body of POST /stats. Metrics accepts arbitrarily
// nested objects of numbers and strings; arrays, booleans and nulls are
// dropped during decoding.
type PutStatsRequest struct {
	Namespace string         `json:"namespace" validate:"required,max=512"`
	Metrics   metrics.Object `json:"metrics"`
	Session   string         `json:"session,omitempty" validate:"omitempty,max=512"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// PutStats handles POST /stats.
func (h *StatsHandler) PutStats(w http.ResponseWriter, r *http.Request) {
	var req PutStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	in := stats.PutInput{
		Namespace: req.Namespace,
		Metrics:   req.Metrics,
		Session:   req.Session,
	}
	if req.Timestamp != "" {
		ts, err := timebucket.Parse(req.Timestamp)
		if err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Timestamp = ts
	}

	rec, err := h.service.Put(r.Context(), in)
	if err != nil {
		h.fail(w, "put", err, zap.String("namespace", req.Namespace))
		return
	}
	api.Success(w, http.StatusOK, rec)
}

// GetStats handles GET /stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	sum, err := h.service.GetStats(r.Context(), stats.RangeInput{
		Namespace: r.URL.Query().Get("namespace"),
		From:      from,
		To:        to,
	})
	if err != nil {
		h.fail(w, "getStats", err)
		return
	}
	api.Success(w, http.StatusOK, sum)
}

// GetHistogram handles GET /stats/histogram. An absent period defaults to
// hourly buckets.
func (h *StatsHandler) GetHistogram(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = string(timebucket.PeriodHour)
	}

	hist, err := h.service.GetStatsHistogram(r.Context(), stats.HistogramInput{
		Namespace: r.URL.Query().Get("namespace"),
		From:      from,
		To:        to,
		Period:    timebucket.Period(period),
	})
	if err != nil {
		h.fail(w, "getStatsHistogram", err)
		return
	}
	api.Success(w, http.StatusOK, hist)
}

// ListSessions handles GET /sessions.
func (h *StatsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := stats.SessionQuery{
		Namespace: r.URL.Query().Get("namespace"),
		ID:        r.URL.Query().Get("id"),
		Desc:      r.URL.Query().Get("desc") == "true",
		StartKey:  r.URL.Query().Get("startKey"),
	}
	var ok bool
	if q.From, q.To, ok = h.timeRange(w, r); !ok {
		return
	}
	if q.Limit, ok = h.limit(w, r); !ok {
		return
	}

	page, err := h.service.FetchSessions(r.Context(), q)
	if err != nil {
		h.fail(w, "fetchSessions", err)
		return
	}
	api.Success(w, http.StatusOK, page)
}

// ListLogs handles GET /logs.
func (h *StatsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := stats.LogQuery{
		Namespace: r.URL.Query().Get("namespace"),
		Session:   r.URL.Query().Get("session"),
		Desc:      r.URL.Query().Get("desc") == "true",
		StartKey:  r.URL.Query().Get("startKey"),
	}
	var ok bool
	if q.From, q.To, ok = h.timeRange(w, r); !ok {
		return
	}
	if q.Limit, ok = h.limit(w, r); !ok {
		return
	}

	page, err := h.service.FetchLogs(r.Context(), q)
	if err != nil {
		h.fail(w, "fetchLogs", err)
		return
	}
	api.Success(w, http.StatusOK, page)
}

// ClearStats handles DELETE /stats. It removes every record of the namespace
// across all tables.
func (h *StatsHandler) ClearStats(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")

	count, err := h.service.Clear(r.Context(), namespace)
	if err != nil {
		h.fail(w, "clear", err, zap.String("namespace", namespace))
		return
	}
	api.Success(w, http.StatusOK, map[string]int{"count": count})
}

// timeRange parses the from/to query parameters. Absent values stay zero;
// the engine decides whether they were required.
func (h *StatsHandler) timeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = timebucket.Parse(raw); err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return from, to, false
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = timebucket.Parse(raw); err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return from, to, false
		}
	}
	return from, to, true
}

func (h *StatsHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "limit must be a number")
		return 0, false
	}
	return limit, true
}

// fail sends the mapped error response, logging everything except plain
// input validation failures.
func (h *StatsHandler) fail(w http.ResponseWriter, operation string, err error, fields ...zap.Field) {
	if !apperrors.IsValidation(err) {
		h.logger.Error("request failed",
			append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)...,
		)
	}
	api.AppError(w, err)
}
