package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	monitorapp "signalwatch/internal/monitor/application"
	observations "signalwatch/internal/observations/domain"
)

// Monitor is the subset of the monitor loop served over HTTP.
type Monitor interface {
	Status(ctx context.Context, limit int) (monitorapp.Status, error)
	TryCycle(ctx context.Context) (observations.Observation, bool, error)
}

// RefreshResponse is returned by POST /api/v1/status/refresh.
type RefreshResponse struct {
	Observation *observations.Observation `json:"observation,omitempty"`
	Ran         bool                      `json:"ran"`
}

// Handler provides status endpoints.
type Handler struct {
	monitor          Monitor
	triggerOnRequest bool
	defaultLimit     int
	logger           *log.Logger
}

// HandlerOption configures the status handler.
type HandlerOption func(*Handler)

// WithDefaultLimit sets the recent-history size used when ?limit is absent.
func WithDefaultLimit(limit int) HandlerOption {
	return func(h *Handler) {
		if observations.ValidateLimit(limit) == nil {
			h.defaultLimit = limit
		}
	}
}

// NewHandler constructs a handler. Refresh is only served when triggerOnRequest is set.
func NewHandler(monitor Monitor, triggerOnRequest bool, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if monitor == nil {
		return nil, errors.New("status handler: nil monitor")
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		monitor:          monitor,
		triggerOnRequest: triggerOnRequest,
		defaultLimit:     observations.DefaultRecentLimit,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/status and /api/v1/status/refresh.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleStatus(w, r)
	case "/api/v1/status/refresh":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !h.triggerOnRequest {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleRefresh(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			err = observations.ValidateLimit(parsed)
		}
		if err != nil {
			http.Error(w, "limit must be between 1 and 10000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	status, err := h.monitor.Status(r.Context(), limit)
	if err != nil {
		h.logger.Printf("status query error: %v", err)
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A disconnecting client must not cut a capture short of being recorded.
	obs, ran, err := h.monitor.TryCycle(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Printf("status refresh error: %v", err)
		http.Error(w, "refresh failed", http.StatusServiceUnavailable)
		return
	}
	resp := RefreshResponse{Ran: ran}
	if obs.SequenceID > 0 {
		resp.Observation = &obs
	}
	w.Header().Set("Content-Type", "application/json")
	if !ran {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
