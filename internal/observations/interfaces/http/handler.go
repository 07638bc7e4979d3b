package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signalwatch/internal/observability/metrics"
	observations "signalwatch/internal/observations/domain"
	"signalwatch/internal/observations/export"
)

const timeLayout = time.RFC3339

// Handler provides observation history endpoints.
type Handler struct {
	log    observations.Log
	signal string
	logger *log.Logger
	now    func() time.Time
}

// NewHandler constructs a handler.
func NewHandler(obsLog observations.Log, signal string, logger *log.Logger) (*Handler, error) {
	if obsLog == nil {
		return nil, observations.ErrNilLog
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		log:    obsLog,
		signal: signal,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP handles /api/v1/observations and /api/v1/exports/observations.{csv,xlsx,pdf}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/observations":
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/exports/observations."):
		h.handleExport(w, r, strings.TrimPrefix(r.URL.Path, "/api/v1/exports/observations."))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.log.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Printf("observations list error: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []observations.Observation{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	switch format {
	case export.FormatCSV, export.FormatXLSX, export.FormatPDF:
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	to := h.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if r.URL.Query().Get("from") != "" {
		if from, err = parseTimeQuery(r, "from"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if r.URL.Query().Get("to") != "" {
		if to, err = parseTimeQuery(r, "to"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	start := time.Now()
	list, err := h.log.Range(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		if errors.Is(err, observations.ErrInvalidRange) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Printf("observations export error: format=%s err=%v", format, err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	data, err := export.Build(format, export.Report{
		Signal:       h.signal,
		From:         from,
		To:           to,
		GeneratedAt:  h.now(),
		Observations: list,
	})
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.logger.Printf("observations export error: format=%s err=%v", format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))

	filename := fmt.Sprintf("observations_%s_%s.%s", from.Format("20060102T150405"), to.Format("20060102T150405"), format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return observations.DefaultRecentLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if err := observations.ValidateLimit(limit); err != nil {
		return 0, err
	}
	return limit, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
