package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	alerts "signalwatch/internal/alerts/domain"
)

const defaultListLimit = 50

// Handler provides alert record endpoints.
type Handler struct {
	records alerts.RecordStore
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(records alerts.RecordStore, logger *log.Logger) (*Handler, error) {
	if records == nil {
		return nil, errors.New("alerts handler: nil record store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{records: records, logger: logger}, nil
}

// ServeHTTP handles /api/v1/alerts and /api/v1/alerts/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/alerts":
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alerts/"):
		h.handleGet(w, r, strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	list, err := h.records.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Printf("alerts list error: %v", err)
		http.Error(w, "alerts unavailable", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.AlertRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	record, err := h.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Printf("alerts get error: id=%s err=%v", id, err)
		http.Error(w, "alerts unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}
