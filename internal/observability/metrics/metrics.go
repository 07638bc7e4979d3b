package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "signalwatch_"

	resultSuccess = "success"
	resultError   = "error"

	cycleResultStorageFault  = "storage_fault"
	cycleResultCaptureError  = "capture_error"
	cycleResultClassifyError = "classify_error"
)

var (
	registerOnce sync.Once

	cyclesTotal  *prometheus.CounterVec
	cycleLatency *prometheus.HistogramVec

	observationsTotal *prometheus.CounterVec
	signalState       *prometheus.GaugeVec

	alertRecordsTotal  *prometheus.CounterVec
	alertAttemptsTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers signalwatch metrics. When db is non-nil a gauge reports the stored observation count.
func Init(db *sql.DB, observationsTable string, logger *log.Logger) {
	registerOnce.Do(func() {
		cyclesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total monitor cycles by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_latency_seconds",
				Help:    "Monitor cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		observationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "observations_total",
				Help: "Total appended observations by signal state",
			},
			[]string{"state"},
		)
		signalState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "signal_state",
				Help: "Current signal state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		)

		alertRecordsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_records_total",
				Help: "Total alert records by final status",
			},
			[]string{"status"},
		)
		alertAttemptsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_attempts_total",
				Help: "Total alert send attempts by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total history export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			cyclesTotal,
			cycleLatency,
			observationsTotal,
			signalState,
			alertRecordsTotal,
			alertAttemptsTotal,
			exportTotal,
			exportLatency,
		)

		if db != nil && observationsTable != "" {
			registerDBMetrics(db, observationsTable, logger)
		}
	})
}

// ObserveCycle records monitor cycle duration and result.
func ObserveCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cyclesTotal != nil {
		cyclesTotal.WithLabelValues(result).Inc()
	}
	if cycleLatency != nil {
		cycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSignalState counts an appended observation and flips the current-state gauge.
func ObserveSignalState(state string, all []string) {
	if state == "" {
		state = "unknown"
	}
	if observationsTotal != nil {
		observationsTotal.WithLabelValues(state).Inc()
	}
	if signalState == nil {
		return
	}
	for _, candidate := range all {
		value := 0.0
		if candidate == state {
			value = 1
		}
		signalState.WithLabelValues(candidate).Set(value)
	}
}

// IncAlertRecord increments alert record counters.
func IncAlertRecord(status string) {
	if status == "" {
		status = "unknown"
	}
	if alertRecordsTotal != nil {
		alertRecordsTotal.WithLabelValues(status).Inc()
	}
}

// IncAlertAttempt increments alert send attempt counters.
func IncAlertAttempt(result string) {
	if result == "" {
		result = resultSuccess
	}
	if alertAttemptsTotal != nil {
		alertAttemptsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CycleResultStorageFault  = cycleResultStorageFault
	CycleResultCaptureError  = cycleResultCaptureError
	CycleResultClassifyError = cycleResultClassifyError
)
