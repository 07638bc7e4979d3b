package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alerts "signalwatch/internal/alerts/domain"
	"signalwatch/internal/capture"
	"signalwatch/internal/classifier"
	"signalwatch/internal/observability/metrics"
	observations "signalwatch/internal/observations/domain"
)

// AlertHandler receives observations that concern alerting.
type AlertHandler interface {
	Handle(ctx context.Context, obs observations.Observation) *alerts.AlertRecord
}

// Archiver stores the frame behind a malfunction observation.
type Archiver interface {
	Archive(frame capture.Frame, obs observations.Observation) (string, error)
}

// Clock provides cycle timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Status is the cached view served to operators.
type Status struct {
	Latest      *observations.Observation `json:"latest,omitempty"`
	Recent      []observations.Observation `json:"recent"`
	Alert       *alerts.DispatcherState    `json:"alert,omitempty"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// Monitor runs capture, classify, record and dispatch cycles.
type Monitor struct {
	source     capture.Source
	classifier classifier.Classifier
	log        observations.Log
	alerts     AlertHandler
	alertState func() alerts.DispatcherState
	sink       *MultiSink
	archiver   Archiver
	clock      Clock
	logger     *log.Logger
	interval   time.Duration

	// storeTimeout bounds the append and fan-out that follow a capture.
	storeTimeout time.Duration

	cycleMu sync.Mutex

	latestMu  sync.RWMutex
	latest    observations.Observation
	hasLatest bool
}

// Option configures the monitor.
type Option func(*Monitor)

// WithAlertHandler forwards classified observations to handler.
func WithAlertHandler(handler AlertHandler) Option {
	return func(m *Monitor) {
		if handler != nil {
			m.alerts = handler
		}
	}
}

// WithAlertState exposes the dispatcher state in Status.
func WithAlertState(state func() alerts.DispatcherState) Option {
	return func(m *Monitor) {
		m.alertState = state
	}
}

// WithSink adds an observation sink.
func WithSink(sink Sink) Option {
	return func(m *Monitor) {
		m.sink.Add(sink)
	}
}

// WithArchiver enables malfunction snapshot archiving.
func WithArchiver(archiver Archiver) Option {
	return func(m *Monitor) {
		if archiver != nil {
			m.archiver = archiver
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInterval sets the scheduled cycle interval.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithStoreTimeout bounds how long a cycle may spend recording and fanning out
// an observation once the frame has been captured.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		if timeout > 0 {
			m.storeTimeout = timeout
		}
	}
}

// NewMonitor constructs a monitor loop.
func NewMonitor(source capture.Source, cls classifier.Classifier, obsLog observations.Log, opts ...Option) (*Monitor, error) {
	if source == nil {
		return nil, errors.New("monitor: nil frame source")
	}
	if cls == nil {
		return nil, errors.New("monitor: nil classifier")
	}
	if obsLog == nil {
		return nil, observations.ErrNilLog
	}
	m := &Monitor{
		source:       source,
		classifier:   cls,
		log:          obsLog,
		sink:         NewMultiSink(),
		clock:        systemClock{},
		logger:       log.Default(),
		interval:     5 * time.Second,
		storeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RunCycle executes one full cycle, waiting for any cycle already in flight.
func (m *Monitor) RunCycle(ctx context.Context) (observations.Observation, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	return m.cycle(ctx)
}

// TryCycle runs a cycle unless one is in flight, in which case it returns the latest
// observation and false without capturing.
func (m *Monitor) TryCycle(ctx context.Context) (observations.Observation, bool, error) {
	if !m.cycleMu.TryLock() {
		latest, _ := m.Latest()
		return latest, false, nil
	}
	defer m.cycleMu.Unlock()
	obs, err := m.cycle(ctx)
	return obs, true, err
}

// Latest returns the most recently appended observation.
func (m *Monitor) Latest() (observations.Observation, bool) {
	m.latestMu.RLock()
	defer m.latestMu.RUnlock()
	return m.latest, m.hasLatest
}

// Status returns the latest observation and the recent history. It never captures.
func (m *Monitor) Status(ctx context.Context, limit int) (Status, error) {
	recent, err := m.log.Recent(ctx, limit)
	if err != nil {
		return Status{}, err
	}
	if recent == nil {
		recent = []observations.Observation{}
	}
	status := Status{Recent: recent, GeneratedAt: m.clock.Now().UTC()}
	if latest, ok := m.Latest(); ok {
		status.Latest = &latest
	} else if len(recent) > 0 {
		latest := recent[0]
		status.Latest = &latest
	}
	if m.alertState != nil {
		state := m.alertState()
		status.Alert = &state
	}
	return status, nil
}

// Start runs a cycle immediately and then on every interval tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.runScheduled(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runScheduled(ctx)
		}
	}
}

func (m *Monitor) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.RunCycle(ctx); err != nil {
		m.logger.Printf("monitor cycle error: %v", err)
	}
}

func (m *Monitor) cycle(ctx context.Context) (observations.Observation, error) {
	start := m.clock.Now().UTC()
	began := time.Now()
	result := metrics.ResultSuccess
	forward := true

	var obs observations.Observation
	frame, err := m.source.Capture(ctx)
	if err != nil {
		m.logger.Printf("monitor capture error: %v", err)
		obs = observations.NewObservation(start, observations.StateUnknown, 0)
		obs.Detail = fmt.Sprintf("capture failed: %v", err)
		forward = false
		result = metrics.CycleResultCaptureError
	} else {
		classified, err := m.classifier.Classify(ctx, frame)
		if err != nil {
			m.logger.Printf("monitor classify error: source=%s err=%v", frame.Source, err)
			obs = observations.NewObservation(start, observations.StateUnknown, 0)
			obs.Detail = fmt.Sprintf("classify failed: %v", err)
			forward = false
			result = metrics.CycleResultClassifyError
		} else {
			obs = observations.NewObservation(start, classified.State, classified.Confidence)
			obs.Detail = classified.Detail
		}
		obs.Source = frame.Source
	}

	// A captured frame is always recorded, even when the caller has gone away.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storeTimeout)
	defer cancel()

	id, err := m.log.Append(storeCtx, obs)
	if err != nil {
		metrics.ObserveCycle(metrics.CycleResultStorageFault, time.Since(began))
		return obs, fmt.Errorf("monitor: append observation: %w", err)
	}
	obs = obs.WithSequence(id)

	m.latestMu.Lock()
	m.latest = obs
	m.hasLatest = true
	m.latestMu.Unlock()

	metrics.ObserveSignalState(string(obs.State), stateLabels())
	if obs.IsMalfunction() && m.archiver != nil && !frame.Empty() {
		if path, err := m.archiver.Archive(frame, obs); err != nil {
			m.logger.Printf("monitor snapshot error: observation=%d err=%v", obs.SequenceID, err)
		} else {
			m.logger.Printf("monitor snapshot saved: observation=%d path=%s", obs.SequenceID, path)
		}
	}
	m.sink.Publish(storeCtx, obs)
	if forward && m.alerts != nil {
		m.alerts.Handle(storeCtx, obs)
	}
	metrics.ObserveCycle(result, time.Since(began))
	return obs, nil
}

func stateLabels() []string {
	labels := make([]string, 0, len(observations.States))
	for _, state := range observations.States {
		labels = append(labels, string(state))
	}
	return labels
}
