package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	alerts "signalwatch/internal/alerts/domain"
	"signalwatch/internal/alerts/notify"
	"signalwatch/internal/observability/metrics"
	observations "signalwatch/internal/observations/domain"
)

var errDispatcherClosed = errors.New("abandoned: dispatcher closed")

// Clock provides time for cooldown and attempt bookkeeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config holds dispatch tuning.
type Config struct {
	CooldownWindow   time.Duration
	MaxRetryAttempts int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	SendTimeout      time.Duration
	Recipient        string
	SignalName       string
}

// DefaultConfig returns the dispatch defaults.
func DefaultConfig() Config {
	return Config{
		CooldownWindow:   10 * time.Minute,
		MaxRetryAttempts: 5,
		RetryBackoffBase: 2 * time.Second,
		RetryBackoffMax:  time.Minute,
		SendTimeout:      10 * time.Second,
	}
}

// Validate checks dispatch tuning.
func (c Config) Validate() error {
	if c.CooldownWindow <= 0 {
		return errors.New("alert dispatcher: cooldown window must be positive")
	}
	if c.MaxRetryAttempts <= 0 {
		return errors.New("alert dispatcher: max retry attempts must be positive")
	}
	if c.RetryBackoffBase < 0 || c.RetryBackoffMax < 0 {
		return errors.New("alert dispatcher: negative retry backoff")
	}
	if c.SendTimeout <= 0 {
		return errors.New("alert dispatcher: send timeout must be positive")
	}
	return nil
}

// delivery is the in-flight send sequence of one alert record.
type delivery struct {
	cancel  context.CancelFunc
	episode string
}

// Dispatcher decides alert-worthiness per observation and delivers alerts asynchronously.
type Dispatcher struct {
	transport notify.Transport
	template  *notify.Template
	records   alerts.RecordStore
	cfg       Config
	clock     Clock
	logger    *log.Logger
	storeTTL  time.Duration

	mu           sync.Mutex
	state        alerts.DispatcherState
	episodeStart time.Time
	inflight     *delivery

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTemplate overrides the default message template.
func WithTemplate(tpl *notify.Template) Option {
	return func(d *Dispatcher) {
		if tpl != nil {
			d.template = tpl
		}
	}
}

// NewDispatcher constructs an alert dispatcher.
func NewDispatcher(transport notify.Transport, records alerts.RecordStore, cfg Config, opts ...Option) (*Dispatcher, error) {
	if transport == nil {
		return nil, errors.New("alert dispatcher: nil transport")
	}
	if records == nil {
		return nil, errors.New("alert dispatcher: nil record store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tpl, err := notify.NewTemplate("")
	if err != nil {
		return nil, err
	}
	ctx, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport: transport,
		template:  tpl,
		records:   records,
		cfg:       cfg,
		clock:     systemClock{},
		logger:    log.Default(),
		storeTTL:  5 * time.Second,
		state: alerts.DispatcherState{
			LastAlertedState: observations.StateUnknown,
			CooldownWindow:   cfg.CooldownWindow,
		},
		baseCtx: ctx,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Handle evaluates one observation. It returns the record created for it, or nil when the
// observation does not concern alerting. It never blocks on delivery.
func (d *Dispatcher) Handle(ctx context.Context, obs observations.Observation) *alerts.AlertRecord {
	if d == nil {
		return nil
	}
	now := d.clock.Now().UTC()

	d.mu.Lock()
	if obs.State != observations.StateMalfunction {
		if d.state.Alerting() {
			d.logger.Printf("alert episode %s closed by observation %d (%s)", d.state.EpisodeID, obs.SequenceID, obs.State)
			d.endEpisodeLocked()
		}
		d.state.LastAlertedState = obs.State
		d.mu.Unlock()
		return nil
	}

	repeat := false
	switch {
	case !d.state.Alerting():
		d.state.LastAlertedState = observations.StateMalfunction
		d.state.EpisodeID = uuid.NewString()
		d.state.LastTriggerAt = nil
		d.episodeStart = obs.Timestamp
	case d.inflight != nil || !d.state.CooldownElapsed(now):
		record := d.newRecord(obs, alerts.StatusSuppressed, now)
		d.mu.Unlock()
		d.save(ctx, record)
		metrics.IncAlertRecord(string(alerts.StatusSuppressed))
		return &record
	default:
		repeat = true
	}

	record := d.newRecord(obs, alerts.StatusPending, now)
	sendCtx, cancel := context.WithCancel(d.baseCtx)
	current := &delivery{cancel: cancel, episode: d.state.EpisodeID}
	d.inflight = current
	d.state.InFlight = true
	d.state.LastTriggerAt = &now
	episodeStart := d.episodeStart
	d.wg.Add(1)
	d.mu.Unlock()

	d.save(ctx, record)
	go d.deliver(sendCtx, current, record, obs, repeat, episodeStart)
	result := record
	return &result
}

// State returns a snapshot of the dispatcher state.
func (d *Dispatcher) State() alerts.DispatcherState {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := d.state
	if d.state.LastAlertedAt != nil {
		at := *d.state.LastAlertedAt
		snapshot.LastAlertedAt = &at
	}
	if d.state.LastTriggerAt != nil {
		at := *d.state.LastTriggerAt
		snapshot.LastTriggerAt = &at
	}
	return snapshot
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Close abandons in-flight deliveries and waits for them to record their outcome.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stop()
	d.wg.Wait()
}

func (d *Dispatcher) endEpisodeLocked() {
	if d.inflight != nil {
		d.inflight.cancel()
		d.inflight = nil
	}
	d.state.InFlight = false
	d.state.EpisodeID = ""
	d.state.LastTriggerAt = nil
	d.episodeStart = time.Time{}
}

func (d *Dispatcher) newRecord(obs observations.Observation, status alerts.Status, now time.Time) alerts.AlertRecord {
	return alerts.AlertRecord{
		ID:                      uuid.NewString(),
		TriggeringObservationID: obs.SequenceID,
		EpisodeID:               d.state.EpisodeID,
		Status:                  status,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func (d *Dispatcher) deliver(ctx context.Context, current *delivery, record alerts.AlertRecord, obs observations.Observation, repeat bool, episodeStart time.Time) {
	defer d.wg.Done()
	defer current.cancel()

	body, err := d.template.Render(notify.BuildTemplateData(d.cfg.SignalName, obs, repeat, episodeStart))
	if err != nil {
		d.finish(current, record, alerts.StatusFailed, fmt.Sprintf("render template: %v", err))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetryAttempts; attempt++ {
		if attempt > 1 && !d.sleep(ctx, d.backoff(attempt-1)) {
			d.finish(current, record, alerts.StatusFailed, d.abandonReason())
			return
		}
		if ctx.Err() != nil {
			d.finish(current, record, alerts.StatusFailed, d.abandonReason())
			return
		}

		now := d.clock.Now().UTC()
		if record.FirstAttemptAt.IsZero() {
			record.FirstAttemptAt = now
		}
		record.LastAttemptAt = now
		record.AttemptCount = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		ack, err := d.transport.Send(attemptCtx, d.cfg.Recipient, body)
		cancel()
		if err == nil {
			metrics.IncAlertAttempt(metrics.ResultSuccess)
			d.logger.Printf("alert %s sent: observation=%d attempt=%d message=%s", record.ID, record.TriggeringObservationID, attempt, ack.MessageID)
			d.finish(current, record, alerts.StatusSent, "")
			return
		}
		metrics.IncAlertAttempt(metrics.ResultError)
		lastErr = err

		if ctx.Err() != nil {
			d.finish(current, record, alerts.StatusFailed, d.abandonReason())
			return
		}
		if !notify.IsTransient(err) {
			d.logger.Printf("alert %s send error: permanent attempt=%d err=%v", record.ID, attempt, err)
			d.finish(current, record, alerts.StatusFailed, err.Error())
			return
		}
		d.logger.Printf("alert %s send error: transient attempt=%d/%d err=%v", record.ID, attempt, d.cfg.MaxRetryAttempts, err)
		record.LastError = err.Error()
		record.UpdatedAt = now
		d.update(record)
	}
	d.finish(current, record, alerts.StatusFailed, fmt.Sprintf("%v: %v", alerts.ErrRetriesExhausted, lastErr))
}

func (d *Dispatcher) finish(current *delivery, record alerts.AlertRecord, status alerts.Status, lastErr string) {
	now := d.clock.Now().UTC()
	record.Status = status
	record.LastError = lastErr
	record.UpdatedAt = now

	d.mu.Lock()
	if d.inflight == current {
		d.inflight = nil
		d.state.InFlight = false
	}
	if status == alerts.StatusSent && d.state.EpisodeID == current.episode {
		sentAt := record.LastAttemptAt
		if sentAt.IsZero() {
			sentAt = now
		}
		d.state.LastAlertedAt = &sentAt
	}
	d.mu.Unlock()

	if status == alerts.StatusFailed {
		d.logger.Printf("alert %s failed: observation=%d attempts=%d err=%s", record.ID, record.TriggeringObservationID, record.AttemptCount, lastErr)
	}
	metrics.IncAlertRecord(string(status))
	d.update(record)
}

func (d *Dispatcher) abandonReason() string {
	if d.baseCtx.Err() != nil {
		return errDispatcherClosed.Error()
	}
	return alerts.ErrAbandoned.Error()
}

// backoff returns the wait before retry n (1-based).
func (d *Dispatcher) backoff(n int) time.Duration {
	wait := d.cfg.RetryBackoffBase
	for i := 1; i < n; i++ {
		wait *= 2
		if d.cfg.RetryBackoffMax > 0 && wait >= d.cfg.RetryBackoffMax {
			return d.cfg.RetryBackoffMax
		}
	}
	if d.cfg.RetryBackoffMax > 0 && wait > d.cfg.RetryBackoffMax {
		return d.cfg.RetryBackoffMax
	}
	return wait
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) save(ctx context.Context, record alerts.AlertRecord) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.storeTTL)
	defer cancel()
	if err := d.records.Save(ctx, record); err != nil {
		d.logger.Printf("alert record save error: id=%s err=%v", record.ID, err)
	}
}

func (d *Dispatcher) update(record alerts.AlertRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), d.storeTTL)
	defer cancel()
	if err := d.records.Update(ctx, record); err != nil {
		d.logger.Printf("alert record update error: id=%s err=%v", record.ID, err)
	}
}
