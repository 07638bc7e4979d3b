package application

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	alerts "signalwatch/internal/alerts/domain"
	"signalwatch/internal/alerts/infrastructure/memory"
	"signalwatch/internal/alerts/notify"
	observations "signalwatch/internal/observations/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubTransport struct {
	mu     sync.Mutex
	calls  int
	bodies []string
	send   func(ctx context.Context, call int) error
}

func (s *stubTransport) Send(ctx context.Context, _ string, body string) (notify.Ack, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	if s.send != nil {
		if err := s.send(ctx, call); err != nil {
			return notify.Ack{}, err
		}
	}
	return notify.Ack{MessageID: "msg"}, nil
}

func (s *stubTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() Config {
	return Config{
		CooldownWindow:   time.Hour,
		MaxRetryAttempts: 3,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  5 * time.Millisecond,
		SendTimeout:      time.Second,
		Recipient:        "+15550100",
		SignalName:       "Main & 5th",
	}
}

func newTestDispatcher(t *testing.T, transport notify.Transport, cfg Config, clock Clock) (*Dispatcher, *memory.RecordStore) {
	t.Helper()
	store := memory.NewRecordStore()
	opts := []Option{WithLogger(log.New(io.Discard, "", 0))}
	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	d, err := NewDispatcher(transport, store, cfg, opts...)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, store
}

func obs(id int64, state observations.SignalState) observations.Observation {
	o := observations.NewObservation(time.Date(2026, 5, 1, 8, 0, int(id), 0, time.UTC), state, 0.9)
	return o.WithSequence(id)
}

func countStatus(records []alerts.AlertRecord, status alerts.Status) int {
	count := 0
	for _, record := range records {
		if record.Status == status {
			count++
		}
	}
	return count
}

func TestDispatcherSingleAlertPerEpisode(t *testing.T) {
	transport := &stubTransport{}
	d, store := newTestDispatcher(t, transport, testConfig(), nil)
	ctx := context.Background()

	sequence := []observations.SignalState{
		observations.StateGreen,
		observations.StateGreen,
		observations.StateMalfunction,
		observations.StateMalfunction,
		observations.StateMalfunction,
		observations.StateGreen,
	}
	for i, state := range sequence {
		d.Handle(ctx, obs(int64(i+1), state))
	}
	d.Wait()

	records := store.All()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	first := records[0]
	if first.TriggeringObservationID != 3 {
		t.Fatalf("expected first malfunction to trigger, got %d", first.TriggeringObservationID)
	}
	if first.Status != alerts.StatusSent && first.Status != alerts.StatusFailed {
		t.Fatalf("unexpected first status %s", first.Status)
	}
	if countStatus(records, alerts.StatusSuppressed) != 2 {
		t.Fatalf("expected 2 suppressed records: %+v", records)
	}
	if transport.Calls() > 1 {
		t.Fatalf("expected at most one send, got %d", transport.Calls())
	}
	if state := d.State(); state.Alerting() || state.EpisodeID != "" {
		t.Fatalf("expected normal state, got %+v", state)
	}
}

func TestDispatcherIndependentEpisodes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.CooldownWindow = time.Minute
	transport := &stubTransport{}
	d, store := newTestDispatcher(t, transport, cfg, clock)
	ctx := context.Background()

	d.Handle(ctx, obs(1, observations.StateMalfunction))
	d.Wait()
	clock.Advance(2 * time.Minute)
	d.Handle(ctx, obs(2, observations.StateGreen))
	clock.Advance(2 * time.Minute)
	d.Handle(ctx, obs(3, observations.StateMalfunction))
	d.Wait()

	records := store.All()
	if len(records) != 2 || countStatus(records, alerts.StatusSent) != 2 {
		t.Fatalf("expected two sent records, got %+v", records)
	}
	if records[0].EpisodeID == "" || records[0].EpisodeID == records[1].EpisodeID {
		t.Fatalf("expected distinct episodes, got %q and %q", records[0].EpisodeID, records[1].EpisodeID)
	}
}

func TestDispatcherRetriesTransientThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetryAttempts = 4
	transport := &stubTransport{send: func(_ context.Context, call int) error {
		if call < 4 {
			return notify.TransientError(errors.New("gateway busy"))
		}
		return nil
	}}
	d, store := newTestDispatcher(t, transport, cfg, nil)

	d.Handle(context.Background(), obs(1, observations.StateMalfunction))
	d.Wait()

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Status != alerts.StatusSent || records[0].AttemptCount != 4 {
		t.Fatalf("expected sent after 4 attempts, got %+v", records[0])
	}
	if records[0].FirstAttemptAt.IsZero() || records[0].LastAttemptAt.Before(records[0].FirstAttemptAt) {
		t.Fatalf("unexpected attempt times: %+v", records[0])
	}
	if d.State().LastAlertedAt == nil {
		t.Fatalf("expected last alerted at to be set")
	}
}

func TestDispatcherRetriesExhausted(t *testing.T) {
	cfg := testConfig()
	transport := &stubTransport{send: func(context.Context, int) error {
		return notify.TransientError(errors.New("timeout"))
	}}
	d, store := newTestDispatcher(t, transport, cfg, nil)

	d.Handle(context.Background(), obs(1, observations.StateMalfunction))
	d.Wait()

	record := store.All()[0]
	if record.Status != alerts.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.AttemptCount != cfg.MaxRetryAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetryAttempts, record.AttemptCount)
	}
	if !strings.Contains(record.LastError, "retries exhausted") {
		t.Fatalf("unexpected last error %q", record.LastError)
	}
	if d.State().LastAlertedAt != nil {
		t.Fatalf("failed send must not update last alerted at")
	}
}

func TestDispatcherPermanentErrorFailsImmediately(t *testing.T) {
	transport := &stubTransport{send: func(context.Context, int) error {
		return notify.PermanentError(errors.New("invalid recipient"))
	}}
	d, store := newTestDispatcher(t, transport, testConfig(), nil)

	d.Handle(context.Background(), obs(1, observations.StateMalfunction))
	d.Wait()

	record := store.All()[0]
	if record.Status != alerts.StatusFailed || record.AttemptCount != 1 {
		t.Fatalf("expected failed after 1 attempt, got %+v", record)
	}
	if transport.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", transport.Calls())
	}
}

func TestDispatcherRecoveryCancelsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetryAttempts = 10
	cfg.RetryBackoffBase = time.Hour
	cfg.RetryBackoffMax = time.Hour
	firstAttempt := make(chan struct{})
	var once sync.Once
	transport := &stubTransport{send: func(context.Context, int) error {
		once.Do(func() { close(firstAttempt) })
		return notify.TransientError(errors.New("unreachable"))
	}}
	d, store := newTestDispatcher(t, transport, cfg, nil)
	ctx := context.Background()

	d.Handle(ctx, obs(1, observations.StateMalfunction))
	select {
	case <-firstAttempt:
	case <-time.After(2 * time.Second):
		t.Fatalf("first attempt not made")
	}
	d.Handle(ctx, obs(2, observations.StateRed))

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("retry sequence was not cancelled")
	}

	record := store.All()[0]
	if record.Status != alerts.StatusFailed || record.LastError != alerts.ErrAbandoned.Error() {
		t.Fatalf("expected abandoned failure, got %+v", record)
	}
	if record.AttemptCount != 1 {
		t.Fatalf("expected 1 attempt, got %d", record.AttemptCount)
	}
}

func TestDispatcherRepeatsAfterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.CooldownWindow = 10 * time.Minute
	transport := &stubTransport{}
	d, store := newTestDispatcher(t, transport, cfg, clock)
	ctx := context.Background()

	d.Handle(ctx, obs(1, observations.StateMalfunction))
	d.Wait()
	clock.Advance(5 * time.Minute)
	if record := d.Handle(ctx, obs(2, observations.StateMalfunction)); record == nil || record.Status != alerts.StatusSuppressed {
		t.Fatalf("expected suppressed record within cooldown, got %+v", record)
	}
	clock.Advance(6 * time.Minute)
	if record := d.Handle(ctx, obs(3, observations.StateMalfunction)); record == nil || record.Status != alerts.StatusPending {
		t.Fatalf("expected pending repeat after cooldown, got %+v", record)
	}
	d.Wait()

	records := store.All()
	if countStatus(records, alerts.StatusSent) != 2 || countStatus(records, alerts.StatusSuppressed) != 1 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].EpisodeID != records[2].EpisodeID {
		t.Fatalf("repeat alert must stay in the same episode")
	}
	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.bodies) != 2 || !strings.Contains(transport.bodies[1], "Still malfunctioning") {
		t.Fatalf("unexpected bodies: %q", transport.bodies)
	}
	if !strings.Contains(transport.bodies[0], "Main & 5th") {
		t.Fatalf("expected signal name in body: %q", transport.bodies[0])
	}
}

func TestDispatcherSuppressesWhileInFlight(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.CooldownWindow = time.Nanosecond
	release := make(chan struct{})
	transport := &stubTransport{send: func(ctx context.Context, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	d, store := newTestDispatcher(t, transport, cfg, clock)
	ctx := context.Background()

	d.Handle(ctx, obs(1, observations.StateMalfunction))
	clock.Advance(time.Second)
	record := d.Handle(ctx, obs(2, observations.StateMalfunction))
	if record == nil || record.Status != alerts.StatusSuppressed {
		t.Fatalf("expected suppression while in flight, got %+v", record)
	}
	if !d.State().InFlight {
		t.Fatalf("expected in-flight state")
	}
	close(release)
	d.Wait()

	if got := countStatus(store.All(), alerts.StatusSent); got != 1 {
		t.Fatalf("expected 1 sent record, got %d", got)
	}
}

func TestDispatcherCloseAbandonsDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoffBase = time.Hour
	cfg.RetryBackoffMax = time.Hour
	transport := &stubTransport{send: func(context.Context, int) error {
		return notify.TransientError(errors.New("unreachable"))
	}}
	d, store := newTestDispatcher(t, transport, cfg, nil)

	d.Handle(context.Background(), obs(1, observations.StateMalfunction))
	d.Close()

	record := store.All()[0]
	if record.Status != alerts.StatusFailed || !strings.Contains(record.LastError, "dispatcher closed") {
		t.Fatalf("expected closed abandonment, got %+v", record)
	}
}

func TestDispatcherIgnoresNormalObservations(t *testing.T) {
	transport := &stubTransport{}
	d, store := newTestDispatcher(t, transport, testConfig(), nil)
	for i, state := range []observations.SignalState{observations.StateRed, observations.StateUnknown, observations.StateGreen} {
		if record := d.Handle(context.Background(), obs(int64(i+1), state)); record != nil {
			t.Fatalf("unexpected record for %s", state)
		}
	}
	if len(store.All()) != 0 || transport.Calls() != 0 {
		t.Fatalf("expected no alert activity")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	d := &Dispatcher{cfg: Config{RetryBackoffBase: time.Second, RetryBackoffMax: 5 * time.Second}}
	cases := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := d.backoff(tc.n); got != tc.want {
			t.Fatalf("backoff(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.MaxRetryAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
	cfg = DefaultConfig()
	cfg.CooldownWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero cooldown")
	}
}
