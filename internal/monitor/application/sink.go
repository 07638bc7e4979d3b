package application

import (
	"context"

	observations "signalwatch/internal/observations/domain"
)

// Sink receives every appended observation.
type Sink interface {
	Publish(ctx context.Context, obs observations.Observation)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, obs observations.Observation)

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, obs observations.Observation) {
	f(ctx, obs)
}

// MultiSink forwards observations to multiple sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a MultiSink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add appends a sink.
func (m *MultiSink) Add(sink Sink) {
	if m == nil || sink == nil {
		return
	}
	m.sinks = append(m.sinks, sink)
}

// Publish forwards obs to all sinks.
func (m *MultiSink) Publish(ctx context.Context, obs observations.Observation) {
	if m == nil {
		return
	}
	for _, sink := range m.sinks {
		if sink != nil {
			sink.Publish(ctx, obs)
		}
	}
}
