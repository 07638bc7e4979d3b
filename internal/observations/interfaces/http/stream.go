package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	observations "signalwatch/internal/observations/domain"
)

const feedBuffer = 16

// Feed fans recorded observations out to stream subscribers. A new subscriber
// starts with the most recent observation so it never waits a full cycle.
type Feed struct {
	mu     sync.Mutex
	subs   map[*feedSub]struct{}
	last   *observations.Observation
	closed bool
}

type feedSub struct {
	updates chan observations.Observation
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*feedSub]struct{})}
}

// Publish records obs as the latest observation and offers it to every subscriber.
func (f *Feed) Publish(_ context.Context, obs observations.Observation) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	latest := obs
	f.last = &latest
	for sub := range f.subs {
		sub.offer(obs)
	}
}

// offer never blocks. A full buffer loses its oldest pending observation.
// Callers hold the feed lock, which also guards closing updates.
func (s *feedSub) offer(obs observations.Observation) {
	select {
	case s.updates <- obs:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- obs:
	default:
	}
}

// Subscribe registers a subscriber. The channel is closed by the returned cancel
// func or by Close; cancel may be called more than once.
func (f *Feed) Subscribe() (<-chan observations.Observation, func()) {
	sub := &feedSub{updates: make(chan observations.Observation, feedBuffer)}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(sub.updates)
		return sub.updates, func() {}
	}
	if f.last != nil {
		sub.updates <- *f.last
	}
	f.subs[sub] = struct{}{}
	return sub.updates, func() { f.remove(sub) }
}

func (f *Feed) remove(sub *feedSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; !ok {
		return
	}
	delete(f.subs, sub)
	close(sub.updates)
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.updates)
	}
}

// StreamHandler serves GET /api/v1/observations/stream as server-sent events.
type StreamHandler struct {
	feed *Feed
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(feed *Feed) *StreamHandler {
	return &StreamHandler{feed: feed}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.feed == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case obs, ok := <-updates:
			if !ok {
				return
			}
			if err := writeObservationEvent(w, obs); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeObservationEvent frames obs as one event keyed by its sequence id.
func writeObservationEvent(w io.Writer, obs observations.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: observation\ndata: %s\n\n", obs.SequenceID, payload)
	return err
}
