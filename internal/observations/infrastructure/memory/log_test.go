package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	observations "signalwatch/internal/observations/domain"
)

func TestRecentReturnsNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	states := []observations.SignalState{
		observations.StateGreen,
		observations.StateYellow,
		observations.StateRed,
		observations.StateGreen,
		observations.StateMalfunction,
	}
	for i, state := range states {
		id, err := log.Append(ctx, observations.NewObservation(base.Add(time.Duration(i)*time.Second), state, 0.9))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if id != int64(i+1) {
			t.Fatalf("expected id %d, got %d", i+1, id)
		}
	}

	recent, err := log.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	wantIDs := []int64{5, 4, 3}
	for i, obs := range recent {
		if obs.SequenceID != wantIDs[i] {
			t.Fatalf("entry %d: expected id %d, got %d", i, wantIDs[i], obs.SequenceID)
		}
		if obs.State != states[wantIDs[i]-1] {
			t.Fatalf("entry %d: expected state %s, got %s", i, states[wantIDs[i]-1], obs.State)
		}
	}

	all, err := log.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != len(states) {
		t.Fatalf("expected %d entries, got %d", len(states), len(all))
	}
}

func TestRange(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := log.Append(ctx, observations.NewObservation(base.Add(time.Duration(i)*time.Minute), observations.StateGreen, 1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := log.Range(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || got[0].SequenceID != 2 || got[1].SequenceID != 3 {
		t.Fatalf("unexpected range result: %+v", got)
	}
	if _, err := log.Range(ctx, base, base); err != observations.ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestConcurrentAppendKeepsSequenceOrder(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := log.Append(ctx, observations.NewObservation(time.Now(), observations.StateRed, 1)); err != nil {
					t.Errorf("append: %v", err)
					return
				}
				if _, err := log.Recent(ctx, 10); err != nil {
					t.Errorf("recent: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	recent, err := log.Recent(ctx, observations.MaxRecentLimit)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 400 {
		t.Fatalf("expected 400 entries, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i-1].SequenceID != recent[i].SequenceID+1 {
			t.Fatalf("sequence gap at %d: %d then %d", i, recent[i-1].SequenceID, recent[i].SequenceID)
		}
	}
}

func TestRecentHonoursSmallLimits(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		if _, err := log.Append(ctx, observations.NewObservation(base.Add(time.Duration(i)*time.Second), observations.StateGreen, 1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	for _, limit := range []int{0, -5} {
		got, err := log.Recent(ctx, limit)
		if err != nil {
			t.Fatalf("recent(%d): %v", limit, err)
		}
		if len(got) != 0 {
			t.Fatalf("recent(%d): expected no entries, got %d", limit, len(got))
		}
	}
	one, err := log.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent(1): %v", err)
	}
	if len(one) != 1 || one[0].SequenceID != 150 {
		t.Fatalf("recent(1): expected newest entry, got %+v", one)
	}
	all, err := log.Recent(ctx, 20000)
	if err != nil {
		t.Fatalf("recent(20000): %v", err)
	}
	if len(all) != 150 {
		t.Fatalf("recent(20000): expected 150 entries, got %d", len(all))
	}
}

func TestAppendWithCancelledContextIsStorageFault(t *testing.T) {
	log := NewLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := log.Append(ctx, observations.NewObservation(time.Now(), observations.StateRed, 1)); !errors.Is(err, observations.ErrStorageFault) {
		t.Fatalf("expected storage fault, got %v", err)
	}
	if log.Len() != 0 {
		t.Fatalf("expected nothing stored")
	}
}
