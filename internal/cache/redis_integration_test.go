package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"testing"
	"time"

	observations "signalwatch/internal/observations/domain"
)

func TestStatusCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewStatusCache(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := c.Latest(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected empty cache, got %v", err)
	}

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		obs := observations.NewObservation(base.Add(time.Duration(i)*time.Second), observations.StateGreen, 0.9).WithSequence(int64(i))
		c.Publish(ctx, obs)
	}
	latest, err := c.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.SequenceID != 3 {
		t.Fatalf("unexpected latest %+v", latest)
	}
	recent, err := c.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].SequenceID != 3 || recent[1].SequenceID != 2 {
		t.Fatalf("unexpected recent %+v", recent)
	}
}
