package cli

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServeShutsDownWithOpenStream(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serveApp(ctx, app, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/observations/stream")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "id: ") {
		t.Fatalf("expected the first cycle on the stream, got %q err=%v", line, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(shutdownTimeout / 2):
		t.Fatalf("shutdown waited on the open stream")
	}
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("expected stream to end cleanly, got %v", err)
	}

	// the monitor loop has stopped, so nothing races the storage close
	latest, ok := app.Monitor.Latest()
	if !ok {
		t.Fatalf("expected at least one cycle")
	}
	time.Sleep(50 * time.Millisecond)
	if again, _ := app.Monitor.Latest(); again.SequenceID != latest.SequenceID {
		t.Fatalf("monitor kept cycling after serve returned")
	}
}
