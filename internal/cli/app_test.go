package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"signalwatch/internal/config"
	monitorapp "signalwatch/internal/monitor/application"
	observations "signalwatch/internal/observations/domain"
)

// writeRedFrame writes a 30x90 housing with only the top lamp lit.
func writeRedFrame(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	for y := 5; y < 25; y++ {
		for x := 5; x < 25; x++ {
			img.Set(x, y, color.RGBA{R: 250, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Camera.Kind = config.CameraFile
	cfg.Camera.Path = writeRedFrame(t, dir)
	cfg.Storage.Driver = config.StorageMemory
	cfg.Monitor.SnapshotDir = filepath.Join(dir, "snapshots")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestAppCycleAndStatus(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(t), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()

	obs, err := app.Monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if obs.State != observations.StateRed || obs.SequenceID != 1 {
		t.Fatalf("unexpected observation %+v", obs)
	}

	handler, err := app.Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var status monitorapp.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Latest == nil || status.Latest.State != observations.StateRed || len(status.Recent) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status/refresh", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("refresh must be disabled by default, got %d", rec.Code)
	}
}

func TestConfigCheckCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signalwatch.yaml")
	body := "camera:\n  kind: file\n  path: " + writeRedFrame(t, dir) + "\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "check", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out.String(), "configuration ok") || !strings.Contains(out.String(), "driver: memory") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
