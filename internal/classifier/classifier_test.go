package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"signalwatch/internal/capture"
	observations "signalwatch/internal/observations/domain"
)

var (
	dark   = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	red    = color.RGBA{R: 255, G: 30, B: 30, A: 255}
	yellow = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	green  = color.RGBA{R: 0, G: 255, B: 120, A: 255}
)

// housing draws a 30x90 signal head; lamps maps region index to the colour drawn in it
// and size controls the side of the lit square centred in each region.
func housing(t *testing.T, size int, lamps map[Lamp]color.RGBA) capture.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, dark)
		}
	}
	for lamp, c := range lamps {
		top := int(lamp)*30 + (30-size)/2
		left := (30 - size) / 2
		for y := top; y < top+size; y++ {
			for x := left; x < left+size; x++ {
				img.Set(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return capture.Frame{Data: buf.Bytes(), Width: 30, Height: 90, Format: capture.FormatPNG}
}

func newClassifier(t *testing.T, maxDark int) *ColorClassifier {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxDarkCycles = maxDark
	c, err := NewColorClassifier(cfg)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func TestSingleLampStates(t *testing.T) {
	ctx := context.Background()
	c := newClassifier(t, 3)
	cases := []struct {
		lamp  Lamp
		color color.RGBA
		want  observations.SignalState
	}{
		{LampRed, red, observations.StateRed},
		{LampYellow, yellow, observations.StateYellow},
		{LampGreen, green, observations.StateGreen},
	}
	for _, tc := range cases {
		res, err := c.Classify(ctx, housing(t, 20, map[Lamp]color.RGBA{tc.lamp: tc.color}))
		if err != nil {
			t.Fatalf("classify %s: %v", tc.want, err)
		}
		if res.State != tc.want {
			t.Fatalf("expected %s, got %s (%s)", tc.want, res.State, res.Detail)
		}
		if res.Confidence != 1 {
			t.Fatalf("expected full confidence for %s, got %v", tc.want, res.Confidence)
		}
	}
}

func TestMultipleLampsIsMalfunction(t *testing.T) {
	c := newClassifier(t, 3)
	res, err := c.Classify(context.Background(), housing(t, 20, map[Lamp]color.RGBA{LampRed: red, LampGreen: green}))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.State != observations.StateMalfunction {
		t.Fatalf("expected malfunction, got %s", res.State)
	}
}

func TestConflictingColourIsMalfunction(t *testing.T) {
	c := newClassifier(t, 3)
	res, err := c.Classify(context.Background(), housing(t, 20, map[Lamp]color.RGBA{LampRed: green}))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.State != observations.StateMalfunction {
		t.Fatalf("expected malfunction for green in red region, got %s", res.State)
	}
}

func TestDarkStreakBecomesMalfunction(t *testing.T) {
	ctx := context.Background()
	c := newClassifier(t, 2)
	darkFrame := housing(t, 0, nil)
	for i := 0; i < 2; i++ {
		res, err := c.Classify(ctx, darkFrame)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if res.State != observations.StateUnknown {
			t.Fatalf("frame %d: expected unknown, got %s", i, res.State)
		}
	}
	res, err := c.Classify(ctx, darkFrame)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.State != observations.StateMalfunction {
		t.Fatalf("expected malfunction after dark streak, got %s", res.State)
	}

	res, err = c.Classify(ctx, housing(t, 20, map[Lamp]color.RGBA{LampGreen: green}))
	if err != nil || res.State != observations.StateGreen {
		t.Fatalf("expected green to reset streak, got %s (%v)", res.State, err)
	}
	res, _ = c.Classify(ctx, darkFrame)
	if res.State != observations.StateUnknown {
		t.Fatalf("expected unknown after reset, got %s", res.State)
	}
}

func TestLowConfidenceIsUnknown(t *testing.T) {
	c := newClassifier(t, 3)
	res, err := c.Classify(context.Background(), housing(t, 5, map[Lamp]color.RGBA{LampRed: red}))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.State != observations.StateUnknown {
		t.Fatalf("expected unknown for weak reading, got %s", res.State)
	}
	if res.Confidence <= 0 || res.Confidence >= 0.5 {
		t.Fatalf("expected low confidence, got %v", res.Confidence)
	}
}

func TestUndecodableFrames(t *testing.T) {
	c := newClassifier(t, 3)
	frames := []capture.Frame{
		{},
		{Data: []byte("not an image"), Format: capture.FormatJPEG},
		{Data: []byte{1, 2, 3}, Width: 2, Height: 2, Format: capture.FormatRGB},
	}
	for i, frame := range frames {
		res, err := c.Classify(context.Background(), frame)
		if !errors.Is(err, ErrUndecodable) {
			t.Fatalf("frame %d: expected ErrUndecodable, got %v", i, err)
		}
		if res.State != observations.StateUnknown || res.Confidence != 0 {
			t.Fatalf("frame %d: expected unknown/0, got %+v", i, res)
		}
	}
}

func TestDetectorDeterministic(t *testing.T) {
	d := NewDetector(DefaultConfig())
	frame := housing(t, 12, map[Lamp]color.RGBA{LampYellow: yellow})
	first, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	second, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical detections, got %+v and %+v", first, second)
	}
}

func TestRawRGBFrame(t *testing.T) {
	w, h := 3, 9
	data := make([]byte, w*h*3)
	for y := 6; y < 9; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			data[i], data[i+1], data[i+2] = green.R, green.G, green.B
		}
	}
	c := newClassifier(t, 3)
	res, err := c.Classify(context.Background(), capture.Frame{Data: data, Width: w, Height: h, Format: capture.FormatRGB})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.State != observations.StateGreen {
		t.Fatalf("expected green, got %s", res.State)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BrightnessThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	cfg = DefaultConfig()
	cfg.FullLitFraction = cfg.MinLitFraction / 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for full lit fraction")
	}
}
