package classifier

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"signalwatch/internal/capture"
	observations "signalwatch/internal/observations/domain"
)

// Lamp identifies one of the three housing positions, top to bottom.
type Lamp int

const (
	LampRed Lamp = iota
	LampYellow
	LampGreen
	lampCount
)

// State maps the lamp to the signal state it indicates.
func (l Lamp) State() observations.SignalState {
	switch l {
	case LampRed:
		return observations.StateRed
	case LampYellow:
		return observations.StateYellow
	case LampGreen:
		return observations.StateGreen
	default:
		return observations.StateUnknown
	}
}

func (l Lamp) String() string {
	switch l {
	case LampRed:
		return "red"
	case LampYellow:
		return "yellow"
	case LampGreen:
		return "green"
	default:
		return "none"
	}
}

// LampReading is the per-region measurement.
type LampReading struct {
	Lit          bool
	LitFraction  float64
	Score        float64
	ForeignShare float64
}

// Detection is the pure result of analysing one frame.
type Detection struct {
	Lamps         [lampCount]LampReading
	Conflict      string
	ConflictScore float64
}

// LitLamps returns the lamps detected as on, top to bottom.
func (d Detection) LitLamps() []Lamp {
	var lit []Lamp
	for i := Lamp(0); i < lampCount; i++ {
		if d.Lamps[i].Lit {
			lit = append(lit, i)
		}
	}
	return lit
}

// Detector scores lamp regions of a signal housing image. It is stateless and deterministic.
type Detector struct {
	cfg Config
}

// NewDetector constructs a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect analyses the frame. The housing is assumed to fill the frame with lamps stacked vertically.
func (d *Detector) Detect(frame capture.Frame) (Detection, error) {
	img, err := decode(frame)
	if err != nil {
		return Detection{}, err
	}
	bounds := img.Bounds()
	height := bounds.Dy()
	width := bounds.Dx()
	if width <= 0 || height < int(lampCount) {
		return Detection{}, fmt.Errorf("%w: frame too small (%dx%d)", ErrUndecodable, width, height)
	}

	var det Detection
	for lamp := Lamp(0); lamp < lampCount; lamp++ {
		top := bounds.Min.Y + int(lamp)*height/int(lampCount)
		bottom := bounds.Min.Y + int(lamp+1)*height/int(lampCount)
		var counts [lampCount]int
		area := 0
		for y := top; y < bottom; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				area++
				class, ok := d.classifyPixel(img.At(x, y))
				if ok {
					counts[class]++
				}
			}
		}
		if area == 0 {
			continue
		}
		foreign := 0
		for other := Lamp(0); other < lampCount; other++ {
			if other != lamp {
				foreign += counts[other]
			}
		}
		reading := LampReading{
			LitFraction:  float64(counts[lamp]) / float64(area),
			ForeignShare: float64(foreign) / float64(area),
		}
		reading.Lit = reading.LitFraction >= d.cfg.MinLitFraction
		reading.Score = observations.ClampConfidence(reading.LitFraction / d.cfg.FullLitFraction)
		det.Lamps[lamp] = reading

		if det.Conflict == "" && reading.ForeignShare >= d.cfg.MinLitFraction && foreign > counts[lamp] {
			det.Conflict = lamp.String()
			det.ConflictScore = observations.ClampConfidence(reading.ForeignShare / d.cfg.FullLitFraction)
		}
	}
	return det, nil
}

// classifyPixel returns the lamp colour class of a lit, saturated pixel.
func (d *Detector) classifyPixel(c color.Color) (Lamp, bool) {
	r16, g16, b16, _ := c.RGBA()
	r, g, b := float64(r16>>8), float64(g16>>8), float64(b16>>8)
	maxC := max(r, g, b)
	minC := min(r, g, b)
	if maxC < float64(d.cfg.BrightnessThreshold) {
		return 0, false
	}
	if (maxC-minC)/maxC < d.cfg.MinSaturation {
		return 0, false
	}
	h := hue(r, g, b, maxC, minC)
	switch {
	case h < 25 || h >= 330:
		return LampRed, true
	case h < 75:
		return LampYellow, true
	case h < 210:
		return LampGreen, true
	default:
		return 0, false
	}
}

func hue(r, g, b, maxC, minC float64) float64 {
	delta := maxC - minC
	if delta == 0 {
		return 0
	}
	var h float64
	switch maxC {
	case r:
		h = 60 * ((g - b) / delta)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h
}

func decode(frame capture.Frame) (image.Image, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty buffer", ErrUndecodable)
	}
	if frame.Format == capture.FormatRGB {
		return decodeRGB(frame)
	}
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

func decodeRGB(frame capture.Frame) (image.Image, error) {
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) != frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("%w: raw rgb size mismatch (%dx%d, %d bytes)", ErrUndecodable, frame.Width, frame.Height, len(frame.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i, j := 0, 0; i < len(frame.Data); i, j = i+3, j+4 {
		img.Pix[j] = frame.Data[i]
		img.Pix[j+1] = frame.Data[i+1]
		img.Pix[j+2] = frame.Data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
