// Package classifier maps captured frames to a discrete signal state.
//
// Detector holds the pure pixel analysis; ColorClassifier layers the malfunction
// policy on top of it, including the consecutive-dark-frame rule, which is the
// only piece of state carried between calls.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"signalwatch/internal/capture"
	observations "signalwatch/internal/observations/domain"
)

// ErrUndecodable is returned when the frame cannot be analyzed (empty buffer, decode failure).
var ErrUndecodable = errors.New("classifier: frame cannot be analyzed")

// Result is the classification outcome for one frame.
type Result struct {
	State      observations.SignalState
	Confidence float64
	Detail     string
}

// Unknown is the result reported for frames that cannot be analyzed.
func Unknown(detail string) Result {
	return Result{State: observations.StateUnknown, Confidence: 0, Detail: detail}
}

// Classifier maps a frame to a signal state.
type Classifier interface {
	Classify(ctx context.Context, frame capture.Frame) (Result, error)
}

// Config tunes detection and the malfunction policy.
type Config struct {
	// BrightnessThreshold is the minimum max-channel value (0-255) for a pixel to count as lit.
	BrightnessThreshold int `yaml:"brightness_threshold"`
	// MinSaturation filters out white glare; lit pixels below it are ignored.
	MinSaturation float64 `yaml:"min_saturation"`
	// MinLitFraction is the share of a lamp region that must be lit for the lamp to count as on.
	MinLitFraction float64 `yaml:"min_lit_fraction"`
	// FullLitFraction is the lit share that maps to confidence 1.
	FullLitFraction float64 `yaml:"full_lit_fraction"`
	// MinConfidence below which a single-lamp reading is reported as unknown.
	MinConfidence float64 `yaml:"min_confidence"`
	// MaxDarkCycles is how many consecutive dark frames are tolerated before reporting a malfunction.
	MaxDarkCycles int `yaml:"max_dark_cycles"`
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		BrightnessThreshold: 160,
		MinSaturation:       0.35,
		MinLitFraction:      0.02,
		FullLitFraction:     0.25,
		MinConfidence:       0.5,
		MaxDarkCycles:       3,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.BrightnessThreshold <= 0 || c.BrightnessThreshold > 255 {
		return fmt.Errorf("classifier: brightness threshold %d out of range", c.BrightnessThreshold)
	}
	if c.MinLitFraction <= 0 || c.MinLitFraction >= 1 {
		return errors.New("classifier: min lit fraction must be in (0,1)")
	}
	if c.FullLitFraction < c.MinLitFraction || c.FullLitFraction > 1 {
		return errors.New("classifier: full lit fraction must be in [min lit fraction,1]")
	}
	if c.MinSaturation < 0 || c.MinSaturation >= 1 {
		return errors.New("classifier: min saturation must be in [0,1)")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("classifier: min confidence must be in [0,1]")
	}
	if c.MaxDarkCycles < 0 {
		return errors.New("classifier: max dark cycles must be >= 0")
	}
	return nil
}

// ColorClassifier applies the malfunction policy to Detector output.
type ColorClassifier struct {
	detector   *Detector
	cfg        Config
	mu         sync.Mutex
	darkStreak int
}

// NewColorClassifier constructs a classifier.
func NewColorClassifier(cfg Config) (*ColorClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ColorClassifier{detector: NewDetector(cfg), cfg: cfg}, nil
}

// Classify implements Classifier.
func (c *ColorClassifier) Classify(ctx context.Context, frame capture.Frame) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unknown("cancelled"), err
	}
	det, err := c.detector.Detect(frame)
	if err != nil {
		return Unknown(err.Error()), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if det.Conflict != "" {
		c.darkStreak = 0
		return Result{
			State:      observations.StateMalfunction,
			Confidence: det.ConflictScore,
			Detail:     "conflicting colour in " + det.Conflict + " lamp region",
		}, nil
	}

	lit := det.LitLamps()
	switch len(lit) {
	case 0:
		c.darkStreak++
		if c.darkStreak > c.cfg.MaxDarkCycles {
			return Result{
				State:      observations.StateMalfunction,
				Confidence: 1,
				Detail:     fmt.Sprintf("no lamp lit for %d consecutive frames", c.darkStreak),
			}, nil
		}
		return Unknown("no lamp lit"), nil
	case 1:
		c.darkStreak = 0
		reading := det.Lamps[lit[0]]
		if reading.Score < c.cfg.MinConfidence {
			return Result{
				State:      observations.StateUnknown,
				Confidence: reading.Score,
				Detail:     "low confidence " + lit[0].State().Label() + " reading",
			}, nil
		}
		return Result{State: lit[0].State(), Confidence: reading.Score}, nil
	default:
		c.darkStreak = 0
		confidence := 1.0
		names := ""
		for i, lamp := range lit {
			if score := det.Lamps[lamp].Score; score < confidence {
				confidence = score
			}
			if i > 0 {
				names += "+"
			}
			names += lamp.State().Label()
		}
		return Result{
			State:      observations.StateMalfunction,
			Confidence: confidence,
			Detail:     "multiple lamps lit: " + names,
		}, nil
	}
}
