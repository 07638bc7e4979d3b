package observations

import (
	"strings"
	"time"
)

// SignalState is the discrete operating state of the monitored signal head.
type SignalState string

const (
	StateRed         SignalState = "red"
	StateYellow      SignalState = "yellow"
	StateGreen       SignalState = "green"
	StateMalfunction SignalState = "malfunction"
	StateUnknown     SignalState = "unknown"
)

// States lists every SignalState in display order.
var States = []SignalState{StateRed, StateYellow, StateGreen, StateMalfunction, StateUnknown}

// IsValid reports whether the state is one of the known values.
func (s SignalState) IsValid() bool {
	switch s {
	case StateRed, StateYellow, StateGreen, StateMalfunction, StateUnknown:
		return true
	default:
		return false
	}
}

// ParseSignalState parses a persisted or user supplied state. Unrecognised values map to StateUnknown.
func ParseSignalState(value string) SignalState {
	state := SignalState(strings.ToLower(strings.TrimSpace(value)))
	if !state.IsValid() {
		return StateUnknown
	}
	return state
}

// Label returns the human readable state name used in notifications and exports.
func (s SignalState) Label() string {
	switch s {
	case StateRed:
		return "Red"
	case StateYellow:
		return "Yellow"
	case StateGreen:
		return "Green"
	case StateMalfunction:
		return "Malfunction"
	default:
		return "Unknown"
	}
}

// Observation is one timestamped classification of a single captured frame.
// Values are immutable once appended; SequenceID is assigned by the Log.
type Observation struct {
	SequenceID int64       `json:"sequence_id"`
	Timestamp  time.Time   `json:"timestamp"`
	State      SignalState `json:"state"`
	Confidence float64     `json:"confidence"`
	Source     string      `json:"source,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// NewObservation builds an unsequenced observation, normalising time and confidence.
func NewObservation(at time.Time, state SignalState, confidence float64) Observation {
	if !state.IsValid() {
		state = StateUnknown
	}
	return Observation{
		Timestamp:  at.UTC(),
		State:      state,
		Confidence: ClampConfidence(confidence),
	}
}

// WithSequence returns a copy carrying the log-assigned sequence id.
func (o Observation) WithSequence(id int64) Observation {
	o.SequenceID = id
	return o
}

// IsMalfunction reports whether the observation is in the alerting state.
func (o Observation) IsMalfunction() bool {
	return o.State == StateMalfunction
}

// ClampConfidence bounds a score to [0,1]; NaN becomes 0.
func ClampConfidence(value float64) float64 {
	if value != value || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
