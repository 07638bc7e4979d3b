package alerts

import (
	"time"

	observations "signalwatch/internal/observations/domain"
)

// DispatcherState is the alert-worthiness state owned by a single dispatcher.
type DispatcherState struct {
	LastAlertedState observations.SignalState `json:"last_alerted_state"`
	LastAlertedAt    *time.Time               `json:"last_alerted_at,omitempty"`
	CooldownWindow   time.Duration            `json:"cooldown_window"`
	EpisodeID        string                   `json:"episode_id,omitempty"`
	LastTriggerAt    *time.Time               `json:"last_trigger_at,omitempty"`
	InFlight         bool                     `json:"in_flight"`
}

// Alerting reports whether a malfunction episode is open.
func (s DispatcherState) Alerting() bool {
	return s.LastAlertedState == observations.StateMalfunction
}

// CooldownElapsed reports whether a repeat alert is allowed at now. The anchor is the later of the
// last successful send and the last send attempt, so a failed send still starts a cooldown.
func (s DispatcherState) CooldownElapsed(now time.Time) bool {
	var anchor time.Time
	if s.LastAlertedAt != nil {
		anchor = *s.LastAlertedAt
	}
	if s.LastTriggerAt != nil && s.LastTriggerAt.After(anchor) {
		anchor = *s.LastTriggerAt
	}
	if anchor.IsZero() {
		return true
	}
	return now.Sub(anchor) >= s.CooldownWindow
}
