package domain

import "time"

// Outcome names the branch an alert run ended in.
type Outcome string

const (
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeCooldown       Outcome = "cooldown"
	OutcomeDispatched     Outcome = "dispatched"
	OutcomeNoSubscribers  Outcome = "no_subscribers"
	OutcomeFailed         Outcome = "failed"
)

// AlertEvent is published after every completed alert run so downstream
// consumers (dashboards, audit) can follow alert activity without polling the
// notification log.
type AlertEvent struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	StationID   string    `json:"station_id"`
	Station     string    `json:"station"`
	Level       float64   `json:"water_level_cm"`
	Threshold   float64   `json:"threshold_cm"`
	MeasuredAt  time.Time `json:"measured_at"`
	Outcome     Outcome   `json:"outcome"`
	AlertSent   bool      `json:"alert_sent"`
	Reason      string    `json:"reason,omitempty"`
	Summary     *Summary  `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
