package domain

import (
	"math"
	"time"
)

// DefaultCooldown is the minimum gap between two alert batches of one category.
const DefaultCooldown = 6 * time.Hour

// CooldownDecision is the result of the cooldown gate.
type CooldownDecision struct {
	Allowed        bool
	Window         time.Duration
	LastNotifiedAt *time.Time
	Elapsed        time.Duration // zero when there was no prior notification
	Remaining      time.Duration // zero when Allowed; never more than Window
}

// CheckCooldown decides whether a new alert may be sent at now given the most
// recent successful notification. now must be captured once by the caller.
func CheckCooldown(now time.Time, lastNotifiedAt *time.Time, window time.Duration) CooldownDecision {
	d := CooldownDecision{Window: window, LastNotifiedAt: lastNotifiedAt}
	if lastNotifiedAt == nil {
		d.Allowed = true
		return d
	}

	d.Elapsed = now.Sub(*lastNotifiedAt)
	if d.Elapsed >= window {
		d.Allowed = true
		return d
	}
	// A timestamp ahead of now still cools, for at most one window.
	d.Remaining = min(window-d.Elapsed, window)
	return d
}

// Hours converts d to hours rounded to two decimals, the precision used in API responses.
func Hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
