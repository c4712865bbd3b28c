// Package alert decides whether a water-level alert goes out and drives the
// dispatch when it does.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/dunapp/water-level-alert/internal/domain"
)

// StationReader resolves stations and their latest readings.
type StationReader interface {
	// FindStation looks a station up by internal id or display name.
	FindStation(ctx context.Context, ref string) (domain.Station, error)
	LatestReading(ctx context.Context, stationID string) (domain.Reading, error)
}

// NotificationHistory reports when a category was last delivered.
type NotificationHistory interface {
	// LastNotifiedAt returns the most recent last_notified_at among enabled
	// subscriptions opted into category, or nil when there is none.
	LastNotifiedAt(ctx context.Context, category domain.Category) (*time.Time, error)
}

// Dispatcher sends a payload to the category audience. The in-process
// dispatcher and the HTTP dispatch client both satisfy it.
type Dispatcher interface {
	Dispatch(ctx context.Context, p domain.Payload) (domain.Summary, error)
}

// readyChecker is implemented by dispatchers that can tell before a run
// whether they are able to deliver at all.
type readyChecker interface {
	Ready() error
}

// EventSink receives one event per completed run.
type EventSink interface {
	Publish(ctx context.Context, e domain.AlertEvent) error
}

// Reservation is the result of trying to claim a category's cooldown window.
type Reservation struct {
	Token     string
	Acquired  bool
	Remaining time.Duration // time left on the competing claim when not acquired
}

// Reserver claims the right to dispatch a category for a window so that
// overlapping runs cannot both pass the cooldown check.
type Reserver interface {
	Reserve(ctx context.Context, category domain.Category, ttl time.Duration) (Reservation, error)
	Release(ctx context.Context, category domain.Category, token string) error
}

// Evaluator compares a station's latest reading with its threshold.
type Evaluator struct {
	stations         StationReader
	defaultThreshold float64
}

// NewEvaluator creates an Evaluator. defaultThreshold applies to stations
// without a configured threshold.
func NewEvaluator(stations StationReader, defaultThreshold float64) *Evaluator {
	return &Evaluator{stations: stations, defaultThreshold: defaultThreshold}
}

// Evaluate reads the latest level of the referenced station. A missing station
// or reading yields a *domain.NotFoundError.
func (e *Evaluator) Evaluate(ctx context.Context, ref string) (domain.ThresholdResult, error) {
	station, err := e.stations.FindStation(ctx, ref)
	if err != nil {
		return domain.ThresholdResult{}, fmt.Errorf("find station: %w", err)
	}

	reading, err := e.stations.LatestReading(ctx, station.ID)
	if err != nil {
		return domain.ThresholdResult{}, fmt.Errorf("latest reading: %w", err)
	}

	return domain.EvaluateThreshold(station, reading, station.ThresholdOr(e.defaultThreshold)), nil
}

// Gate enforces the minimum interval between two dispatches of a category.
type Gate struct {
	history NotificationHistory
	window  time.Duration
}

// NewGate creates a Gate. A non-positive window falls back to domain.DefaultCooldown.
func NewGate(history NotificationHistory, window time.Duration) *Gate {
	if window <= 0 {
		window = domain.DefaultCooldown
	}
	return &Gate{history: history, window: window}
}

// Window returns the configured cooldown.
func (g *Gate) Window() time.Duration { return g.window }

// Check decides whether category may be dispatched at now.
func (g *Gate) Check(ctx context.Context, category domain.Category, now time.Time) (domain.CooldownDecision, error) {
	last, err := g.history.LastNotifiedAt(ctx, category)
	if err != nil {
		return domain.CooldownDecision{}, fmt.Errorf("last notification: %w", err)
	}
	return domain.CheckCooldown(now, last, g.window), nil
}
