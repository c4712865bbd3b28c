package domain

import (
	"fmt"
	"time"
)

// Station is a river gauge that can raise alerts.
type Station struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"external_id,omitempty"` // code used by the upstream source, e.g. "mohacs"
	Name       string   `json:"name"`
	River      string   `json:"river,omitempty"`
	City       string   `json:"city,omitempty"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Threshold  *float64 `json:"threshold,omitempty"` // nil means use the service default
	IsActive   bool     `json:"is_active"`
}

// ThresholdOr returns the station's alert threshold, or def when none is configured.
func (s Station) ThresholdOr(def float64) float64 {
	if s.Threshold == nil {
		return def
	}
	return *s.Threshold
}

// Reading is one water-level measurement of a station.
type Reading struct {
	StationID  string    `json:"station_id"`
	ValueCM    float64   `json:"water_level_cm"`
	MeasuredAt time.Time `json:"measured_at"`
	Source     string    `json:"source,omitempty"`
}

// Category is an alert topic subscribers can opt into.
type Category string

const (
	CategoryWaterLevel  Category = "water_level"
	CategoryDrought     Category = "drought"
	CategoryGroundwater Category = "groundwater"
)

// ParseCategory validates a category name. An empty string maps to water_level,
// which is the only category the original alert function ever sent.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case "":
		return CategoryWaterLevel, nil
	case CategoryWaterLevel, CategoryDrought, CategoryGroundwater:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown alert category %q", s)
	}
}

// Subscription is a registered Web Push endpoint for one client device.
type Subscription struct {
	ID                string     `json:"id"`
	Endpoint          string     `json:"endpoint"`
	P256dh            string     `json:"p256dh"`
	Auth              string     `json:"auth"`
	NotifyWaterLevel  bool       `json:"notify_water_level"`
	NotifyDrought     bool       `json:"notify_drought"`
	NotifyGroundwater bool       `json:"notify_groundwater"`
	Enabled           bool       `json:"enabled"`
	LastNotifiedAt    *time.Time `json:"last_notified_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// OptedInto reports whether the subscription wants alerts of category c.
func (s Subscription) OptedInto(c Category) bool {
	switch c {
	case CategoryWaterLevel:
		return s.NotifyWaterLevel
	case CategoryDrought:
		return s.NotifyDrought
	case CategoryGroundwater:
		return s.NotifyGroundwater
	default:
		return false
	}
}

// Deliverable reports whether the subscription carries everything a push needs.
func (s Subscription) Deliverable() bool {
	return s.Endpoint != "" && s.P256dh != "" && s.Auth != ""
}

// DeliveryStatus is the outcome recorded for one delivery attempt.
type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
	StatusSkipped DeliveryStatus = "skipped"
)

// NotificationLogEntry is one row of the append-only delivery audit trail.
type NotificationLogEntry struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	StationID      string         `json:"station_id,omitempty"`
	Value          float64        `json:"water_level_cm"`
	Title          string         `json:"notification_title"`
	Body           string         `json:"notification_body"`
	Status         DeliveryStatus `json:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
