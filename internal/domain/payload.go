package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Defaults applied to payloads that omit presentation fields.
const (
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
	DefaultTag   = "dunapp-notification"

	WaterLevelTag = "water-level-alert"
)

// Payload is the notification handed to the dispatcher. Its JSON form is the
// body of the downstream send-push-notification call.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon,omitempty"`
	Badge string      `json:"badge,omitempty"`
	Tag   string      `json:"tag,omitempty"`
	Data  PayloadData `json:"data"`
}

// PayloadData is the structured part of a notification the PWA uses to deep-link.
type PayloadData struct {
	Type       Category   `json:"type,omitempty"`
	StationID  string     `json:"station_id,omitempty"`
	Station    string     `json:"station,omitempty"`
	Level      *float64   `json:"level,omitempty"`
	Threshold  *float64   `json:"threshold,omitempty"`
	MeasuredAt *time.Time `json:"measured_at,omitempty"`
	URL        string     `json:"url,omitempty"`
}

// WithDefaults fills icon, badge and tag when they are empty.
func (p Payload) WithDefaults() Payload {
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	return p
}

// Category returns the alert category the payload targets.
func (p Payload) Category() (Category, error) {
	return ParseCategory(string(p.Data.Type))
}

// NewWaterLevelPayload renders the Hungarian water-level alert for a met threshold.
func NewWaterLevelPayload(tr ThresholdResult) Payload {
	level := tr.CurrentValue
	threshold := tr.Threshold
	measuredAt := tr.MeasuredAt.UTC()

	link := "/water-level"
	if tr.Station.ExternalID != "" {
		link += "?station=" + url.QueryEscape(tr.Station.ExternalID)
	}

	return Payload{
		Title: "Vízállás Figyelmeztetés - " + tr.Station.Name,
		Body: fmt.Sprintf("A mai vízállás %s cm. Lehetővé teszi a vízutánpótlást a Belső-Béda vízrendszerbe!",
			FormatLevel(level)),
		Icon:  DefaultIcon,
		Badge: DefaultBadge,
		Tag:   WaterLevelTag,
		Data: PayloadData{
			Type:       CategoryWaterLevel,
			StationID:  tr.Station.ID,
			Station:    tr.Station.Name,
			Level:      &level,
			Threshold:  &threshold,
			MeasuredAt: &measuredAt,
			URL:        link,
		},
	}
}

// FormatLevel prints a level without a trailing ".0" for whole centimetres.
func FormatLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary aggregates one dispatch cycle. Sent+Failed always equals Total.
type Summary struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
