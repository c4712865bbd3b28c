// Package domain models the Danube water-level alerting data used by DunApp.
//
// # Data Source
//
// Readings come from the hydrological services of the Hungarian water
// directorates (vizugy.hu for actual levels, hydroinfo.hu for forecasts). An
// upstream fetch job scrapes them hourly and appends one row per station to
// the water_level_data table. This service only reads those rows.
//
// # Stations
//
// Three Danube gauges are monitored: Baja, Mohács and Nagybajcs. Only Mohács
// carries an alert threshold in production:
//
//	Mohács  400 cm  at or above this level water can be let into the
//	                Belső-Béda backwater system, which is what subscribers
//	                want to hear about.
//
// A station without a configured threshold falls back to the service-wide
// default (ALERT_THRESHOLD_CM).
//
// # Alert Semantics
//
// Threshold comparison is inclusive: a reading equal to the threshold counts
// as met. Levels are whole centimetres in the source data but are carried as
// float64 so fractional gauges do not need a schema change.
//
// Cooldown is evaluated per alert category, not per subscription: the most
// recent last_notified_at among enabled, opted-in subscriptions marks the
// start of the window. See [CheckCooldown].
//
// # Subscriptions
//
// A subscription is one browser push endpoint plus its p256dh and auth keys
// (RFC 8291). Categories are opt-in flags. A push service answering 410 Gone
// means the endpoint is dead for good; the subscription is disabled rather
// than deleted so its notification log rows keep a valid reference.
package domain
