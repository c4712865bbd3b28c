package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	"github.com/dunapp/water-level-alert/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tables the service uses when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.exec(ctx, "migrate schema", schemaSQL)
}

const upsertStationSQL = `
INSERT INTO water_level_stations
    (id, external_id, station_name, river, city, latitude, longitude, alert_threshold_cm, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (station_name) DO UPDATE
SET external_id = EXCLUDED.external_id,
    river = EXCLUDED.river,
    city = EXCLUDED.city,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    alert_threshold_cm = EXCLUDED.alert_threshold_cm,
    is_active = EXCLUDED.is_active
RETURNING id`

// UpsertStation creates or updates a station keyed by name and returns its id.
func (s *Store) UpsertStation(ctx context.Context, st domain.Station) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	var id string
	err := s.db.QueryRowContext(ctx, upsertStationSQL,
		st.ID,
		nullString(st.ExternalID),
		st.Name,
		nullString(st.River),
		nullString(st.City),
		st.Lat,
		st.Lon,
		st.Threshold,
		st.IsActive,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert station %q: %w", st.Name, err)
	}
	return id, nil
}

const insertReadingSQL = `
INSERT INTO water_level_data (station_id, water_level_cm, measured_at, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (station_id, measured_at) DO UPDATE
SET water_level_cm = EXCLUDED.water_level_cm,
    source = EXCLUDED.source`

// InsertReading stores one measurement, replacing any reading at the same instant.
func (s *Store) InsertReading(ctx context.Context, r domain.Reading) error {
	return s.exec(ctx, "insert reading", insertReadingSQL, r.StationID, r.ValueCM, r.MeasuredAt, nullString(r.Source))
}
