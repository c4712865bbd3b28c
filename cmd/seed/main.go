// Command seed creates the schema, upserts the Danube stations the alert
// service watches and optionally records a reading, so the alert pipeline can
// be exercised against a local database.
//
// Usage:
//
//	go run ./cmd/seed -database-url postgres://... -station Mohács -level 420
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dunapp/water-level-alert/internal/adapter/postgres"
	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/observability"
	"github.com/dunapp/water-level-alert/internal/retry"
)

func threshold(v float64) *float64 { return &v }

var stations = []domain.Station{
	{ExternalID: "baja", Name: "Baja", River: "Duna", City: "Baja", Lat: 46.1811, Lon: 18.9543, IsActive: true},
	{ExternalID: "mohacs", Name: "Mohács", River: "Duna", City: "Mohács", Lat: 45.9931, Lon: 18.6831, Threshold: threshold(400), IsActive: true},
	{ExternalID: "nagybajcs", Name: "Nagybajcs", River: "Duna", City: "Nagybajcs", Lat: 47.7642, Lon: 17.6861, IsActive: true},
}

func main() {
	logger := observability.NewLogger("info", "text")
	if err := run(logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()

	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	station := flag.String("station", "Mohács", "station the reading belongs to")
	level := flag.Float64("level", -1, "water level in cm to record; negative skips the reading")
	measuredAt := flag.String("measured-at", "", "RFC 3339 measurement time; defaults to now")
	flag.Parse()

	if *databaseURL == "" {
		flag.Usage()
		return errors.New("missing -database-url or DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := postgres.Open(ctx, *databaseURL, 10*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	ids := make(map[string]string, len(stations))
	for _, st := range stations {
		var id string
		err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
			var err error
			id, err = store.UpsertStation(ctx, st)
			return err
		})
		if err != nil {
			return err
		}
		ids[st.Name] = id
		logger.Info("station upserted", "station", st.Name, "id", id, "threshold", st.ThresholdOr(domain.DefaultThreshold))
	}

	if *level < 0 {
		return nil
	}

	id, ok := ids[*station]
	if !ok {
		return fmt.Errorf("unknown station %q", *station)
	}
	at := time.Now().UTC()
	if *measuredAt != "" {
		if at, err = time.Parse(time.RFC3339, *measuredAt); err != nil {
			return fmt.Errorf("parse -measured-at: %w", err)
		}
	}

	reading := domain.Reading{StationID: id, ValueCM: *level, MeasuredAt: at, Source: "seed"}
	if err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		return store.InsertReading(ctx, reading)
	}); err != nil {
		return err
	}
	logger.Info("reading recorded", "station", *station, "level_cm", *level, "measured_at", at)
	return nil
}
