// Package postgres is the data store of the alert service: stations, water
// level readings, push subscriptions and the notification log.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/retry"
)

// Store wraps database access helpers. Every call runs under the store timeout.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates a Store over an open database handle.
func New(db *sql.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Open connects to databaseURL and waits for the database to answer a ping.
func Open(ctx context.Context, databaseURL string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := New(db, timeout)
	if err := retry.Do(ctx, retry.DefaultPolicy, s.Ping); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// CheckReadiness reports whether the database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

const findStationSQL = `
SELECT id, COALESCE(external_id, ''), station_name, COALESCE(river, ''), COALESCE(city, ''),
       COALESCE(latitude, 0), COALESCE(longitude, 0), alert_threshold_cm, is_active
FROM water_level_stations
WHERE id::text = $1 OR station_name = $1
ORDER BY (id::text = $1) DESC
LIMIT 1`

// FindStation looks a station up by id or display name.
func (s *Store) FindStation(ctx context.Context, ref string) (domain.Station, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		st        domain.Station
		threshold sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, findStationSQL, ref).Scan(
		&st.ID,
		&st.ExternalID,
		&st.Name,
		&st.River,
		&st.City,
		&st.Lat,
		&st.Lon,
		&threshold,
		&st.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, &domain.NotFoundError{Resource: "station", Key: ref}
	}
	if err != nil {
		return domain.Station{}, fmt.Errorf("query station %q: %w", ref, err)
	}
	if threshold.Valid {
		st.Threshold = &threshold.Float64
	}
	return st, nil
}

const latestReadingSQL = `
SELECT station_id, water_level_cm, measured_at, COALESCE(source, '')
FROM water_level_data
WHERE station_id = $1
ORDER BY measured_at DESC
LIMIT 1`

// LatestReading returns the newest reading of a station.
func (s *Store) LatestReading(ctx context.Context, stationID string) (domain.Reading, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r domain.Reading
	err := s.db.QueryRowContext(ctx, latestReadingSQL, stationID).Scan(&r.StationID, &r.ValueCM, &r.MeasuredAt, &r.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reading{}, &domain.NotFoundError{Resource: "reading", Key: stationID}
	}
	if err != nil {
		return domain.Reading{}, fmt.Errorf("query latest reading: %w", err)
	}
	return r, nil
}

// optInColumn maps a category to its opt-in flag. Only these constants are
// ever interpolated into SQL.
func optInColumn(c domain.Category) (string, error) {
	switch c {
	case domain.CategoryWaterLevel:
		return "notify_water_level", nil
	case domain.CategoryDrought:
		return "notify_drought", nil
	case domain.CategoryGroundwater:
		return "notify_groundwater", nil
	default:
		return "", fmt.Errorf("unknown alert category %q", c)
	}
}

// LastNotifiedAt returns the latest successful delivery among enabled subscriptions opted into c.
func (s *Store) LastNotifiedAt(ctx context.Context, c domain.Category) (*time.Time, error) {
	col, err := optInColumn(c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var last sql.NullTime
	q := "SELECT MAX(last_notified_at) FROM push_subscriptions WHERE enabled AND " + col
	if err := s.db.QueryRowContext(ctx, q).Scan(&last); err != nil {
		return nil, fmt.Errorf("query last notification: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

const subscriptionColumns = `id, endpoint, COALESCE(p256dh, ''), COALESCE(auth, ''),
       notify_water_level, notify_drought, notify_groundwater, enabled, last_notified_at, created_at`

// ListEligible returns enabled subscriptions opted into c, or the enabled
// subscriptions with the given ids when ids is not empty.
func (s *Store) ListEligible(ctx context.Context, c domain.Category, ids []string) ([]domain.Subscription, error) {
	var (
		where string
		args  []any
	)
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, id)
		}
		where = "enabled AND id::text IN (" + strings.Join(placeholders, ", ") + ")"
	} else {
		col, err := optInColumn(c)
		if err != nil {
			return nil, err
		}
		where = "enabled AND " + col
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+subscriptionColumns+" FROM push_subscriptions WHERE "+where+" ORDER BY created_at", args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (domain.Subscription, error) {
	var (
		sub  domain.Subscription
		last sql.NullTime
	)
	if err := row.Scan(
		&sub.ID,
		&sub.Endpoint,
		&sub.P256dh,
		&sub.Auth,
		&sub.NotifyWaterLevel,
		&sub.NotifyDrought,
		&sub.NotifyGroundwater,
		&sub.Enabled,
		&last,
		&sub.CreatedAt,
	); err != nil {
		return domain.Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		sub.LastNotifiedAt = &t
	}
	return sub, nil
}

// last_notified_at never moves backwards.
const markNotifiedSQL = `
UPDATE push_subscriptions
SET last_notified_at = GREATEST(COALESCE(last_notified_at, $2), $2)
WHERE id = $1`

// MarkNotified records a successful delivery at at.
func (s *Store) MarkNotified(ctx context.Context, subscriptionID string, at time.Time) error {
	return s.exec(ctx, "mark subscription notified", markNotifiedSQL, subscriptionID, at)
}

// Disable turns off a subscription whose endpoint is gone.
func (s *Store) Disable(ctx context.Context, subscriptionID string) error {
	return s.exec(ctx, "disable subscription", `UPDATE push_subscriptions SET enabled = false WHERE id = $1`, subscriptionID)
}

const appendLogSQL = `
INSERT INTO push_notification_logs
    (id, subscription_id, station_id, water_level_cm, notification_title, notification_body, status, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// AppendLog writes one row of the delivery audit trail.
func (s *Store) AppendLog(ctx context.Context, e domain.NotificationLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return s.exec(ctx, "append notification log", appendLogSQL,
		e.ID,
		e.SubscriptionID,
		nullString(e.StationID),
		e.Value,
		e.Title,
		e.Body,
		string(e.Status),
		e.ErrorMessage,
		e.CreatedAt,
	)
}

const upsertSubscriptionSQL = `
INSERT INTO push_subscriptions
    (id, endpoint, p256dh, auth, notify_water_level, notify_drought, notify_groundwater, enabled, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)
ON CONFLICT (endpoint) DO UPDATE
SET p256dh = EXCLUDED.p256dh,
    auth = EXCLUDED.auth,
    notify_water_level = EXCLUDED.notify_water_level,
    notify_drought = EXCLUDED.notify_drought,
    notify_groundwater = EXCLUDED.notify_groundwater,
    enabled = true
RETURNING ` + subscriptionColumns

// UpsertSubscription registers a push endpoint, or refreshes its keys and
// opt-ins and re-enables it when the endpoint is already known.
func (s *Store) UpsertSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx, upsertSubscriptionSQL,
		uuid.NewString(),
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.NotifyWaterLevel,
		sub.NotifyDrought,
		sub.NotifyGroundwater,
		sub.CreatedAt,
	)
	saved, err := scanSubscription(row)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return saved, nil
}

// DeleteSubscription removes a push endpoint.
func (s *Store) DeleteSubscription(ctx context.Context, endpoint string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Resource: "subscription", Key: endpoint}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
