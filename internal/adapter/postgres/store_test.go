package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunapp/water-level-alert/internal/domain"
)

var testNow = time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return mock, New(db, time.Second)
}

var stationColumns = []string{"id", "external_id", "station_name", "river", "city", "latitude", "longitude", "alert_threshold_cm", "is_active"}

func TestFindStation_ByName(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`FROM water_level_stations`).
		WithArgs("Mohács").
		WillReturnRows(sqlmock.NewRows(stationColumns).
			AddRow("st-1", "mohacs", "Mohács", "Duna", "Mohács", 45.99, 18.68, 400.0, true))

	st, err := store.FindStation(context.Background(), "Mohács")
	require.NoError(t, err)

	assert.Equal(t, "st-1", st.ID)
	assert.Equal(t, "mohacs", st.ExternalID)
	assert.Equal(t, "Duna", st.River)
	require.NotNil(t, st.Threshold)
	assert.InDelta(t, 400.0, *st.Threshold, 0)
	assert.True(t, st.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStation_NullThreshold(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`FROM water_level_stations`).
		WithArgs("Baja").
		WillReturnRows(sqlmock.NewRows(stationColumns).
			AddRow("st-2", "", "Baja", "", "", 0.0, 0.0, nil, true))

	st, err := store.FindStation(context.Background(), "Baja")
	require.NoError(t, err)
	assert.Nil(t, st.Threshold)
}

func TestFindStation_NotFound(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`FROM water_level_stations`).
		WithArgs("Paks").
		WillReturnRows(sqlmock.NewRows(stationColumns))

	_, err := store.FindStation(context.Background(), "Paks")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStation_QueryError(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`FROM water_level_stations`).WillReturnError(errors.New("connection reset"))

	_, err := store.FindStation(context.Background(), "Mohács")
	require.Error(t, err)
	assert.False(t, domain.IsNotFound(err))
}

func TestLatestReading(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`ORDER BY measured_at DESC\s+LIMIT 1`).
		WithArgs("st-1").
		WillReturnRows(sqlmock.NewRows([]string{"station_id", "water_level_cm", "measured_at", "source"}).
			AddRow("st-1", 420.0, testNow, "vizugy"))

	r, err := store.LatestReading(context.Background(), "st-1")
	require.NoError(t, err)
	assert.InDelta(t, 420.0, r.ValueCM, 0)
	assert.Equal(t, testNow, r.MeasuredAt)
	assert.Equal(t, "vizugy", r.Source)
}

func TestLatestReading_NoData(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`FROM water_level_data`).
		WithArgs("st-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestReading(context.Background(), "st-1")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "reading", nf.Resource)
}

func TestLastNotifiedAt(t *testing.T) {
	mock, store := setupMockDB(t)

	last := testNow.Add(-3 * time.Hour)
	mock.ExpectQuery(`SELECT MAX\(last_notified_at\) FROM push_subscriptions WHERE enabled AND notify_water_level`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(last))

	got, err := store.LastNotifiedAt(context.Background(), domain.CategoryWaterLevel)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, last, *got)
}

func TestLastNotifiedAt_Never(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`notify_drought`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := store.LastNotifiedAt(context.Background(), domain.CategoryDrought)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastNotifiedAt_UnknownCategory(t *testing.T) {
	_, store := setupMockDB(t)

	_, err := store.LastNotifiedAt(context.Background(), domain.Category("'; DROP TABLE x; --"))
	require.Error(t, err)
}

var subscriptionRowColumns = []string{"id", "endpoint", "p256dh", "auth", "notify_water_level", "notify_drought", "notify_groundwater", "enabled", "last_notified_at", "created_at"}

func TestListEligible_ByCategory(t *testing.T) {
	mock, store := setupMockDB(t)

	last := testNow.Add(-7 * time.Hour)
	mock.ExpectQuery(`FROM push_subscriptions WHERE enabled AND notify_water_level ORDER BY created_at`).
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns).
			AddRow("sub-1", "https://push.example/1", "k1", "a1", true, false, false, true, last, testNow).
			AddRow("sub-2", "https://push.example/2", "k2", "a2", true, true, false, true, nil, testNow))

	subs, err := store.ListEligible(context.Background(), domain.CategoryWaterLevel, nil)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	require.NotNil(t, subs[0].LastNotifiedAt)
	assert.Equal(t, last, *subs[0].LastNotifiedAt)
	assert.Nil(t, subs[1].LastNotifiedAt)
	assert.True(t, subs[1].NotifyDrought)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEligible_ByIDs(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`WHERE enabled AND id::text IN \(\$1, \$2\)`).
		WithArgs("sub-1", "sub-9").
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns).
			AddRow("sub-1", "https://push.example/1", "k1", "a1", false, true, false, true, nil, testNow))

	subs, err := store.ListEligible(context.Background(), domain.CategoryWaterLevel, []string{"sub-1", "sub-9"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotified_Monotonic(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`SET last_notified_at = GREATEST\(COALESCE\(last_notified_at, \$2\), \$2\)`).
		WithArgs("sub-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkNotified(context.Background(), "sub-1", testNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisable(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`UPDATE push_subscriptions SET enabled = false WHERE id = \$1`).
		WithArgs("sub-3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Disable(context.Background(), "sub-3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLog(t *testing.T) {
	mock, store := setupMockDB(t)

	msg := "subscription expired"
	mock.ExpectExec(`INSERT INTO push_notification_logs`).
		WithArgs(sqlmock.AnyArg(), "sub-3", nil, 420.0, "title", "body", "failed", msg, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AppendLog(context.Background(), domain.NotificationLogEntry{
		SubscriptionID: "sub-3",
		Value:          420,
		Title:          "title",
		Body:           "body",
		Status:         domain.StatusFailed,
		ErrorMessage:   &msg,
		CreatedAt:      testNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLog_Error(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO push_notification_logs`).WillReturnError(errors.New("disk full"))

	err := store.AppendLog(context.Background(), domain.NotificationLogEntry{SubscriptionID: "sub-1", Status: domain.StatusSent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append notification log")
}

func TestUpsertSubscription(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectQuery(`ON CONFLICT \(endpoint\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "https://push.example/1", "k1", "a1", true, false, true, testNow).
		WillReturnRows(sqlmock.NewRows(subscriptionRowColumns).
			AddRow("sub-1", "https://push.example/1", "k1", "a1", true, false, true, true, nil, testNow))

	saved, err := store.UpsertSubscription(context.Background(), domain.Subscription{
		Endpoint:          "https://push.example/1",
		P256dh:            "k1",
		Auth:              "a1",
		NotifyWaterLevel:  true,
		NotifyGroundwater: true,
		CreatedAt:         testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", saved.ID)
	assert.True(t, saved.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubscription(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`DELETE FROM push_subscriptions WHERE endpoint = \$1`).
		WithArgs("https://push.example/1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM push_subscriptions`).
		WithArgs("https://push.example/unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteSubscription(context.Background(), "https://push.example/1"))

	err := store.DeleteSubscription(context.Background(), "https://push.example/unknown")
	assert.True(t, domain.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStation(t *testing.T) {
	mock, store := setupMockDB(t)

	threshold := 400.0
	mock.ExpectQuery(`INSERT INTO water_level_stations`).
		WithArgs(sqlmock.AnyArg(), "mohacs", "Mohács", "Duna", "Mohács", 45.99, 18.68, &threshold, true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("st-1"))

	id, err := store.UpsertStation(context.Background(), domain.Station{
		ExternalID: "mohacs", Name: "Mohács", River: "Duna", City: "Mohács",
		Lat: 45.99, Lon: 18.68, Threshold: &threshold, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "st-1", id)
}

func TestInsertReading(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO water_level_data`).
		WithArgs("st-1", 420.0, testNow, "seed").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.InsertReading(context.Background(), domain.Reading{StationID: "st-1", ValueCM: 420, MeasuredAt: testNow, Source: "seed"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock, store := setupMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS water_level_stations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
}

func TestCheckReadiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	store := New(db, time.Second)

	mock.ExpectPing()
	require.NoError(t, store.CheckReadiness(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = store.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unreachable")
}
