package db

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stallsensor/internal/config"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

func setupTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	monitoring.SetLogger(nil)
	clock := timeutil.NewMockClock(time.UnixMilli(1_700_000_000_000))
	db, err := newDB(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func TestNewDB_Migrates(t *testing.T) {
	db, _ := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestSettings_GetPut(t *testing.T) {
	db, clock := setupTestDB(t)

	_, err := db.Get(config.KeyOccupancyThreshold)
	assert.True(t, errors.Is(err, config.ErrUninitialized))

	require.NoError(t, db.Put(config.KeyOccupancyThreshold, "60"))
	clock.Advance(time.Second)
	require.NoError(t, db.Put(config.KeyOccupancyThreshold, "75"))

	v, err := db.Get(config.KeyOccupancyThreshold)
	require.NoError(t, err)
	assert.Equal(t, "75", v)

	settings, err := db.Settings()
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.Equal(t, int64(1_700_000_001_000), settings[0].UpdatedAt)
}

func TestSettings_SeedThresholds(t *testing.T) {
	db, _ := setupTestDB(t)

	th, err := config.LoadThresholds(db)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultThresholds(), th)

	settings, err := db.Settings()
	require.NoError(t, err)
	assert.Len(t, settings, 6)
}

func TestEvents(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()

	sink := EventSink{DB: db}
	assert.Equal(t, "sqlite", sink.Name())
	require.NoError(t, sink.Send(ctx, "Heartbeat", `{"a":1}`))
	clock.Advance(time.Minute)
	require.NoError(t, db.RecordEvent(ctx, "Duration Alert", `{"b":2}`))
	require.NoError(t, db.RecordEvent(ctx, "Heartbeat", `{"a":2}`))

	all, err := db.RecentEvents("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, `{"a":2}`, all[0].Payload, "newest first")

	hb, err := db.RecentEvents("Heartbeat", 1)
	require.NoError(t, err)
	require.Len(t, hb, 1)
	assert.Equal(t, `{"a":2}`, hb[0].Payload)
	assert.Equal(t, int64(1_700_000_060_000), hb[0].RecordedAt)
}

func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminRoutes(t *testing.T) {
	db, _ := setupTestDB(t)
	require.NoError(t, db.Put(config.KeyDoorDeviceID, "AA,AA,AA"))
	require.NoError(t, db.RecordEvent(context.Background(), "Heartbeat", "{}"))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/settings"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"door_device_id"`)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/events?event=Heartbeat"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"event":"Heartbeat"`)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/events?limit=-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/backup"))
	require.Equal(t, http.StatusOK, w.Code)
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
