package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dock-queue-backend/config"
	"dock-queue-backend/internal/api"
	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/db"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/store"
)

// TestBookingLifecycle drives the HTTP API through a full booking lifecycle:
// create two bookings, reorder them, move one through unloading to finished,
// and verify the persisted queue at each step.
func TestBookingLifecycle(t *testing.T) {
	// --- Test Setup ---

	// 1. In-memory SQLite database shared across pooled connections.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))

	// 2. Seed one warehouse, one dock open around the clock, one vehicle.
	require.NoError(t, testDB.Create(&model.Warehouse{ID: 1, Name: "Central", DelayToleranceMinutes: 30}).Error)
	require.NoError(t, testDB.Create(&model.Dock{ID: 1, WarehouseID: 1, Name: "Dock 1", IsActive: true}).Error)
	for day := time.Sunday; day <= time.Saturday; day++ {
		require.NoError(t, testDB.Create(&model.DockHours{DockID: 1, Weekday: day, Open: "00:00", Close: "23:59"}).Error)
	}
	require.NoError(t, testDB.Create(&model.Vehicle{ID: 1, VendorID: 1, Plate: "B-100", UnloadDurationMinutes: 30}).Error)

	// 3. Wire the service the way main does.
	appStore := store.NewGormStore(testDB)
	reader := availability.NewCachedReader(appStore, 30*time.Second)
	calc := availability.NewCalculator(reader, 15*time.Minute, 30*24*time.Hour)
	bus := events.NewMemoryBus()
	defer bus.Close()
	eng := engine.New(appStore, calc, bus, nil)
	srv := &config.ServerConfig{RateLimitPerSec: 1000}
	router := api.NewRouter(srv, appStore, eng, reader, calc, bus, &webpush.Options{VAPIDPublicKey: "test"})

	// Schedule far enough out that the unloading window stays inside a day.
	scheduled := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	dockID := int64(1)

	postJSON := func(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
		t.Helper()
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	var first, second model.Booking

	t.Run("Create two bookings", func(t *testing.T) {
		w := postJSON(t, "/api/bookings", engine.CreateRequest{
			WarehouseID: 1, VendorID: 1, VendorUserID: 5, VehicleID: 1,
			ScheduledArrival: scheduled, DockID: &dockID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
		assert.Equal(t, 0, first.QueuePosition)
		assert.Equal(t, model.StatusInProgress, first.Status)
		assert.Contains(t, first.Code, "WH1-")

		w = postJSON(t, "/api/bookings", engine.CreateRequest{
			WarehouseID: 1, VendorID: 1, VendorUserID: 5, VehicleID: 1,
			ScheduledArrival: scheduled.Add(time.Hour), DockID: &dockID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
		assert.Equal(t, 1, second.QueuePosition)
	})

	t.Run("Reorder second before first", func(t *testing.T) {
		w := postJSON(t, "/api/queue/reorder", engine.ReorderIntent{
			BookingID: second.ID,
			Action:    engine.ActionMoveWithinDock,
			ToStatus:  model.StatusInProgress,
			Target:    engine.RelativeTarget{Type: engine.TargetBefore, BookingID: first.ID},
			ActorID:   9,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var snapshot engine.QueueSnapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
		require.Len(t, snapshot.Entries, 2)
		assert.Equal(t, second.ID, snapshot.Entries[0].BookingID)
		assert.Equal(t, first.ID, snapshot.Entries[1].BookingID)

		var stored model.Booking
		require.NoError(t, testDB.First(&stored, first.ID).Error)
		assert.Equal(t, 1, stored.QueuePosition, "demoted booking is persisted at position 1")
	})

	t.Run("Unload and finish the head of the queue", func(t *testing.T) {
		w := postJSON(t, fmt.Sprintf("/api/bookings/%d/transition", second.ID), map[string]any{
			"event": engine.EventBeginUnloading, "actor_id": 9,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		// The dock accepts only one unloading booking.
		w = postJSON(t, fmt.Sprintf("/api/bookings/%d/transition", first.ID), map[string]any{
			"event": engine.EventBeginUnloading, "actor_id": 9,
		})
		assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

		w = postJSON(t, fmt.Sprintf("/api/bookings/%d/transition", second.ID), map[string]any{
			"event": engine.EventFinish, "actor_id": 9,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var stored model.Booking
		require.NoError(t, testDB.First(&stored, second.ID).Error)
		assert.Equal(t, model.StatusFinished, stored.Status)
		assert.NotNil(t, stored.ActualFinish)

		// The survivor compacted to the head of the queue. Use a fresh
		// destination struct: GORM folds an already-set primary key on the
		// dest into the WHERE clause.
		var survivor model.Booking
		require.NoError(t, testDB.First(&survivor, first.ID).Error)
		assert.Equal(t, 0, survivor.QueuePosition)
	})

	t.Run("Move trace records the whole path", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", fmt.Sprintf("/api/bookings/%d/traces", second.ID), nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var traces []model.MoveTrace
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &traces))
		require.Len(t, traces, 4) // created, reordered, unloading, finished
		assert.Equal(t, model.StatusInProgress, traces[0].ToStatus)
		assert.Equal(t, model.StatusFinished, traces[3].ToStatus)
	})
}

// TestBusyRuleBlocksBooking verifies that a recurring busy rule created over
// the API immediately blocks conflicting bookings, and that deleting the rule
// immediately reopens the window.
func TestBusyRuleBlocksBooking(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	require.NoError(t, testDB.Create(&model.Warehouse{ID: 1, Name: "Central"}).Error)
	require.NoError(t, testDB.Create(&model.Dock{ID: 1, WarehouseID: 1, Name: "Dock 1", IsActive: true}).Error)
	for day := time.Sunday; day <= time.Saturday; day++ {
		require.NoError(t, testDB.Create(&model.DockHours{DockID: 1, Weekday: day, Open: "00:00", Close: "23:59"}).Error)
	}
	require.NoError(t, testDB.Create(&model.Vehicle{ID: 1, VendorID: 1, Plate: "B-200", UnloadDurationMinutes: 30}).Error)

	appStore := store.NewGormStore(testDB)
	reader := availability.NewCachedReader(appStore, 30*time.Second)
	calc := availability.NewCalculator(reader, 15*time.Minute, 30*24*time.Hour)
	bus := events.NewMemoryBus()
	defer bus.Close()
	eng := engine.New(appStore, calc, bus, nil)
	srv := &config.ServerConfig{RateLimitPerSec: 1000}
	router := api.NewRouter(srv, appStore, eng, reader, calc, bus, &webpush.Options{})

	postJSON := func(path string, payload any) *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	// Daily maintenance window 12:00-13:00.
	w := postJSON("/api/warehouses/1/busy-rules", map[string]any{
		"from":       "2026-03-02T12:00:00Z",
		"to":         "2026-03-02T13:00:00Z",
		"recurrence": model.RecurrenceDaily,
		"reason":     "maintenance",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rule model.BusyTimeRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	require.NotZero(t, rule.ID)

	dockID := int64(1)
	// Days later, overlapping the recurring window: rejected.
	w = postJSON("/api/bookings", engine.CreateRequest{
		WarehouseID: 1, VendorID: 1, VehicleID: 1,
		ScheduledArrival: time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC),
		DockID:           &dockID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	// Outside the window: accepted.
	w = postJSON("/api/bookings", engine.CreateRequest{
		WarehouseID: 1, VendorID: 1, VehicleID: 1,
		ScheduledArrival: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		DockID:           &dockID,
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Deleting the rule invalidates the availability cache; the rejected
	// window opens up again right away.
	w = httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/api/busy-rules/%d", rule.ID), nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = postJSON("/api/bookings", engine.CreateRequest{
		WarehouseID: 1, VendorID: 1, VehicleID: 1,
		ScheduledArrival: time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC),
		DockID:           &dockID,
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
