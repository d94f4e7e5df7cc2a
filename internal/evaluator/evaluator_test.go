package evaluator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dock-queue-backend/config"
	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/db"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/store"
)

// recordingDispatcher captures dispatched push jobs.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingDispatcher) Dispatch(warehouseID int64, title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, title)
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type evalEnv struct {
	svc        *Service
	engine     *engine.Engine
	bus        *events.MemoryBus
	dispatcher *recordingDispatcher
	sub        events.Subscriber
}

func newEvalEnv(t *testing.T) *evalEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))

	require.NoError(t, testDB.Create(&model.Warehouse{ID: 1, Name: "Main", DelayToleranceMinutes: 30}).Error)
	require.NoError(t, testDB.Create(&model.Dock{ID: 1, WarehouseID: 1, Name: "Dock 1", IsActive: true}).Error)
	for day := time.Sunday; day <= time.Saturday; day++ {
		require.NoError(t, testDB.Create(&model.DockHours{DockID: 1, Weekday: day, Open: "00:00", Close: "23:59"}).Error)
	}
	require.NoError(t, testDB.Create(&model.Vehicle{ID: 1, VendorID: 1, Plate: "B-1", UnloadDurationMinutes: 30}).Error)

	appStore := store.NewGormStore(testDB)
	calc := availability.NewCalculator(appStore, 15*time.Minute, 30*24*time.Hour)
	bus := events.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	eng := engine.New(appStore, calc, bus, nil)

	cfg := &config.Config{}
	cfg.Evaluator.Enabled = true
	cfg.Evaluator.Interval = time.Minute
	cfg.Scheduling.DefaultDelayTolerance = 30 * time.Minute

	dispatcher := &recordingDispatcher{}
	svc := NewService(cfg, appStore, eng, bus, dispatcher)

	sub := bus.Subscribe(1)
	t.Cleanup(func() { bus.Unsubscribe(1, sub) })

	return &evalEnv{svc: svc, engine: eng, bus: bus, dispatcher: dispatcher, sub: sub}
}

// drainAlerts empties the subscription channel and returns the alert kinds
// seen, ignoring queue_changed noise.
func (env *evalEnv) drainAlerts() []string {
	var kinds []string
	for {
		select {
		case ev := <-env.sub:
			if ev.Type == events.TypeAlert {
				kinds = append(kinds, ev.AlertKind)
			}
		default:
			return kinds
		}
	}
}

func (env *evalEnv) createBooking(t *testing.T, scheduled time.Time) *model.Booking {
	t.Helper()
	dock := int64(1)
	booking, err := env.engine.CreateBooking(context.Background(), engine.CreateRequest{
		WarehouseID:      1,
		VendorID:         1,
		VendorUserID:     1,
		VehicleID:        1,
		ScheduledArrival: scheduled,
		DockID:           &dock,
	})
	require.NoError(t, err)
	return booking
}

// evalClock is the scheduled-arrival anchor for the fixed-clock tests.
var evalClock = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestOverdueAlertFiresOnce(t *testing.T) {
	env := newEvalEnv(t)
	ctx := context.Background()

	// Two hours late against a 30 minute tolerance.
	env.createBooking(t, evalClock)
	env.svc.now = func() time.Time { return evalClock.Add(2 * time.Hour) }
	env.drainAlerts()

	env.svc.EvaluateOnce(ctx)
	assert.Equal(t, []string{events.AlertOverdue}, env.drainAlerts())
	assert.Equal(t, 1, env.dispatcher.count())

	// The condition persists but the alert does not repeat.
	env.svc.EvaluateOnce(ctx)
	env.svc.EvaluateOnce(ctx)
	assert.Empty(t, env.drainAlerts())
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestOnTimeBookingRaisesNothing(t *testing.T) {
	env := newEvalEnv(t)

	env.createBooking(t, evalClock)
	env.svc.now = func() time.Time { return evalClock.Add(10 * time.Minute) }
	env.drainAlerts()

	env.svc.EvaluateOnce(context.Background())
	assert.Empty(t, env.drainAlerts())
	assert.Zero(t, env.dispatcher.count())
}

func TestSLABreachOnLongUnloading(t *testing.T) {
	env := newEvalEnv(t)
	ctx := context.Background()

	booking := env.createBooking(t, evalClock)
	_, err := env.engine.Transition(ctx, engine.TransitionRequest{
		BookingID: booking.ID, Event: engine.EventBeginUnloading,
	})
	require.NoError(t, err)
	env.drainAlerts()

	// Within the 30 minute unload estimate: quiet.
	env.svc.EvaluateOnce(ctx)
	assert.Empty(t, env.drainAlerts())

	// Pretend an hour passed.
	env.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	env.svc.EvaluateOnce(ctx)
	assert.Equal(t, []string{events.AlertSLABreach}, env.drainAlerts())

	// Edge-triggered: no repeat while it stays breached.
	env.svc.EvaluateOnce(ctx)
	assert.Empty(t, env.drainAlerts())

	// Finishing removes the booking from the active set; nothing further.
	env.svc.now = time.Now
	_, err = env.engine.Transition(ctx, engine.TransitionRequest{
		BookingID: booking.ID, Event: engine.EventFinish,
	})
	require.NoError(t, err)
	env.drainAlerts()
	env.svc.EvaluateOnce(ctx)
	assert.Empty(t, env.drainAlerts())
}

func TestWaitingMinutesFloorsAtZero(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0, WaitingMinutes(now, now.Add(time.Hour)), "early arrivals never report negative waiting")
	assert.Equal(t, 90, WaitingMinutes(now, now.Add(-90*time.Minute)))
}
