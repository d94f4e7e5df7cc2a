package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dock-queue-backend/internal/model"
)

// fakeReader serves a fixed dock and rule set and counts reads, so the cache
// tests can observe hits.
type fakeReader struct {
	dock      *model.Dock
	rules     []model.BusyTimeRule
	dockReads int
	ruleReads int
}

func (f *fakeReader) GetDock(ctx context.Context, id int64) (*model.Dock, error) {
	f.dockReads++
	return f.dock, nil
}

func (f *fakeReader) ListBusyRules(ctx context.Context, warehouseID int64, dockID int64) ([]model.BusyTimeRule, error) {
	f.ruleReads++
	return f.rules, nil
}

// weekdayHours builds a Monday-to-Friday 08:00-18:00 template.
func weekdayHours(dockID int64) []model.DockHours {
	var hours []model.DockHours
	for day := time.Monday; day <= time.Friday; day++ {
		hours = append(hours, model.DockHours{DockID: dockID, Weekday: day, Open: "08:00", Close: "18:00"})
	}
	return hours
}

func testDock() *model.Dock {
	return &model.Dock{ID: 7, WarehouseID: 1, Name: "Dock 7", IsActive: true, Hours: weekdayHours(7)}
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestIsOpenWeeklyTemplate(t *testing.T) {
	reader := &fakeReader{dock: testDock()}
	calc := NewCalculator(reader, 15*time.Minute, 30*24*time.Hour)
	ctx := context.Background()

	// 2026-03-02 is a Monday.
	open, conflict, err := calc.IsOpen(ctx, 7, at(t, "2026-03-02T09:00:00Z"), at(t, "2026-03-02T10:00:00Z"))
	require.NoError(t, err)
	assert.True(t, open)
	assert.Nil(t, conflict)

	// Before opening time.
	open, _, err = calc.IsOpen(ctx, 7, at(t, "2026-03-02T07:00:00Z"), at(t, "2026-03-02T08:30:00Z"))
	require.NoError(t, err)
	assert.False(t, open)

	// Runs past closing time.
	open, _, err = calc.IsOpen(ctx, 7, at(t, "2026-03-02T17:30:00Z"), at(t, "2026-03-02T18:30:00Z"))
	require.NoError(t, err)
	assert.False(t, open)

	// Saturday has no template row: closed all day.
	open, _, err = calc.IsOpen(ctx, 7, at(t, "2026-03-07T09:00:00Z"), at(t, "2026-03-07T10:00:00Z"))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestIsOpenInactiveDock(t *testing.T) {
	dock := testDock()
	dock.IsActive = false
	calc := NewCalculator(&fakeReader{dock: dock}, 0, 0)

	open, _, err := calc.IsOpen(context.Background(), 7, at(t, "2026-03-02T09:00:00Z"), at(t, "2026-03-02T10:00:00Z"))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestIsOpenBusyRuleConflict(t *testing.T) {
	dockID := int64(7)
	reader := &fakeReader{
		dock: testDock(),
		rules: []model.BusyTimeRule{{
			WarehouseID: 1,
			DockID:      &dockID,
			From:        at(t, "2026-03-02T12:00:00Z"),
			To:          at(t, "2026-03-02T13:00:00Z"),
			Recurrence:  model.RecurrenceDaily,
			Step:        1,
			Reason:      "lunch break",
		}},
	}
	calc := NewCalculator(reader, 15*time.Minute, 30*24*time.Hour)
	ctx := context.Background()

	// Overlapping the recurring lunch window, days after the anchor.
	open, conflict, err := calc.IsOpen(ctx, 7, at(t, "2026-03-04T12:30:00Z"), at(t, "2026-03-04T13:30:00Z"))
	require.NoError(t, err)
	assert.False(t, open)
	require.NotNil(t, conflict)
	assert.Equal(t, at(t, "2026-03-04T12:00:00Z"), conflict.Start)
	assert.Equal(t, at(t, "2026-03-04T13:00:00Z"), conflict.End)

	// Right after the busy window.
	open, conflict, err = calc.IsOpen(ctx, 7, at(t, "2026-03-04T13:00:00Z"), at(t, "2026-03-04T14:00:00Z"))
	require.NoError(t, err)
	assert.True(t, open)
	assert.Nil(t, conflict)
}

func TestNextOpenSlotSkipsBusyWindow(t *testing.T) {
	dockID := int64(7)
	reader := &fakeReader{
		dock: testDock(),
		rules: []model.BusyTimeRule{{
			WarehouseID: 1,
			DockID:      &dockID,
			From:        at(t, "2026-03-02T08:00:00Z"),
			To:          at(t, "2026-03-02T11:00:00Z"),
			Recurrence:  model.RecurrenceNone,
			Step:        1,
		}},
	}
	calc := NewCalculator(reader, 15*time.Minute, 30*24*time.Hour)

	start, err := calc.NextOpenSlot(context.Background(), 7, at(t, "2026-03-02T08:10:00Z"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, at(t, "2026-03-02T11:00:00Z"), start)
}

func TestNextOpenSlotHorizonExhausted(t *testing.T) {
	// No template rows at all: the dock is never open.
	dock := &model.Dock{ID: 7, WarehouseID: 1, IsActive: true}
	calc := NewCalculator(&fakeReader{dock: dock}, time.Hour, 48*time.Hour)

	_, err := calc.NextOpenSlot(context.Background(), 7, at(t, "2026-03-02T08:00:00Z"), time.Hour)
	assert.ErrorIs(t, err, ErrNoSlot)
}

func TestCachedReaderServesFromCache(t *testing.T) {
	reader := &fakeReader{dock: testDock()}
	cached := NewCachedReader(reader, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cached.GetDock(ctx, 7)
		require.NoError(t, err)
		_, err = cached.ListBusyRules(ctx, 1, 7)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reader.dockReads)
	assert.Equal(t, 1, reader.ruleReads)

	// Invalidate forces a re-read.
	cached.Invalidate()
	_, err := cached.GetDock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.dockReads)
}
