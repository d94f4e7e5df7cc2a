package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/recurrence"
)

// ErrNoSlot is returned by NextOpenSlot when no open window of the requested
// duration exists inside the scan horizon.
var ErrNoSlot = errors.New("no open slot within horizon")

// Calculator answers dock availability questions by combining the weekly
// operating-hours template with resolved busy-time intervals.
type Calculator struct {
	reader  Reader
	step    time.Duration // NextOpenSlot scan increment
	horizon time.Duration // NextOpenSlot scan bound
}

// NewCalculator creates a calculator. step and horizon bound the forward scan
// of NextOpenSlot.
func NewCalculator(reader Reader, step, horizon time.Duration) *Calculator {
	if step <= 0 {
		step = 15 * time.Minute
	}
	if horizon <= 0 {
		horizon = 30 * 24 * time.Hour
	}
	return &Calculator{reader: reader, step: step, horizon: horizon}
}

// IsOpen reports whether the dock is open for the whole of [start, end).
// When a busy-time rule closes the window, the conflicting occurrence is
// returned alongside.
func (c *Calculator) IsOpen(ctx context.Context, dockID int64, start, end time.Time) (bool, *recurrence.Interval, error) {
	if !end.After(start) {
		return false, nil, fmt.Errorf("window end must be after start")
	}

	dock, err := c.reader.GetDock(ctx, dockID)
	if err != nil {
		return false, nil, err
	}
	if !dock.IsActive {
		return false, nil, nil
	}

	if !withinTemplate(dock.Hours, start, end) {
		return false, nil, nil
	}

	rules, err := c.reader.ListBusyRules(ctx, dock.WarehouseID, dock.ID)
	if err != nil {
		return false, nil, err
	}
	for _, rule := range rules {
		for _, occ := range recurrence.Resolve(rule, start, end) {
			if occ.Overlaps(start, end) {
				conflict := occ
				return false, &conflict, nil
			}
		}
	}
	return true, nil, nil
}

// NextOpenSlot scans forward from `from` in fixed increments for the first
// start time at which the dock is open for the full duration. The scan is
// bounded by the configured horizon; ErrNoSlot is returned past it. This is
// CPU-bound read-only work and must run outside the warehouse lock.
func (c *Calculator) NextOpenSlot(ctx context.Context, dockID int64, from time.Time, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("duration must be positive")
	}
	limit := from.Add(c.horizon)
	for t := from.Truncate(c.step); t.Before(limit); t = t.Add(c.step) {
		if t.Before(from) {
			continue
		}
		open, _, err := c.IsOpen(ctx, dockID, t, t.Add(duration))
		if err != nil {
			return time.Time{}, err
		}
		if open {
			return t, nil
		}
	}
	return time.Time{}, ErrNoSlot
}

// withinTemplate checks every calendar day the window touches against the
// dock's weekly open/close template. A weekday without a template row is
// closed all day.
func withinTemplate(hours []model.DockHours, start, end time.Time) bool {
	byDay := make(map[time.Weekday]model.DockHours, len(hours))
	for _, h := range hours {
		byDay[h.Weekday] = h
	}

	for cur := start; cur.Before(end); {
		dayEnd := midnightAfter(cur)
		segEnd := end
		if dayEnd.Before(segEnd) {
			segEnd = dayEnd
		}

		h, ok := byDay[cur.Weekday()]
		if !ok {
			return false
		}
		open, okOpen := clockOn(cur, h.Open)
		closeAt, okClose := clockOn(cur, h.Close)
		if !okOpen || !okClose {
			return false
		}
		if cur.Before(open) || segEnd.After(closeAt) {
			return false
		}
		cur = dayEnd
	}
	return true
}

// clockOn projects an HH:MM string onto day's date.
func clockOn(day time.Time, hhmm string) (time.Time, bool) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), true
}

func midnightAfter(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
