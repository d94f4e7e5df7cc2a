package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/store"
)

// Reorder interprets one drag-and-drop intent. Any guard failure rejects the
// whole intent with no partial mutation.
func (e *Engine) Reorder(ctx context.Context, intent ReorderIntent) (*QueueSnapshot, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	booking, err := e.store.GetBooking(ctx, intent.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, intent.BookingID)
		}
		return nil, err
	}

	ws, err := e.state(ctx, booking.WarehouseID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.halted != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, ws.halted)
	}

	live, ok := ws.bookings[intent.BookingID]
	if !ok {
		return nil, fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, intent.BookingID, booking.Status)
	}

	// A drop onto the cancel zone ignores dock and position parameters.
	if intent.ToStatus == model.StatusCanceled {
		fromDock := int64(0)
		if live.DockID != nil {
			fromDock = *live.DockID
		}
		if _, err := e.applyTransition(ctx, ws, live, TransitionRequest{
			BookingID: intent.BookingID,
			Event:     EventCancel,
			ActorID:   intent.ActorID,
			Reason:    intent.Reason,
		}); err != nil {
			return nil, err
		}
		return e.snapshotLocked(ws, fromDock), nil
	}

	anchor, ok := ws.bookings[intent.Target.BookingID]
	if !ok {
		return nil, fmt.Errorf("%w: anchor booking %d", ErrNotFound, intent.Target.BookingID)
	}
	anchorDock, anchorPos, queued := ws.queues.Position(anchor.ID)
	if !queued {
		return nil, fmt.Errorf("%w: anchor booking %d is not queued", ErrValidation, anchor.ID)
	}

	if intent.Target.Type == TargetSwap {
		return e.reorderSwap(ctx, ws, live, anchor, intent)
	}
	return e.reorderRelative(ctx, ws, live, anchor, anchorDock, anchorPos, intent)
}

// ReorderBatch applies several intents from one request deterministically:
// intents are processed in ascending order of the moving bookings' current
// positions. Any failure aborts the remainder.
func (e *Engine) ReorderBatch(ctx context.Context, intents []ReorderIntent) ([]*QueueSnapshot, error) {
	positions := make(map[int64]int, len(intents))
	for _, intent := range intents {
		if _, ok := positions[intent.BookingID]; ok {
			continue
		}
		b, err := e.store.GetBooking(ctx, intent.BookingID)
		if err != nil {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, intent.BookingID)
		}
		positions[intent.BookingID] = b.QueuePosition
	}

	ordered := make([]ReorderIntent, len(intents))
	copy(ordered, intents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return positions[ordered[i].BookingID] < positions[ordered[j].BookingID]
	})

	var out []*QueueSnapshot
	for _, intent := range ordered {
		snap, err := e.Reorder(ctx, intent)
		if err != nil {
			return out, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func validateIntent(intent ReorderIntent) error {
	switch intent.Action {
	case ActionMoveWithinDock, ActionMoveOutsideDock:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, intent.Action)
	}
	switch intent.ToStatus {
	case model.StatusInProgress, model.StatusUnloading, model.StatusCanceled:
	default:
		return fmt.Errorf("%w: unknown target status %q", ErrValidation, intent.ToStatus)
	}

	// A cancel drop ignores the positioning target entirely.
	if intent.ToStatus == model.StatusCanceled {
		if intent.Reason == "" {
			return fmt.Errorf("%w: cancel requires a reason", ErrValidation)
		}
		return nil
	}

	switch intent.Target.Type {
	case TargetAfter, TargetBefore, TargetSwap:
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrValidation, intent.Target.Type)
	}
	if intent.Target.BookingID == 0 {
		return fmt.Errorf("%w: target booking is required", ErrValidation)
	}
	if intent.Target.Type == TargetSwap && intent.ToStatus != model.StatusInProgress {
		return fmt.Errorf("%w: swap cannot change status", ErrInvalidSwap)
	}
	return nil
}

// reorderSwap exchanges the positions of two IN_PROGRESS bookings queued at
// the same dock, touching nothing else. Callers hold ws.mu.
func (e *Engine) reorderSwap(ctx context.Context, ws *warehouseState, mover, anchor *model.Booking, intent ReorderIntent) (*QueueSnapshot, error) {
	moverDock, moverPos, queued := ws.queues.Position(mover.ID)
	if !queued {
		return nil, fmt.Errorf("%w: booking %d is not queued", ErrInvalidSwap, mover.ID)
	}
	anchorDock, anchorPos, _ := ws.queues.Position(anchor.ID)
	if moverDock != anchorDock {
		return nil, fmt.Errorf("%w: bookings are queued at different docks", ErrInvalidSwap)
	}
	if mover.Status != model.StatusInProgress || anchor.Status != model.StatusInProgress {
		return nil, fmt.Errorf("%w: both bookings must be in progress", ErrInvalidSwap)
	}

	if err := ws.queues.Swap(mover.ID, anchor.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSwap, err)
	}
	mover.QueuePosition = anchorPos
	anchor.QueuePosition = moverPos

	if err := ws.queues.CheckDense(moverDock); err != nil {
		return nil, e.halt(ws, err)
	}

	mut := store.Mutation{
		Bookings:  []*model.Booking{mover, anchor},
		Positions: map[int64]map[int64]int{moverDock: ws.queues.Snapshot(moverDock)},
		Traces: []*model.MoveTrace{{
			BookingID:     mover.ID,
			ActorID:       intent.ActorID,
			FromStatus:    mover.Status,
			ToStatus:      mover.Status,
			FromScheduled: &mover.ScheduledArrival,
			ToScheduled:   &mover.ScheduledArrival,
			Detail:        fmt.Sprintf("swapped positions with booking %d at dock %d", anchor.ID, moverDock),
			CreatedAt:     e.now(),
		}},
	}
	if err := e.store.Apply(ctx, mut); err != nil {
		e.evict(ws.id)
		return nil, fmt.Errorf("failed to persist swap: %w", err)
	}

	e.publishQueueChanged(ws.id, moverDock, mover.ID)
	return e.snapshotLocked(ws, moverDock), nil
}

// reorderRelative handles AFTER/BEFORE placements, including cross-dock moves
// and drops onto the unloading lane. Callers hold ws.mu.
func (e *Engine) reorderRelative(ctx context.Context, ws *warehouseState, mover, anchor *model.Booking, anchorDock int64, anchorPos int, intent ReorderIntent) (*QueueSnapshot, error) {
	fromDock := int64(0)
	hasFromDock := mover.DockID != nil
	if hasFromDock {
		fromDock = *mover.DockID
	}

	targetDock := anchorDock
	if intent.Action == ActionMoveOutsideDock && intent.DockID != nil {
		targetDock = *intent.DockID
	}
	if intent.Action == ActionMoveWithinDock {
		if !hasFromDock || fromDock != anchorDock {
			return nil, fmt.Errorf("%w: booking %d is not queued at dock %d", ErrValidation, mover.ID, anchorDock)
		}
	}
	if targetDock != anchorDock {
		return nil, fmt.Errorf("%w: anchor booking %d is not queued at the target dock", ErrValidation, anchor.ID)
	}

	dockChanges := !hasFromDock || fromDock != targetDock
	becomesUnloading := intent.ToStatus == model.StatusUnloading && mover.Status == model.StatusInProgress

	// Validate every guard before touching the queues: a failed guard must
	// leave the order unchanged.
	if intent.ToStatus == model.StatusUnloading || (dockChanges && mover.Status == model.StatusUnloading) {
		if occupant, busy := ws.unloading[targetDock]; busy && occupant != mover.ID {
			return nil, fmt.Errorf("%w: dock %d is unloading booking %d", ErrCapacityConflict, targetDock, occupant)
		}
	}
	if dockChanges {
		vehicle, err := e.store.GetVehicle(ctx, mover.VehicleID)
		if err != nil {
			return nil, err
		}
		windowStart := mover.ScheduledArrival
		if now := e.now(); now.After(windowStart) {
			windowStart = now
		}
		if err := e.checkDockFits(ctx, ws.id, targetDock, vehicle, windowStart); err != nil {
			return nil, err
		}
	}

	// Target position on the queue as it will look without the mover.
	position := anchorPos
	if hasFromDock && fromDock == targetDock {
		_, moverPos, _ := ws.queues.Position(mover.ID)
		if moverPos < anchorPos {
			position--
		}
	}
	if intent.Target.Type == TargetAfter {
		position++
	}

	switch {
	case !hasFromDock:
		if err := ws.queues.InsertAt(targetDock, mover.ID, position); err != nil {
			return nil, e.halt(ws, err)
		}
	case fromDock == targetDock:
		if err := ws.queues.MoveWithin(mover.ID, position); err != nil {
			return nil, e.halt(ws, err)
		}
	default:
		if err := ws.queues.MoveAcross(mover.ID, targetDock, position); err != nil {
			return nil, e.halt(ws, err)
		}
	}

	now := e.now()
	before := *mover
	mover.DockID = &targetDock
	_, pos, _ := ws.queues.Position(mover.ID)
	mover.QueuePosition = pos
	if becomesUnloading {
		mover.Status = model.StatusUnloading
		if mover.ActualArrival == nil {
			mover.ActualArrival = &now
		}
		ws.unloading[targetDock] = mover.ID
	}
	if mover.Status == model.StatusUnloading && dockChanges && hasFromDock {
		if ws.unloading[fromDock] == mover.ID {
			delete(ws.unloading, fromDock)
		}
		ws.unloading[targetDock] = mover.ID
	}

	affected := []int64{targetDock}
	if hasFromDock && fromDock != targetDock {
		affected = append(affected, fromDock)
	}
	for _, dockID := range affected {
		if err := ws.queues.CheckDense(dockID); err != nil {
			return nil, e.halt(ws, err)
		}
	}

	positions := make(map[int64]map[int64]int, len(affected))
	for _, dockID := range affected {
		positions[dockID] = ws.queues.Snapshot(dockID)
	}
	mut := store.Mutation{
		Bookings:  []*model.Booking{mover},
		Positions: positions,
		Traces: []*model.MoveTrace{{
			BookingID:     mover.ID,
			ActorID:       intent.ActorID,
			FromStatus:    before.Status,
			ToStatus:      mover.Status,
			FromScheduled: &before.ScheduledArrival,
			ToScheduled:   &mover.ScheduledArrival,
			Detail:        reorderDetail(intent, &before, mover),
			CreatedAt:     now,
		}},
	}
	if err := e.store.Apply(ctx, mut); err != nil {
		e.evict(ws.id)
		return nil, fmt.Errorf("failed to persist reorder: %w", err)
	}

	e.publishQueueChanged(ws.id, targetDock, mover.ID)
	return e.snapshotLocked(ws, targetDock), nil
}

func reorderDetail(intent ReorderIntent, before, after *model.Booking) string {
	from := "unassigned"
	if before.DockID != nil {
		from = fmt.Sprintf("dock %d position %d", *before.DockID, before.QueuePosition)
	}
	detail := fmt.Sprintf("moved %s %d: %s -> dock %d position %d",
		intent.Target.Type, intent.Target.BookingID, from, *after.DockID, after.QueuePosition)
	if before.Status != after.Status {
		detail += fmt.Sprintf(" (%s -> %s)", before.Status, after.Status)
	}
	return detail
}

// snapshotLocked builds a queue snapshot for the dock. Callers hold ws.mu.
func (e *Engine) snapshotLocked(ws *warehouseState, dockID int64) *QueueSnapshot {
	snapshot := &QueueSnapshot{DockID: dockID, Entries: []QueueEntry{}}
	for pos, id := range ws.queues.Queue(dockID) {
		b, ok := ws.bookings[id]
		if !ok {
			continue
		}
		snapshot.Entries = append(snapshot.Entries, QueueEntry{
			BookingID:        b.ID,
			Code:             b.Code,
			Position:         pos,
			Status:           b.Status,
			VendorID:         b.VendorID,
			VehicleID:        b.VehicleID,
			ScheduledArrival: b.ScheduledArrival,
			ActualArrival:    b.ActualArrival,
		})
	}
	return snapshot
}
