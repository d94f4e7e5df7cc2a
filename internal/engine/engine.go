package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/queue"
	"dock-queue-backend/internal/store"
)

// Engine owns the per-warehouse queue aggregates and is the only writer of
// booking status and queue order. All mutating operations on one warehouse
// are serialized behind that warehouse's lock.
type Engine struct {
	store  store.Store
	avail  *availability.Calculator
	bus    events.Bus
	logger *log.Logger
	now    func() time.Time

	onChange func(warehouseID int64)

	mu         sync.Mutex
	warehouses map[int64]*warehouseState
}

// warehouseState is the in-memory aggregate for one warehouse: its queues,
// its active bookings and the UNLOADING occupant per dock.
type warehouseState struct {
	mu        sync.Mutex
	id        int64
	queues    *queue.Store
	bookings  map[int64]*model.Booking
	unloading map[int64]int64 // dockID -> bookingID
	halted    error
}

// New creates the engine. State is rehydrated lazily per warehouse on first
// access.
func New(s store.Store, avail *availability.Calculator, bus events.Bus, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:      s,
		avail:      avail,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
		warehouses: make(map[int64]*warehouseState),
	}
}

// OnChange registers a callback invoked after every successful mutation of a
// warehouse. The delay evaluator uses it to run an extra pass promptly.
func (e *Engine) OnChange(fn func(warehouseID int64)) {
	e.onChange = fn
}

// state returns the warehouse aggregate, loading active bookings from the
// store on first access.
func (e *Engine) state(ctx context.Context, warehouseID int64) (*warehouseState, error) {
	e.mu.Lock()
	ws, ok := e.warehouses[warehouseID]
	e.mu.Unlock()
	if ok {
		return ws, nil
	}

	if _, err := e.store.GetWarehouse(ctx, warehouseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: warehouse %d", ErrNotFound, warehouseID)
		}
		return nil, err
	}

	bookings, err := e.store.LoadActiveBookings(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate warehouse %d: %w", warehouseID, err)
	}

	ws = &warehouseState{
		id:        warehouseID,
		queues:    queue.NewStore(),
		bookings:  make(map[int64]*model.Booking),
		unloading: make(map[int64]int64),
	}
	for i := range bookings {
		b := bookings[i]
		ws.bookings[b.ID] = &b
		if b.DockID != nil {
			// LoadActiveBookings orders by (dock, position); appending
			// preserves the stored order and re-densifies any gaps.
			if err := ws.queues.InsertAt(*b.DockID, b.ID, ws.queues.Len(*b.DockID)); err != nil {
				return nil, fmt.Errorf("failed to rehydrate queue of dock %d: %w", *b.DockID, err)
			}
			if b.Status == model.StatusUnloading {
				if _, busy := ws.unloading[*b.DockID]; busy {
					ws.halted = fmt.Errorf("dock %d has two unloading bookings", *b.DockID)
				}
				ws.unloading[*b.DockID] = b.ID
			}
		}
	}

	e.mu.Lock()
	if existing, ok := e.warehouses[warehouseID]; ok {
		ws = existing // lost the race, keep the first aggregate
	} else {
		e.warehouses[warehouseID] = ws
	}
	e.mu.Unlock()
	return ws, nil
}

// evict drops a warehouse aggregate so the next access rebuilds it from the
// store. Called when persistence fails after the in-memory state moved.
func (e *Engine) evict(warehouseID int64) {
	e.mu.Lock()
	delete(e.warehouses, warehouseID)
	e.mu.Unlock()
}

// halt marks the warehouse's mutation path as failed and raises a
// data-integrity alarm. Deliberately no automatic repair.
func (e *Engine) halt(ws *warehouseState, cause error) error {
	ws.halted = cause
	e.logger.Printf("INTEGRITY ALARM: warehouse %d mutation path halted: %v", ws.id, cause)
	e.bus.Publish(events.Event{
		Type:        events.TypeAlert,
		WarehouseID: ws.id,
		AlertKind:   events.AlertIntegrity,
		Detail:      cause.Error(),
		At:          e.now(),
	})
	return fmt.Errorf("%w: %v", ErrIntegrity, cause)
}

// publishQueueChanged tells subscribers to refetch the warehouse's queues.
func (e *Engine) publishQueueChanged(warehouseID, dockID, bookingID int64) {
	e.bus.Publish(events.Event{
		Type:        events.TypeQueueChanged,
		WarehouseID: warehouseID,
		DockID:      dockID,
		BookingID:   bookingID,
		At:          e.now(),
	})
	if e.onChange != nil {
		e.onChange(warehouseID)
	}
}

// CreateBooking validates availability for the requested dock (when given)
// and appends the booking to that dock's queue.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest) (*model.Booking, error) {
	if req.WarehouseID == 0 || req.VendorID == 0 || req.VehicleID == 0 {
		return nil, fmt.Errorf("%w: warehouse, vendor and vehicle are required", ErrValidation)
	}
	if req.ScheduledArrival.IsZero() {
		return nil, fmt.Errorf("%w: scheduled arrival is required", ErrValidation)
	}

	vehicle, err := e.store.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, req.VehicleID)
		}
		return nil, err
	}

	// Availability is read-only work; keep it outside the warehouse lock.
	if req.DockID != nil {
		if err := e.checkDockFits(ctx, req.WarehouseID, *req.DockID, vehicle, req.ScheduledArrival); err != nil {
			return nil, err
		}
	}

	ws, err := e.state(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.halted != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, ws.halted)
	}

	code, err := e.nextCode(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		Code:             code,
		WarehouseID:      req.WarehouseID,
		DockID:           req.DockID,
		VendorID:         req.VendorID,
		VendorUserID:     req.VendorUserID,
		VehicleID:        req.VehicleID,
		ScheduledArrival: req.ScheduledArrival,
		Status:           model.StatusInProgress,
	}
	if req.DockID != nil {
		booking.QueuePosition = ws.queues.Len(*req.DockID)
	}

	now := e.now()
	// Stamp CreatedAt from the engine clock; the day-scoped code sequence
	// counts by creation day and must agree with nextCode.
	booking.CreatedAt = now
	// The creation trace needs the generated booking ID, so the booking is
	// created first and the trace appended right after.
	if err := e.store.Apply(ctx, store.Mutation{Bookings: []*model.Booking{booking}}); err != nil {
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}
	trace := &model.MoveTrace{
		BookingID:   booking.ID,
		ActorID:     req.VendorUserID,
		FromStatus:  "",
		ToStatus:    model.StatusInProgress,
		ToScheduled: &req.ScheduledArrival,
		Detail:      "booking created",
		CreatedAt:   now,
	}
	if err := e.store.Apply(ctx, store.Mutation{Traces: []*model.MoveTrace{trace}}); err != nil {
		e.logger.Printf("failed to append creation trace for booking %d: %v", booking.ID, err)
	}

	ws.bookings[booking.ID] = booking
	if booking.DockID != nil {
		if err := ws.queues.InsertAt(*booking.DockID, booking.ID, booking.QueuePosition); err != nil {
			return nil, e.halt(ws, err)
		}
		if err := ws.queues.CheckDense(*booking.DockID); err != nil {
			return nil, e.halt(ws, err)
		}
	}

	var dockID int64
	if booking.DockID != nil {
		dockID = *booking.DockID
	}
	e.publishQueueChanged(req.WarehouseID, dockID, booking.ID)

	copied := *booking
	return &copied, nil
}

// checkDockFits verifies the dock is active, accepts the vehicle type and is
// open for the booking's unloading window.
func (e *Engine) checkDockFits(ctx context.Context, warehouseID, dockID int64, vehicle *model.Vehicle, start time.Time) error {
	dock, err := e.store.GetDock(ctx, dockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: dock %d", ErrNotFound, dockID)
		}
		return err
	}
	if dock.WarehouseID != warehouseID {
		return fmt.Errorf("%w: dock %d belongs to another warehouse", ErrValidation, dockID)
	}
	if !dock.IsActive {
		return fmt.Errorf("%w: dock %d is deactivated", ErrDockUnavailable, dockID)
	}
	if !dockAllowsVehicle(dock, vehicle) {
		return fmt.Errorf("%w: dock %d does not accept vehicle type %q", ErrDockUnavailable, dockID, vehicle.VehicleType)
	}

	duration := time.Duration(vehicle.UnloadDurationMinutes) * time.Minute
	open, conflict, err := e.avail.IsOpen(ctx, dockID, start, start.Add(duration))
	if err != nil {
		return err
	}
	if !open {
		if conflict != nil {
			return fmt.Errorf("%w: busy from %s to %s", ErrDockUnavailable,
				conflict.Start.Format(time.RFC3339), conflict.End.Format(time.RFC3339))
		}
		return fmt.Errorf("%w: outside operating hours", ErrDockUnavailable)
	}
	return nil
}

// dockAllowsVehicle checks the dock's allow-list. An empty list accepts all.
func dockAllowsVehicle(dock *model.Dock, vehicle *model.Vehicle) bool {
	if strings.TrimSpace(dock.AllowedVehicleTypes) == "" {
		return true
	}
	for _, tag := range strings.Split(dock.AllowedVehicleTypes, ",") {
		if strings.EqualFold(strings.TrimSpace(tag), vehicle.VehicleType) {
			return true
		}
	}
	return false
}

// nextCode builds the human-readable booking code, e.g. WH3-20260828-007.
func (e *Engine) nextCode(ctx context.Context, warehouseID int64) (string, error) {
	now := e.now()
	count, err := e.store.CountBookingsForDay(ctx, warehouseID, now)
	if err != nil {
		return "", fmt.Errorf("failed to count bookings for code generation: %w", err)
	}
	return fmt.Sprintf("WH%d-%s-%03d", warehouseID, now.Format("20060102"), count+1), nil
}

// Transition applies one state machine event to a booking. Unlisted
// (state, event) pairs fail with ErrInvalidTransition and change nothing.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*model.Booking, error) {
	booking, err := e.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, req.BookingID)
		}
		return nil, err
	}

	// reassign_dock consults availability; do the read-only part before
	// taking the warehouse lock.
	var vehicle *model.Vehicle
	if req.Event == EventReassignDock {
		if req.TargetDockID == nil {
			return nil, fmt.Errorf("%w: target dock is required for reassign", ErrValidation)
		}
		vehicle, err = e.store.GetVehicle(ctx, booking.VehicleID)
		if err != nil {
			return nil, err
		}
		windowStart := booking.ScheduledArrival
		if now := e.now(); now.After(windowStart) {
			windowStart = now
		}
		if err := e.checkDockFits(ctx, booking.WarehouseID, *req.TargetDockID, vehicle, windowStart); err != nil {
			return nil, err
		}
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

	live, ok := ws.bookings[req.BookingID]
	if !ok {
		// Terminal bookings leave the aggregate; report the stored status.
		return nil, fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, req.BookingID, booking.Status)
	}

	return e.applyTransition(ctx, ws, live, req)
}

// applyTransition mutates under the warehouse lock. Callers hold ws.mu.
func (e *Engine) applyTransition(ctx context.Context, ws *warehouseState, booking *model.Booking, req TransitionRequest) (*model.Booking, error) {
	now := e.now()
	before := *booking
	var mut store.Mutation
	var affectedDocks []int64

	switch {
	case booking.Status == model.StatusInProgress && req.Event == EventBeginUnloading:
		if booking.DockID == nil {
			return nil, fmt.Errorf("%w: booking %d has no dock assigned", ErrInvalidTransition, booking.ID)
		}
		if occupant, busy := ws.unloading[*booking.DockID]; busy {
			return nil, fmt.Errorf("%w: dock %d is unloading booking %d", ErrCapacityConflict, *booking.DockID, occupant)
		}
		booking.Status = model.StatusUnloading
		if booking.ActualArrival == nil {
			booking.ActualArrival = &now
		}
		ws.unloading[*booking.DockID] = booking.ID
		mut.Bookings = []*model.Booking{booking}
		affectedDocks = append(affectedDocks, *booking.DockID)

	case (booking.Status == model.StatusInProgress || booking.Status == model.StatusUnloading) && req.Event == EventCancel:
		if strings.TrimSpace(req.Reason) == "" {
			return nil, fmt.Errorf("%w: cancel requires a reason", ErrValidation)
		}
		if booking.Status == model.StatusUnloading && booking.DockID != nil {
			delete(ws.unloading, *booking.DockID)
		}
		if booking.DockID != nil {
			dockID := *booking.DockID
			if err := ws.queues.Remove(booking.ID); err != nil {
				return nil, e.halt(ws, err)
			}
			mut.Positions = map[int64]map[int64]int{dockID: ws.queues.Snapshot(dockID)}
			affectedDocks = append(affectedDocks, dockID)
		}
		booking.Status = model.StatusCanceled
		booking.CancelReason = req.Reason
		booking.QueuePosition = 0
		delete(ws.bookings, booking.ID)
		mut.Bookings = []*model.Booking{booking}

	case booking.Status == model.StatusUnloading && req.Event == EventFinish:
		if booking.DockID != nil {
			dockID := *booking.DockID
			delete(ws.unloading, dockID)
			if err := ws.queues.Remove(booking.ID); err != nil {
				return nil, e.halt(ws, err)
			}
			mut.Positions = map[int64]map[int64]int{dockID: ws.queues.Snapshot(dockID)}
			affectedDocks = append(affectedDocks, dockID)
		}
		booking.Status = model.StatusFinished
		booking.ActualFinish = &now
		booking.QueuePosition = 0
		delete(ws.bookings, booking.ID)
		mut.Bookings = []*model.Booking{booking}

	case (booking.Status == model.StatusInProgress || booking.Status == model.StatusUnloading) && req.Event == EventReassignDock:
		target := *req.TargetDockID
		if booking.Status == model.StatusUnloading {
			if occupant, busy := ws.unloading[target]; busy && occupant != booking.ID {
				return nil, fmt.Errorf("%w: dock %d is unloading booking %d", ErrCapacityConflict, target, occupant)
			}
		}
		fromDock := booking.DockID
		if fromDock != nil && *fromDock == target {
			return nil, fmt.Errorf("%w: booking %d is already at dock %d", ErrValidation, booking.ID, target)
		}
		if fromDock != nil {
			if err := ws.queues.MoveAcross(booking.ID, target, ws.queues.Len(target)); err != nil {
				return nil, e.halt(ws, err)
			}
			affectedDocks = append(affectedDocks, *fromDock)
		} else {
			if err := ws.queues.InsertAt(target, booking.ID, ws.queues.Len(target)); err != nil {
				return nil, e.halt(ws, err)
			}
		}
		if booking.Status == model.StatusUnloading {
			if fromDock != nil {
				delete(ws.unloading, *fromDock)
			}
			ws.unloading[target] = booking.ID
		}
		booking.DockID = &target
		_, pos, _ := ws.queues.Position(booking.ID)
		booking.QueuePosition = pos
		mut.Bookings = []*model.Booking{booking}
		mut.Positions = map[int64]map[int64]int{target: ws.queues.Snapshot(target)}
		if fromDock != nil {
			mut.Positions[*fromDock] = ws.queues.Snapshot(*fromDock)
		}
		affectedDocks = append(affectedDocks, target)

	default:
		return nil, fmt.Errorf("%w: cannot %s a %s booking", ErrInvalidTransition, req.Event, booking.Status)
	}

	for _, dockID := range affectedDocks {
		if err := ws.queues.CheckDense(dockID); err != nil {
			return nil, e.halt(ws, err)
		}
	}

	mut.Traces = []*model.MoveTrace{{
		BookingID:     booking.ID,
		ActorID:       req.ActorID,
		FromStatus:    before.Status,
		ToStatus:      booking.Status,
		FromScheduled: &before.ScheduledArrival,
		ToScheduled:   &booking.ScheduledArrival,
		Detail:        transitionDetail(req, &before, booking),
		CreatedAt:     now,
	}}

	if err := e.store.Apply(ctx, mut); err != nil {
		// Memory moved but the store did not; rebuild from the store.
		e.evict(ws.id)
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	var dockID int64
	if booking.DockID != nil {
		dockID = *booking.DockID
	}
	e.publishQueueChanged(ws.id, dockID, booking.ID)

	copied := *booking
	return &copied, nil
}

func transitionDetail(req TransitionRequest, before, after *model.Booking) string {
	switch req.Event {
	case EventCancel:
		return "canceled: " + req.Reason
	case EventReassignDock:
		from := "unassigned"
		if before.DockID != nil {
			from = fmt.Sprintf("dock %d", *before.DockID)
		}
		return fmt.Sprintf("reassigned from %s to dock %d", from, *after.DockID)
	default:
		return req.Event
	}
}

// GetQueue returns a consistent snapshot of the dock's ordered queue.
func (e *Engine) GetQueue(ctx context.Context, dockID int64) (*QueueSnapshot, error) {
	dock, err := e.store.GetDock(ctx, dockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dock %d", ErrNotFound, dockID)
		}
		return nil, err
	}

	ws, err := e.state(ctx, dock.WarehouseID)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	return e.snapshotLocked(ws, dockID), nil
}

// ActiveBookings returns copies of the warehouse's active bookings, for the
// delay evaluator. The lock is held only while copying.
func (e *Engine) ActiveBookings(ctx context.Context, warehouseID int64) ([]model.Booking, error) {
	ws, err := e.state(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]model.Booking, 0, len(ws.bookings))
	for _, b := range ws.bookings {
		out = append(out, *b)
	}
	return out, nil
}
