package evaluator

import (
	"context"
	"fmt"
	"log"
	"time"

	"dock-queue-backend/config"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/store"
)

// Dispatcher receives alerts that should reach push subscribers. Satisfied by
// notification.WorkerPool.
type Dispatcher interface {
	Dispatch(warehouseID int64, title, body string)
}

// Service periodically sweeps active bookings for overdue arrivals and
// unloading SLA breaches. Alerts are edge-triggered: a booking raises each
// alert kind once per episode, and the episode resets when the condition
// clears or the booking leaves the active set.
type Service struct {
	cfg        *config.Config
	store      store.Store
	engine     *engine.Engine
	bus        events.Bus
	dispatcher Dispatcher
	kick       chan struct{}
	now        func() time.Time

	// flags is keyed by booking ID and only touched by the run loop.
	flags map[int64]*alertFlags
}

type alertFlags struct {
	overdue   bool
	slaBreach bool
}

func NewService(cfg *config.Config, st store.Store, eng *engine.Engine, bus events.Bus, dispatcher Dispatcher) *Service {
	s := &Service{
		cfg:        cfg,
		store:      st,
		engine:     eng,
		bus:        bus,
		dispatcher: dispatcher,
		kick:       make(chan struct{}, 1),
		now:        time.Now,
		flags:      make(map[int64]*alertFlags),
	}
	eng.OnChange(func(warehouseID int64) { s.Kick() })
	return s
}

// Kick requests an immediate evaluation pass. Safe to call from any
// goroutine; coalesces with a pending request.
func (s *Service) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run starts the evaluation loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Evaluator.Enabled {
		log.Println("Delay evaluator is disabled. Not starting.")
		return
	}
	log.Println("Starting delay evaluator...")

	s.EvaluateOnce(ctx)

	timer := time.NewTimer(s.cfg.Evaluator.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Delay evaluator shutting down.")
			return
		case <-s.kick:
			s.EvaluateOnce(ctx)
			timer.Reset(s.cfg.Evaluator.Interval)
		case <-timer.C:
			s.EvaluateOnce(ctx)
			timer.Reset(s.cfg.Evaluator.Interval)
		}
	}
}

// EvaluateOnce sweeps every warehouse. Each warehouse is read under its own
// lock for only as long as it takes to copy the active set, so a long sweep
// never stalls booking traffic.
func (s *Service) EvaluateOnce(ctx context.Context) {
	warehouses, err := s.store.ListWarehouses(ctx)
	if err != nil {
		log.Printf("Evaluator: failed to list warehouses: %v", err)
		return
	}

	seen := make(map[int64]struct{})
	for i := range warehouses {
		s.evaluateWarehouse(ctx, &warehouses[i], seen)
	}

	// Bookings that left the active set reset their alert episodes.
	for id := range s.flags {
		if _, ok := seen[id]; !ok {
			delete(s.flags, id)
		}
	}
}

func (s *Service) evaluateWarehouse(ctx context.Context, wh *model.Warehouse, seen map[int64]struct{}) {
	bookings, err := s.engine.ActiveBookings(ctx, wh.ID)
	if err != nil {
		log.Printf("Evaluator: warehouse %d unavailable: %v", wh.ID, err)
		return
	}

	now := s.now()
	tolerance := time.Duration(wh.DelayToleranceMinutes) * time.Minute
	if wh.DelayToleranceMinutes <= 0 {
		tolerance = s.cfg.Scheduling.DefaultDelayTolerance
	}

	for i := range bookings {
		b := &bookings[i]
		seen[b.ID] = struct{}{}
		flags := s.flags[b.ID]
		if flags == nil {
			flags = &alertFlags{}
			s.flags[b.ID] = flags
		}

		switch b.Status {
		case model.StatusInProgress:
			overdue := b.ActualArrival == nil && now.Sub(b.ScheduledArrival) > tolerance
			if overdue && !flags.overdue {
				flags.overdue = true
				s.raise(wh, b, events.AlertOverdue, fmt.Sprintf(
					"booking %s is %d minutes overdue", b.Code, WaitingMinutes(now, b.ScheduledArrival)))
			} else if !overdue {
				flags.overdue = false
			}
			flags.slaBreach = false

		case model.StatusUnloading:
			finish, err := s.estimatedFinish(ctx, b)
			if err != nil {
				log.Printf("Evaluator: cannot estimate finish for booking %d: %v", b.ID, err)
				continue
			}
			breached := now.After(finish)
			if breached && !flags.slaBreach {
				flags.slaBreach = true
				s.raise(wh, b, events.AlertSLABreach, fmt.Sprintf(
					"booking %s exceeded its unloading window by %s", b.Code, now.Sub(finish).Round(time.Minute)))
			} else if !breached {
				flags.slaBreach = false
			}
			flags.overdue = false
		}
	}
}

// estimatedFinish is the moment unloading should be done: actual arrival when
// recorded, otherwise the scheduled arrival, plus the vehicle's unload time.
func (s *Service) estimatedFinish(ctx context.Context, b *model.Booking) (time.Time, error) {
	vehicle, err := s.store.GetVehicle(ctx, b.VehicleID)
	if err != nil {
		return time.Time{}, err
	}
	start := b.ScheduledArrival
	if b.ActualArrival != nil {
		start = *b.ActualArrival
	}
	return start.Add(time.Duration(vehicle.UnloadDurationMinutes) * time.Minute), nil
}

func (s *Service) raise(wh *model.Warehouse, b *model.Booking, kind, detail string) {
	log.Printf("Alert [%s] warehouse %d: %s", kind, wh.ID, detail)
	dockID := int64(0)
	if b.DockID != nil {
		dockID = *b.DockID
	}
	s.bus.Publish(events.Event{
		Type:        events.TypeAlert,
		WarehouseID: wh.ID,
		DockID:      dockID,
		BookingID:   b.ID,
		AlertKind:   kind,
		Detail:      detail,
		At:          s.now(),
	})
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(wh.ID, fmt.Sprintf("Dock alert: %s", kind), detail)
	}
}

// WaitingMinutes is how long a booking has waited past its scheduled arrival,
// floored at zero for early arrivals.
func WaitingMinutes(now, scheduledArrival time.Time) int {
	m := int(now.Sub(scheduledArrival) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}
