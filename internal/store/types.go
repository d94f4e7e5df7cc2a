package store

import "dock-queue-backend/internal/model"

// Mutation is the unit of persistence for one engine operation. Everything in
// it is applied inside a single database transaction so no observer sees a
// partially applied reorder or transition.
type Mutation struct {
	// Bookings to save in full (status, dock, timestamps, position).
	Bookings []*model.Booking
	// Positions holds re-densified queue positions per dock for bookings
	// that only shifted, keyed dockID -> bookingID -> position.
	Positions map[int64]map[int64]int
	// Traces to append, in application order.
	Traces []*model.MoveTrace
}
