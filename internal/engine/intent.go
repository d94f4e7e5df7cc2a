package engine

import "time"

// Transition events accepted by the booking state machine.
const (
	EventBeginUnloading = "begin_unloading"
	EventFinish         = "finish"
	EventCancel         = "cancel"
	EventReassignDock   = "reassign_dock"
)

// Reorder intent actions.
const (
	ActionMoveWithinDock  = "move_within_dock"
	ActionMoveOutsideDock = "move_outside_dock"
)

// Relative position target types.
const (
	TargetAfter  = "after"
	TargetBefore = "before"
	TargetSwap   = "swap"
)

// CreateRequest is the input for CreateBooking.
type CreateRequest struct {
	WarehouseID      int64     `json:"warehouse_id"`
	VendorID         int64     `json:"vendor_id"`
	VendorUserID     int64     `json:"vendor_user_id"`
	VehicleID        int64     `json:"vehicle_id"`
	ScheduledArrival time.Time `json:"scheduled_arrival"`
	DockID           *int64    `json:"dock_id"` // optional requested dock
}

// TransitionRequest is the input for Transition.
type TransitionRequest struct {
	BookingID    int64  `json:"booking_id"`
	Event        string `json:"event"`
	ActorID      int64  `json:"actor_id"`
	Reason       string `json:"reason"`         // required for cancel
	TargetDockID *int64 `json:"target_dock_id"` // required for reassign_dock
}

// RelativeTarget anchors a drag-and-drop intent to another booking.
type RelativeTarget struct {
	Type      string `json:"type"` // after | before | swap
	BookingID int64  `json:"booking_id"`
}

// ReorderIntent is one drag-and-drop gesture against the queue.
type ReorderIntent struct {
	BookingID int64          `json:"booking_id"`
	Action    string         `json:"action"`    // move_within_dock | move_outside_dock
	ToStatus  string         `json:"to_status"` // in_progress | unloading | canceled
	DockID    *int64         `json:"dock_id"`   // target dock for move_outside_dock
	Target    RelativeTarget `json:"target"`
	ActorID   int64          `json:"actor_id"`
	Reason    string         `json:"reason"` // required when to_status = canceled
}

// QueueEntry is one booking in a queue snapshot.
type QueueEntry struct {
	BookingID        int64      `json:"booking_id"`
	Code             string     `json:"code"`
	Position         int        `json:"position"`
	Status           string     `json:"status"`
	VendorID         int64      `json:"vendor_id"`
	VehicleID        int64      `json:"vehicle_id"`
	ScheduledArrival time.Time  `json:"scheduled_arrival"`
	ActualArrival    *time.Time `json:"actual_arrival"`
}

// QueueSnapshot is the ordered queue of one dock at a consistent point.
type QueueSnapshot struct {
	DockID  int64        `json:"dock_id"`
	Entries []QueueEntry `json:"entries"`
}
