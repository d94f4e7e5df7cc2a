package model

import "time"

// Booking lifecycle states.
const (
	StatusInProgress = "in_progress"
	StatusUnloading  = "unloading"
	StatusFinished   = "finished"
	StatusCanceled   = "canceled"
)

// ActiveStatuses are the states in which a booking holds a queue position.
var ActiveStatuses = []string{StatusInProgress, StatusUnloading}

// Booking represents a vendor's arrival slot at a warehouse.
type Booking struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	Code             string     `gorm:"uniqueIndex;size:32;not null" json:"code"`
	WarehouseID      int64      `gorm:"index;not null" json:"warehouse_id"`
	DockID           *int64     `gorm:"index" json:"dock_id"` // null until assigned
	VendorID         int64      `gorm:"index;not null" json:"vendor_id"`
	VendorUserID     int64      `gorm:"not null" json:"vendor_user_id"`
	VehicleID        int64      `gorm:"not null" json:"vehicle_id"`
	ScheduledArrival time.Time  `gorm:"not null;index" json:"scheduled_arrival"`
	ActualArrival    *time.Time `json:"actual_arrival"`
	ActualFinish     *time.Time `json:"actual_finish"`
	Status           string     `gorm:"size:16;not null;index" json:"status"`
	QueuePosition    int        `gorm:"not null;default:0" json:"queue_position"` // meaningful only while active
	CancelReason     string     `gorm:"size:256" json:"cancel_reason"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Associations
	Vehicle Vehicle `gorm:"constraint:OnDelete:RESTRICT" json:"vehicle,omitempty"`
}
