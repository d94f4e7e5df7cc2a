package model

import "time"

// Recurrence kinds for a busy-time rule.
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// BusyTimeRule represents a one-off or recurring interval during which a dock
// (or the whole warehouse when DockID is null) is unavailable.
type BusyTimeRule struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	WarehouseID int64     `gorm:"index;not null" json:"warehouse_id"`
	DockID      *int64    `gorm:"index" json:"dock_id"` // null = warehouse-wide
	From        time.Time `gorm:"not null" json:"from"` // first occurrence start, recurrence anchor
	To          time.Time `gorm:"not null" json:"to"`   // first occurrence end; same calendar day as From
	Recurrence  string    `gorm:"size:16;not null;default:'none'" json:"recurrence"`
	Step        int       `gorm:"not null;default:1" json:"step"`
	CustomDays  string    `gorm:"size:32" json:"custom_days"` // weekly only, comma-separated weekday numbers 0-6
	Reason      string    `gorm:"size:256" json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
