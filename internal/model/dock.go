package model

import "time"

// Dock represents a loading bay belonging to a warehouse.
type Dock struct {
	ID                  int64     `gorm:"primaryKey" json:"id"`
	WarehouseID         int64     `gorm:"index;not null" json:"warehouse_id"`
	Name                string    `gorm:"size:128;not null" json:"name"`
	AllowedVehicleTypes string    `gorm:"size:256" json:"allowed_vehicle_types"` // comma-separated tags
	PriorityWeight      int       `gorm:"not null;default:0" json:"priority_weight"`
	IsActive            bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	// Associations
	Warehouse Warehouse   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Hours     []DockHours `gorm:"foreignKey:DockID" json:"hours,omitempty"`
}

// DockHours is one weekday's open/close pair of a dock's weekly template.
// A weekday without a row is closed all day.
type DockHours struct {
	ID      int64        `gorm:"primaryKey" json:"id"`
	DockID  int64        `gorm:"index:idx_dock_hours_day,unique;not null" json:"dock_id"`
	Weekday time.Weekday `gorm:"index:idx_dock_hours_day,unique;not null" json:"weekday"`
	Open    string       `gorm:"size:10;not null" json:"open"`  // HH:MM
	Close   string       `gorm:"size:10;not null" json:"close"` // HH:MM
}
