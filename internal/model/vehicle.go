package model

import "time"

// Vehicle carries the unload-duration estimate used for SLA projections.
type Vehicle struct {
	ID                    int64     `gorm:"primaryKey" json:"id"`
	VendorID              int64     `gorm:"index;not null" json:"vendor_id"`
	Plate                 string    `gorm:"size:32;not null" json:"plate"`
	VehicleType           string    `gorm:"size:64" json:"vehicle_type"`
	UnloadDurationMinutes int       `gorm:"not null;default:30" json:"unload_duration_minutes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
