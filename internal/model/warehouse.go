package model

import "time"

// Warehouse represents a warehouse site with its scheduling configuration.
type Warehouse struct {
	ID                    int64     `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	DelayToleranceMinutes int       `gorm:"not null;default:30" json:"delay_tolerance_minutes"`
	IsAutoEfficientActive bool      `gorm:"not null;default:false" json:"is_auto_efficient_active"`
	CreatedAt             time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Docks []Dock `gorm:"foreignKey:WarehouseID" json:"docks,omitempty"`
}
