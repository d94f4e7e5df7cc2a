package model

import "time"

// PushSubscription holds the information for a staff browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Warehouses []*Warehouse `gorm:"many2many:subscription_warehouse_mapping;" json:"-"`
}
