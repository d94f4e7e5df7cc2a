package model

import "time"

// MoveTrace is the append-only audit record of a booking transition or reorder.
type MoveTrace struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	BookingID     int64      `gorm:"index;not null" json:"booking_id"`
	ActorID       int64      `gorm:"not null" json:"actor_id"`
	FromStatus    string     `gorm:"size:16;not null" json:"from_status"`
	ToStatus      string     `gorm:"size:16;not null" json:"to_status"`
	FromScheduled *time.Time `json:"from_scheduled"`
	ToScheduled   *time.Time `json:"to_scheduled"`
	Detail        string     `gorm:"size:512" json:"detail"`
	CreatedAt     time.Time  `gorm:"not null;index" json:"created_at"`
}
