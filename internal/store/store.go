package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dock-queue-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	ListWarehouses(ctx context.Context) ([]model.Warehouse, error)
	GetWarehouse(ctx context.Context, id int64) (*model.Warehouse, error)
	GetDock(ctx context.Context, id int64) (*model.Dock, error)
	ListDocks(ctx context.Context, warehouseID int64) ([]model.Dock, error)
	ListBusyRules(ctx context.Context, warehouseID int64, dockID int64) ([]model.BusyTimeRule, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)

	LoadActiveBookings(ctx context.Context, warehouseID int64) ([]model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CountBookingsForDay(ctx context.Context, warehouseID int64, day time.Time) (int64, error)
	CountActiveBookings(ctx context.Context, dockID int64) (int64, error)
	ListTraces(ctx context.Context, bookingID int64) ([]model.MoveTrace, error)

	Apply(ctx context.Context, mut Mutation) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) ListWarehouses(ctx context.Context) ([]model.Warehouse, error) {
	var warehouses []model.Warehouse
	if err := s.db.WithContext(ctx).Find(&warehouses).Error; err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (s *gormStore) GetWarehouse(ctx context.Context, id int64) (*model.Warehouse, error) {
	var warehouse model.Warehouse
	if err := s.db.WithContext(ctx).First(&warehouse, id).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func (s *gormStore) GetDock(ctx context.Context, id int64) (*model.Dock, error) {
	var dock model.Dock
	if err := s.db.WithContext(ctx).Preload("Hours").First(&dock, id).Error; err != nil {
		return nil, err
	}
	return &dock, nil
}

func (s *gormStore) ListDocks(ctx context.Context, warehouseID int64) ([]model.Dock, error) {
	var docks []model.Dock
	if err := s.db.WithContext(ctx).Preload("Hours").
		Where("warehouse_id = ?", warehouseID).
		Order("priority_weight DESC, id ASC").
		Find(&docks).Error; err != nil {
		return nil, err
	}
	return docks, nil
}

// ListBusyRules returns the dock's own rules plus the warehouse-wide ones.
func (s *gormStore) ListBusyRules(ctx context.Context, warehouseID int64, dockID int64) ([]model.BusyTimeRule, error) {
	var rules []model.BusyTimeRule
	if err := s.db.WithContext(ctx).
		Where("warehouse_id = ? AND (dock_id IS NULL OR dock_id = ?)", warehouseID, dockID).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *gormStore) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := s.db.WithContext(ctx).First(&vehicle, id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// LoadActiveBookings returns the warehouse's queued bookings ordered by dock
// and position, for rehydrating the in-memory queues at startup.
func (s *gormStore) LoadActiveBookings(ctx context.Context, warehouseID int64) ([]model.Booking, error) {
	var bookings []model.Booking
	if err := s.db.WithContext(ctx).
		Where("warehouse_id = ? AND status IN ?", warehouseID, model.ActiveStatuses).
		Order("dock_id ASC, queue_position ASC").
		Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (s *gormStore) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var booking model.Booking
	if err := s.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// CountBookingsForDay counts bookings created for the warehouse on the given
// calendar day. Used for human-readable code generation.
func (s *gormStore) CountBookingsForDay(ctx context.Context, warehouseID int64, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("warehouse_id = ? AND created_at >= ? AND created_at < ?", warehouseID, start, end).
		Count(&count).Error
	return count, err
}

func (s *gormStore) CountActiveBookings(ctx context.Context, dockID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("dock_id = ? AND status IN ?", dockID, model.ActiveStatuses).
		Count(&count).Error
	return count, err
}

func (s *gormStore) ListTraces(ctx context.Context, bookingID int64) ([]model.MoveTrace, error) {
	var traces []model.MoveTrace
	if err := s.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("id ASC").
		Find(&traces).Error; err != nil {
		return nil, err
	}
	return traces, nil
}

// Apply persists one engine mutation transactionally.
func (s *gormStore) Apply(ctx context.Context, mut Mutation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, booking := range mut.Bookings {
			if booking.ID == 0 {
				if err := tx.Create(booking).Error; err != nil {
					return fmt.Errorf("failed to create booking: %w", err)
				}
				continue
			}
			if err := tx.Save(booking).Error; err != nil {
				return fmt.Errorf("failed to save booking %d: %w", booking.ID, err)
			}
		}
		for dockID, positions := range mut.Positions {
			for bookingID, position := range positions {
				if err := tx.Model(&model.Booking{}).
					Where("id = ?", bookingID).
					Update("queue_position", position).Error; err != nil {
					return fmt.Errorf("failed to update position of booking %d at dock %d: %w", bookingID, dockID, err)
				}
			}
		}
		for _, trace := range mut.Traces {
			if err := tx.Create(trace).Error; err != nil {
				return fmt.Errorf("failed to append move trace for booking %d: %w", trace.BookingID, err)
			}
		}
		return nil
	})
}
