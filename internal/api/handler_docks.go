package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dock-queue-backend/internal/model"
	"dock-queue-backend/internal/recurrence"
)

// GetWarehouses handles GET /api/warehouses.
func (h *Handler) GetWarehouses(c *gin.Context) {
	warehouses, err := h.store.ListWarehouses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve warehouses"})
		return
	}
	c.JSON(http.StatusOK, warehouses)
}

// GetDocks handles GET /api/warehouses/:id/docks.
func (h *Handler) GetDocks(c *gin.Context) {
	warehouseID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docks, err := h.store.ListDocks(c.Request.Context(), warehouseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve docks"})
		return
	}
	c.JSON(http.StatusOK, docks)
}

type dockRequest struct {
	Name                string            `json:"name" binding:"required"`
	AllowedVehicleTypes string            `json:"allowed_vehicle_types"`
	PriorityWeight      int               `json:"priority_weight"`
	Hours               []model.DockHours `json:"hours"`
}

// PostDock handles POST /api/warehouses/:id/docks.
func (h *Handler) PostDock(c *gin.Context) {
	warehouseID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req dockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dock := model.Dock{
		WarehouseID:         warehouseID,
		Name:                req.Name,
		AllowedVehicleTypes: req.AllowedVehicleTypes,
		PriorityWeight:      req.PriorityWeight,
		IsActive:            true,
	}
	err = h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&dock).Error; err != nil {
			return err
		}
		for i := range req.Hours {
			req.Hours[i].ID = 0
			req.Hours[i].DockID = dock.ID
		}
		if len(req.Hours) > 0 {
			return tx.Create(&req.Hours).Error
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reader.Invalidate()
	c.JSON(http.StatusCreated, dock)
}

type dockUpdateRequest struct {
	Name                *string            `json:"name"`
	AllowedVehicleTypes *string            `json:"allowed_vehicle_types"`
	PriorityWeight      *int               `json:"priority_weight"`
	IsActive            *bool              `json:"is_active"`
	Hours               *[]model.DockHours `json:"hours"`
}

// PatchDock handles PATCH /api/docks/:id. Deactivating a dock is refused
// while bookings are still queued at it.
func (h *Handler) PatchDock(c *gin.Context) {
	dockID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req dockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	dock, err := h.store.GetDock(ctx, dockID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dock not found"})
		return
	}

	if req.IsActive != nil && !*req.IsActive && dock.IsActive {
		active, err := h.store.CountActiveBookings(ctx, dockID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if active > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "dock still has queued bookings"})
			return
		}
	}

	if req.Name != nil {
		dock.Name = *req.Name
	}
	if req.AllowedVehicleTypes != nil {
		dock.AllowedVehicleTypes = *req.AllowedVehicleTypes
	}
	if req.PriorityWeight != nil {
		dock.PriorityWeight = *req.PriorityWeight
	}
	if req.IsActive != nil {
		dock.IsActive = *req.IsActive
	}

	err = h.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Hours").Save(dock).Error; err != nil {
			return err
		}
		if req.Hours == nil {
			return nil
		}
		if err := tx.Where("dock_id = ?", dock.ID).Delete(&model.DockHours{}).Error; err != nil {
			return err
		}
		hours := *req.Hours
		for i := range hours {
			hours[i].ID = 0
			hours[i].DockID = dock.ID
		}
		if len(hours) > 0 {
			return tx.Create(&hours).Error
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reader.Invalidate()
	c.JSON(http.StatusOK, dock)
}

// GetBusyRules handles GET /api/warehouses/:id/busy-rules.
func (h *Handler) GetBusyRules(c *gin.Context) {
	warehouseID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rules []model.BusyTimeRule
	if err := h.store.DB().WithContext(c.Request.Context()).
		Where("warehouse_id = ?", warehouseID).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

type busyRuleRequest struct {
	DockID     *int64    `json:"dock_id"`
	From       time.Time `json:"from" binding:"required"`
	To         time.Time `json:"to" binding:"required"`
	Recurrence string    `json:"recurrence"`
	Step       int       `json:"step"`
	CustomDays string    `json:"custom_days"`
	Reason     string    `json:"reason"`
}

// PostBusyRule handles POST /api/warehouses/:id/busy-rules.
func (h *Handler) PostBusyRule(c *gin.Context) {
	warehouseID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req busyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Recurrence == "" {
		req.Recurrence = model.RecurrenceNone
	}
	if req.Step <= 0 {
		req.Step = 1
	}

	rule := model.BusyTimeRule{
		WarehouseID: warehouseID,
		DockID:      req.DockID,
		From:        req.From,
		To:          req.To,
		Recurrence:  req.Recurrence,
		Step:        req.Step,
		CustomDays:  req.CustomDays,
		Reason:      req.Reason,
	}
	if err := recurrence.Validate(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.DB().WithContext(c.Request.Context()).Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.reader.Invalidate()
	c.JSON(http.StatusCreated, rule)
}

// DeleteBusyRule handles DELETE /api/busy-rules/:id.
func (h *Handler) DeleteBusyRule(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.store.DB().WithContext(c.Request.Context()).Delete(&model.BusyTimeRule{}, id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "busy rule not found"})
		return
	}

	h.reader.Invalidate()
	c.Status(http.StatusNoContent)
}
