package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dock-queue-backend/internal/engine"
)

// PostBooking handles POST /api/bookings.
func (h *Handler) PostBooking(c *gin.Context) {
	var req engine.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.engine.CreateBooking(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.store.GetBooking(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	c.JSON(http.StatusOK, booking)
}

type transitionRequest struct {
	Event        string `json:"event" binding:"required"`
	ActorID      int64  `json:"actor_id"`
	Reason       string `json:"reason"`
	TargetDockID *int64 `json:"target_dock_id"`
}

// PostTransition handles POST /api/bookings/:id/transition.
func (h *Handler) PostTransition(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.engine.Transition(c.Request.Context(), engine.TransitionRequest{
		BookingID:    id,
		Event:        req.Event,
		ActorID:      req.ActorID,
		Reason:       req.Reason,
		TargetDockID: req.TargetDockID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetTraces handles GET /api/bookings/:id/traces.
func (h *Handler) GetTraces(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	traces, err := h.store.ListTraces(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, traces)
}

// GetNextSlot handles GET /api/docks/:id/next-slot?from=RFC3339&duration_minutes=N.
func (h *Handler) GetNextSlot(c *gin.Context) {
	dockID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from := time.Now()
	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}

	minutes, err := strconv.Atoi(c.DefaultQuery("duration_minutes", "30"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes must be a positive integer"})
		return
	}

	duration := time.Duration(minutes) * time.Minute
	start, err := h.calc.NextOpenSlot(c.Request.Context(), dockID, from, duration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": start.Add(duration)})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
