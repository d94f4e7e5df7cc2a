package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/evaluator"
)

type queueEntryResponse struct {
	engine.QueueEntry
	WaitingMinutes int `json:"waiting_minutes"`
}

// GetQueue handles GET /api/docks/:id/queue.
func (h *Handler) GetQueue(c *gin.Context) {
	dockID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.engine.GetQueue(c.Request.Context(), dockID)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	entries := make([]queueEntryResponse, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		entries = append(entries, queueEntryResponse{
			QueueEntry:     entry,
			WaitingMinutes: evaluator.WaitingMinutes(now, entry.ScheduledArrival),
		})
	}
	c.JSON(http.StatusOK, gin.H{"dock_id": snapshot.DockID, "entries": entries})
}

// PostReorder handles POST /api/queue/reorder.
func (h *Handler) PostReorder(c *gin.Context) {
	var intent engine.ReorderIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.engine.Reorder(c.Request.Context(), intent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
