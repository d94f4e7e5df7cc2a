package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetEvents handles GET /api/warehouses/:id/events, an SSE stream of
// queue_changed and alert events for the warehouse. The stream sends a
// heartbeat comment every 30 seconds so proxies keep the connection open.
func (h *Handler) GetEvents(c *gin.Context) {
	warehouseID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetWarehouse(c.Request.Context(), warehouseID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "warehouse not found"})
		return
	}

	sub := h.bus.Subscribe(warehouseID)
	defer h.bus.Unsubscribe(warehouseID, sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
