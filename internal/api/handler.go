package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *engine.Engine
	reader  *availability.CachedReader
	calc    *availability.Calculator
	bus     events.Bus
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, eng *engine.Engine, reader *availability.CachedReader, calc *availability.Calculator, bus events.Bus, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  eng,
		reader:  reader,
		calc:    calc,
		bus:     bus,
		webpush: webpushOptions,
	}
}

// respondError maps engine errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrInvalidSwap),
		errors.Is(err, engine.ErrCapacityConflict):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrDockUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, availability.ErrNoSlot):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrIntegrity):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
