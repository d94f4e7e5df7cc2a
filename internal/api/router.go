package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"dock-queue-backend/config"
	"dock-queue-backend/internal/availability"
	"dock-queue-backend/internal/engine"
	"dock-queue-backend/internal/events"
	"dock-queue-backend/internal/mw"
	"dock-queue-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(srv *config.ServerConfig, s store.Store, eng *engine.Engine, reader *availability.CachedReader, calc *availability.Calculator, bus events.Bus, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, eng, reader, calc, bus, webpushOptions)

	limit := rate.Limit(10)
	if srv != nil && srv.RateLimitPerSec > 0 {
		limit = rate.Limit(srv.RateLimitPerSec)
	}
	burst := int(limit)
	if burst < 5 {
		burst = 5
	}
	rateLimiter := mw.RateLimiter(limit, burst)

	// Short response cache for read endpoints; queue state moves too fast for
	// anything longer, and any write flushes it.
	ttl := 10 * time.Second
	if srv != nil && srv.CacheTTLSeconds > 0 {
		ttl = time.Duration(srv.CacheTTLSeconds) * time.Second
	}
	cacheStore := cache.New(ttl, 6*ttl)
	caching := mw.Cache(cacheStore, ttl, "/events", "/queue", "/bookings", "/subscriptions")

	api := r.Group("/api")
	api.Use(rateLimiter, caching)
	{
		api.GET("/warehouses", handler.GetWarehouses)
		api.GET("/warehouses/:id/docks", handler.GetDocks)
		api.POST("/warehouses/:id/docks", handler.PostDock)
		api.GET("/warehouses/:id/busy-rules", handler.GetBusyRules)
		api.POST("/warehouses/:id/busy-rules", handler.PostBusyRule)
		api.GET("/warehouses/:id/events", handler.GetEvents)

		api.PATCH("/docks/:id", handler.PatchDock)
		api.DELETE("/busy-rules/:id", handler.DeleteBusyRule)
		api.GET("/docks/:id/queue", handler.GetQueue)
		api.GET("/docks/:id/next-slot", handler.GetNextSlot)

		api.POST("/bookings", handler.PostBooking)
		api.GET("/bookings/:id", handler.GetBooking)
		api.POST("/bookings/:id/transition", handler.PostTransition)
		api.GET("/bookings/:id/traces", handler.GetTraces)
		api.POST("/queue/reorder", handler.PostReorder)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
