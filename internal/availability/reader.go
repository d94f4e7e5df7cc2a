package availability

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"dock-queue-backend/internal/model"
)

// Reader provides the dock and busy-rule records the calculator consults.
// These are staff-owned, read-mostly data; the engine never writes them.
type Reader interface {
	GetDock(ctx context.Context, id int64) (*model.Dock, error)
	ListBusyRules(ctx context.Context, warehouseID int64, dockID int64) ([]model.BusyTimeRule, error)
}

// CachedReader wraps a Reader with a short-TTL cache so operating hours and
// busy rules are re-read lazily instead of being cached for the process
// lifetime. Staff edits become visible after at most one TTL.
type CachedReader struct {
	inner Reader
	cache *gocache.Cache
}

// NewCachedReader creates a cached reader with the given TTL.
func NewCachedReader(inner Reader, ttl time.Duration) *CachedReader {
	return &CachedReader{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// GetDock returns the dock, from cache when fresh.
func (r *CachedReader) GetDock(ctx context.Context, id int64) (*model.Dock, error) {
	key := fmt.Sprintf("dock:%d", id)
	if v, found := r.cache.Get(key); found {
		return v.(*model.Dock), nil
	}
	dock, err := r.inner.GetDock(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, dock)
	return dock, nil
}

// ListBusyRules returns the dock's applicable rules, from cache when fresh.
func (r *CachedReader) ListBusyRules(ctx context.Context, warehouseID int64, dockID int64) ([]model.BusyTimeRule, error) {
	key := fmt.Sprintf("rules:%d:%d", warehouseID, dockID)
	if v, found := r.cache.Get(key); found {
		return v.([]model.BusyTimeRule), nil
	}
	rules, err := r.inner.ListBusyRules(ctx, warehouseID, dockID)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, rules)
	return rules, nil
}

// Invalidate drops every cached record. Called after staff CRUD on docks or
// busy rules.
func (r *CachedReader) Invalidate() {
	r.cache.Flush()
}
