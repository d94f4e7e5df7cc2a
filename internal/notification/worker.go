package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"dock-queue-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one alert to deliver to every subscriber of a warehouse.
type Job struct {
	WarehouseID int64  `json:"warehouse_id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			log.Printf("Worker %d processing alert for warehouse %d", id, job.WarehouseID)
			wp.sendNotificationsForWarehouse(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(warehouseID int64, title, body string) {
	wp.jobs <- Job{WarehouseID: warehouseID, Title: title, Body: body}
}

// sendNotificationsForWarehouse fetches subscriptions and sends the alert to
// every endpoint watching the warehouse.
func (wp *WorkerPool) sendNotificationsForWarehouse(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_warehouse_mapping swm ON swm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("swm.warehouse_id = ?", job.WarehouseID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for warehouse %d: %v", job.WarehouseID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for warehouse %d", len(subscriptions), job.WarehouseID)

	payload, err := json.Marshal(map[string]string{
		"title": job.Title,
		"body":  job.Body,
	})
	if err != nil {
		log.Printf("Error marshaling notification payload: %v", err)
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
