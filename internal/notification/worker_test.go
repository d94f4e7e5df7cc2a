package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dock-queue-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	// Dispatch a job
	wp.Dispatch(123, "Dock alert: overdue", "booking WH1-20260302-001 is 45 minutes overdue")

	// Check if the job is in the channel
	select {
	case job := <-wp.jobs:
		assert.Equal(t, int64(123), job.WarehouseID)
		assert.Equal(t, "Dock alert: overdue", job.Title)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	// --- Test Case: One subscription found, notification sent ---
	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		warehouseID := int64(1)
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		// Set up the mock sender
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.JSONEq(t, `{"title":"Dock alert: overdue","body":"booking is late"}`, string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		// Mock database query
		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN .*subscription_warehouse_mapping.*WHERE .*swm\.warehouse_id = \$1`).
			WithArgs(warehouseID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		wp.Dispatch(warehouseID, "Dock alert: overdue", "booking is late")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: Subscription expired, should be deleted ---
	t.Run("deletes expired subscription", func(t *testing.T) {
		warehouseID := int64(2)
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		// Set up the mock sender to return a 410 Gone status
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN .*subscription_warehouse_mapping.*WHERE .*swm\.warehouse_id = \$1`).
			WithArgs(warehouseID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		// Expect the delete operation
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(warehouseID, "Dock alert: sla_breach", "unloading ran long")

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: No subscribers, nothing sent ---
	t.Run("does nothing without subscribers", func(t *testing.T) {
		sent := false
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				sent = true
				return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN .*subscription_warehouse_mapping.*WHERE .*swm\.warehouse_id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		wp.Dispatch(3, "Dock alert: overdue", "nobody is listening")
		time.Sleep(100 * time.Millisecond)

		assert.False(t, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
