// Package notify delivers the one-time departure prompt to the user's
// registered push endpoints when the sensor network sees their car leave.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"spotpark-client/internal/billing"
	"spotpark-client/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender implementation using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// DepartureEvent is one job for the pool: a car left its spot with the
// displayed timer frozen at ElapsedSeconds.
type DepartureEvent struct {
	BookingID      int64
	SpotNumber     string
	ElapsedSeconds int64
}

// departurePayload is the JSON body delivered to the push endpoint.
type departurePayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	BookingID int64  `json:"bookingId"`
}

// WorkerPool fans departure events out to all registered subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan DepartureEvent
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan DepartureEvent, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notify worker %d started", id)
	for {
		select {
		case event := <-wp.jobs:
			log.Printf("Notify worker %d processing departure for booking %d", id, event.BookingID)
			wp.sendDeparturePrompt(ctx, event)
		case <-ctx.Done():
			log.Printf("Notify worker %d shutting down", id)
			return
		}
	}
}

// NotifyDeparture queues a departure prompt. It satisfies the engine's
// DepartureNotifier interface.
func (wp *WorkerPool) NotifyDeparture(bookingID int64, spotNumber string, elapsedSeconds int64) {
	wp.jobs <- DepartureEvent{BookingID: bookingID, SpotNumber: spotNumber, ElapsedSeconds: elapsedSeconds}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan DepartureEvent {
	return wp.jobs
}

// sendDeparturePrompt fetches subscriptions and pushes the prompt to each.
func (wp *WorkerPool) sendDeparturePrompt(ctx context.Context, event DepartureEvent) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for booking %d: %v", event.BookingID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(departurePayload{
		Title:     "Your car left spot " + event.SpotNumber,
		Body:      "Timer frozen at " + billing.Clock(event.ElapsedSeconds) + ". View your receipt to settle, or re-park to resume.",
		BookingID: event.BookingID,
	})
	if err != nil {
		log.Printf("Error marshalling departure payload for booking %d: %v", event.BookingID, err)
		return
	}

	log.Printf("Sending %d departure prompts for booking %d", len(subscriptions), event.BookingID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification pushes to a single endpoint, pruning expired ones.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending departure prompt to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
