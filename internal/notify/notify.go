// Package notify hands accepted booking changes to the notification layer.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/avstrong/staytrust/internal/logger"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	Status     string    `json:"status"`
	GuestID    string    `json:"guest_id"`
	HostID     string    `json:"host_id"`
	ActorID    string    `json:"actor_id"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher only writes events to the service log.
type LogPublisher struct {
	l *logger.Logger
}

func NewLogPublisher(l *logger.Logger) *LogPublisher {
	return &LogPublisher{l: l}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.l.LogInfo("type: event, event: %s, booking: %s, status: %s, actor: %s", event.Type, event.BookingID, event.Status, event.ActorID)

	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	//nolint:exhaustruct
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *Recorder) Close() error {
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

// RoutingKey is the topic/routing key an event is published under.
func RoutingKey(event Event) string {
	return "booking." + event.Type
}
