// Package events implements the scheduler's event bus: an in-process
// broker that external watchers (internal/statusapi's websocket stream)
// subscribe to, optionally mirrored onto github.com/redis/go-redis/v9
// pub/sub so other processes on the cluster can watch cycle activity too.
// The in-process Broker is adapted from the teacher's pkg/events.Broker;
// the redis fan-out is pulled from KhryptorGraphics-OllamaMax's stack.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Type names a cycle-lifecycle event kind (spec §4.K cycle phases, §4.I
// preemption, §4.J reservation confirmation).
type Type string

const (
	TypeCycleStarted       Type = "cycle.started"
	TypeCycleCompleted     Type = "cycle.completed"
	TypeJobRun             Type = "job.run"
	TypeJobCanNotRun       Type = "job.can_not_run"
	TypeJobPreempted       Type = "job.preempted"
	TypeJobBackfilled      Type = "job.backfilled"
	TypeReservationConfirm Type = "reservation.confirmed"
	TypeReservationFailed  Type = "reservation.failed"
)

// Event is one published occurrence.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel a Broker delivers events on.
type Subscriber chan *Event

// Broker fans published events out to every active subscriber, dropping
// an event for a subscriber whose channel is full rather than blocking
// the publisher (teacher's pkg/events.Broker non-blocking broadcast).
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}

	redis     *redis.Client
	redisChan string
}

// NewBroker creates a broker with no redis fan-out configured.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// WithRedis attaches a redis client that every published event is also
// published to on channel name (go-redis v9 Publish), so external
// processes can watch cycles without a direct websocket connection.
func (b *Broker) WithRedis(client *redis.Client, channel string) *Broker {
	b.redis = client
	b.redisChan = channel
	return b
}

// Start begins the broker's dispatch loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts the dispatch loop; subscribers are left to be drained and
// closed individually via Unsubscribe.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber with a small buffer so a slow
// reader doesn't stall recent history.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues event for dispatch, stamping Timestamp if unset.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
			b.publishRedis(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

func (b *Broker) publishRedis(event *Event) {
	if b.redis == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.redis.Publish(ctx, b.redisChan, data)
}

// SubscriberCount reports the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// NewRedisClient builds a go-redis client from an addr/password/db triple,
// the shape cmd/qsched wires from pkg/config.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// PingRedis verifies connectivity to the redis server behind client,
// wrapping any failure.
func PingRedis(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("events: pinging redis: %w", err)
	}
	return nil
}
