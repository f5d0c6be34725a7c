// Package notify fans push notifications out to the browsers of a user.
package notify

import (
	"context"
	"sync"

	"raseed/internal/amqp"
	"raseed/internal/log"
)

const subscriberBuffer = 8

// Observer is told how many subscribers each notification reached.
type Observer interface {
	ObserveNotification(delivered, dropped int)
}

type subscriber struct {
	userID string
	ch     chan amqp.Notification
}

// Hub keeps the open event streams per user. A subscriber that is not
// reading loses notifications instead of blocking the others.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*subscriber]struct{}
	observer Observer
	logger   *log.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(observer Observer, logger *log.Logger) *Hub {
	return &Hub{
		subs:     make(map[string]map[*subscriber]struct{}),
		observer: observer,
		logger:   logger.WithComponent(log.ComponentNotify),
		done:     make(chan struct{}),
	}
}

// Close ends every open stream. Call it when the server shuts down.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Done is closed by Close.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Subscribe registers a stream for userID. The returned cancel func must be
// called when the stream ends; it closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan amqp.Notification, func()) {
	s := &subscriber{userID: userID, ch: make(chan amqp.Notification, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], s)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers n to every stream of userID, or to every stream when
// userID is empty, and returns how many received it.
func (h *Hub) Publish(userID string, n amqp.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered, dropped := 0, 0
	send := func(set map[*subscriber]struct{}) {
		for s := range set {
			select {
			case s.ch <- n:
				delivered++
			default:
				dropped++
			}
		}
	}
	if userID == "" {
		for _, set := range h.subs {
			send(set)
		}
	} else {
		send(h.subs[userID])
	}

	if dropped > 0 {
		h.logger.Warn("Notification dropped for slow subscribers",
			log.FieldUserID, userID, "dropped", dropped)
	}
	if h.observer != nil {
		h.observer.ObserveNotification(delivered, dropped)
	}
	return delivered
}

// Subscribers counts the open streams of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Handle is an amqp.Handler feeding the hub.
func (h *Hub) Handle(ctx context.Context, userID string, msg *amqp.NotificationMessage) error {
	n := h.Publish(userID, msg.Notification)
	h.logger.DebugContext(ctx, "Notification fanned out",
		log.FieldUserID, userID, log.FieldSubscribers, n)
	return nil
}
