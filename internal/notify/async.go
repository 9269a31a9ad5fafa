package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Async hands events to a background worker. Notify never blocks: when the
// queue is full the event is dropped and logged.
type Async struct {
	next    Notifier
	queue   chan Event
	timeout time.Duration
	log     *logrus.Entry

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync starts a worker delivering to next with room for size queued events
func NewAsync(next Notifier, size int, log *logrus.Entry) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		next:    next,
		queue:   make(chan Event, size),
		timeout: 10 * time.Second,
		log:     log,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Notify queues event. It always returns nil.
func (a *Async) Notify(_ context.Context, event Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.WithField("kind", event.Kind).Warn("Notifier closed, event dropped")
		return nil
	}
	select {
	case a.queue <- event:
	default:
		a.log.WithFields(logrus.Fields{
			"kind":    event.Kind,
			"user_id": event.UserID,
		}).Warn("Notification queue full, event dropped")
	}
	return nil
}

// Close stops accepting events and waits until queued ones are delivered
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, event); err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"kind":    event.Kind,
				"user_id": event.UserID,
			}).Warn("Failed to deliver notification")
		}
		cancel()
	}
}
