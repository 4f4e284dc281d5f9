// Package bus fans artifact notifications out to preview viewers.
//
// Delivery is at-most-once and best effort. Publish never blocks: when a
// subscriber's buffer is full its oldest queued notification is discarded so
// the newest one always gets in. Subscribers see nothing published before
// they subscribed.
package bus

import (
	"sync"

	"github.com/housecat-inc/qtex/pkg/metrics"
)

const DefaultBuffer = 16

// Notification carries the path of the artifact that changed.
type Notification string

type Bus struct {
	buffer  int
	metrics metrics.Recorder
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
}

func New(buffer int, rec metrics.Recorder) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Bus{
		buffer:  buffer,
		metrics: rec,
		subs:    make(map[*Subscription]struct{}),
	}
}

func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.NotificationPublished()
	for s := range b.subs {
		select {
		case s.ch <- n:
			continue
		default:
		}
		// Full: make room by dropping the oldest. Only the publisher sends,
		// and it holds b.mu, so the retry cannot race another send.
		select {
		case <-s.ch:
			b.metrics.NotificationDropped()
		default:
		}
		select {
		case s.ch <- n:
		default:
			b.metrics.NotificationDropped()
		}
	}
}

func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan Notification, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	b.metrics.SubscribersChanged(n)
	return s
}

func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()
	close(s.ch)
	b.metrics.SubscribersChanged(n)
}

type Subscription struct {
	bus  *Bus
	ch   chan Notification
	once sync.Once
}

// C yields notifications in publish order. It is closed by Close.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.unsubscribe(s) })
}
