package transfer

import (
	"sync"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Bus fans transfer events out to subscribers. Publish never blocks:
// every subscriber owns an unbounded mailbox drained into its channel, so
// a slow subscriber delays only itself and nothing is dropped while it
// stays subscribed.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	box  *Queue[domain.TransferEvent]
	ch   chan domain.TransferEvent
	done chan struct{}
	once sync.Once
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe returns a channel of every event published from now on and a
// func that ends the subscription. The channel is closed once it ends.
func (b *Bus) Subscribe() (<-chan domain.TransferEvent, func()) {
	sub := &subscriber{
		box:  NewQueue[domain.TransferEvent](),
		ch:   make(chan domain.TransferEvent),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.pump()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev domain.TransferEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.box.Add(ev)
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.box.Close()
	})
}

func (s *subscriber) pump() {
	defer close(s.ch)
	for {
		ev, ok := s.box.Get()
		if !ok {
			return
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}
