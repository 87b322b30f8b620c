package bridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrHandlerOverflow = errors.New("handler queue full")
	ErrClosed          = errors.New("bridge closed")
)

// Bridge queues events and hands them to the registered handler from one
// dispatch goroutine. Publish never blocks: when the queue is full the event
// is dropped.
type Bridge struct {
	mu       sync.Mutex
	wake     *sync.Cond
	queue    []Event
	capacity int
	handler  Handler
	closed   bool

	// Held for the duration of every delivery and by Register, so a
	// replaced handler is never called once Register has returned.
	dispatchMu sync.Mutex

	peers  PeerChecker
	logger *zap.Logger

	dropped   atomic.Int64
	stale     atomic.Int64
	delivered atomic.Int64

	done chan struct{}
}

func New(opts ...Option) *Bridge {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	b := &Bridge{
		queue:    make([]Event, 0, min(o.capacity, 64)),
		capacity: o.capacity,
		peers:    o.peers,
		logger:   o.logger,
		done:     make(chan struct{}),
	}
	b.wake = sync.NewCond(&b.mu)

	go b.dispatch()
	return b
}

// Register replaces the active handler. A nil handler pauses delivery;
// events keep queueing up to the capacity. Register must not be called from
// inside a handler method.
func (b *Bridge) Register(h Handler) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
	b.wake.Broadcast()
}

// Publish queues the event for delivery.
func (b *Bridge) Publish(e Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if len(b.queue) >= b.capacity {
		b.mu.Unlock()
		b.dropped.Add(1)
		b.logger.Warn("event dropped, handler queue full",
			zap.Stringer("kind", e.Kind),
			zap.Int("capacity", b.capacity),
		)
		return ErrHandlerOverflow
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	b.wake.Signal()
	return nil
}

func (b *Bridge) dispatch() {
	defer close(b.done)

	for {
		e, ok := b.next()
		if !ok {
			return
		}
		b.deliver(e)
	}
}

func (b *Bridge) next() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.closed && (len(b.queue) == 0 || b.handler == nil) {
		b.wake.Wait()
	}
	if b.closed {
		return Event{}, false
	}

	e := b.queue[0]
	b.queue[0] = Event{}
	b.queue = b.queue[1:]
	return e, true
}

func (b *Bridge) deliver(e Event) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()

	if h == nil {
		// Deregistered between dequeue and delivery; hold on to the event.
		b.requeue(e)
		return
	}

	if b.peers != nil && e.Peer != "" && !b.peers.Contains(e.Peer) {
		b.stale.Add(1)
		b.logger.Debug("dropping event for disconnected peer",
			zap.Stringer("kind", e.Kind),
			zap.String("peer", e.Peer.ShortString()),
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", zap.Stringer("kind", e.Kind), zap.Any("panic", r))
		}
	}()

	if e.deliver(h) {
		b.delivered.Add(1)
	}
}

func (b *Bridge) requeue(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append([]Event{e}, b.queue...)
}

// Close stops the dispatch goroutine. Events still queued are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.queue = nil
	b.mu.Unlock()
	b.wake.Broadcast()

	<-b.done
}

func (b *Bridge) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bridge) Stale() int64 {
	return b.stale.Load()
}

func (b *Bridge) Delivered() int64 {
	return b.delivered.Load()
}
