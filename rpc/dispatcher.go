package rpc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/google/uuid"
)

var (
	ErrNoPendingRequest = errors.New("no pending request")
	ErrTimedOut         = errors.New("request timed out")
)

type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Response:
		return "response"
	default:
		return "unknown"
	}
}

// Exchange is one side of a request/response pair.
type Exchange struct {
	ID        string
	Method    string
	Peer      peer.ID
	Direction Direction
	Created   time.Time
	Deadline  time.Time

	seq uint64
}

type key struct {
	method string
	peer   peer.ID
}

type entry struct {
	Exchange
	timer *time.Timer
}

// Dispatcher keeps the outbound requests waiting for a response and the
// inbound requests waiting for the local application to respond. Both
// tables are keyed by (method, peer) and ordered oldest first.
type Dispatcher struct {
	mu       sync.Mutex
	outbound map[key][]*entry
	inbound  map[key][]*entry
	closed   bool
	seq      uint64

	timeout       time.Duration
	inboundExpiry time.Duration
	onTimeout     func(Exchange)
	onExpire      func(Exchange)

	stray    atomic.Int64
	timedOut atomic.Int64
	expired  atomic.Int64
}

func NewDispatcher(opts ...Option) *Dispatcher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Dispatcher{
		outbound:      make(map[key][]*entry),
		inbound:       make(map[key][]*entry),
		timeout:       o.timeout,
		inboundExpiry: o.inboundExpiry,
		onTimeout:     o.onTimeout,
		onExpire:      o.onExpire,
	}
}

// OpenOutbound creates a pending exchange for a request about to be sent.
func (d *Dispatcher) OpenOutbound(method string, p peer.ID) (Exchange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Exchange{}, errDispatcherClosed
	}

	now := time.Now()
	d.seq++
	e := &entry{Exchange: Exchange{
		seq:       d.seq,
		ID:        uuid.New().String(),
		Method:    method,
		Peer:      p,
		Direction: Request,
		Created:   now,
		Deadline:  now.Add(d.timeout),
	}}
	k := key{method, p}
	d.outbound[k] = append(d.outbound[k], e)

	e.timer = time.AfterFunc(d.timeout, func() {
		if d.remove(d.outbound, e) {
			d.timedOut.Add(1)
			if d.onTimeout != nil {
				d.onTimeout(e.Exchange)
			}
		}
	})

	return e.Exchange, nil
}

// Rollback removes an exchange created by OpenOutbound that never made it
// onto the network.
func (d *Dispatcher) Rollback(ex Exchange) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.discard(d.outbound, ex)
}

// DiscardInbound forgets an inbound request the local application will
// never see, for example because its event could not be queued.
func (d *Dispatcher) DiscardInbound(ex Exchange) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.discard(d.inbound, ex)
}

func (d *Dispatcher) discard(table map[key][]*entry, ex Exchange) bool {
	k := key{ex.Method, ex.Peer}
	for i, e := range table[k] {
		if e.seq == ex.seq {
			e.timer.Stop()
			table[k] = removeAt(table[k], i)
			d.cleanup(table, k)
			return true
		}
	}
	return false
}

// CompleteOutbound matches an inbound response to a pending request. A
// response carrying an id completes the pending exchange for (method, peer)
// with that id; one without an id completes the oldest. A response with
// nothing to match, including one whose id already timed out, is counted
// as stray.
func (d *Dispatcher) CompleteOutbound(method string, p peer.ID, id string) (Exchange, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{method, p}
	queue := d.outbound[k]

	pos := -1
	switch {
	case len(queue) == 0:
	case id == "":
		pos = 0
	default:
		for i, e := range queue {
			if e.ID == id {
				pos = i
				break
			}
		}
	}
	if pos < 0 {
		d.stray.Add(1)
		return Exchange{}, false
	}

	e := queue[pos]
	e.timer.Stop()
	d.outbound[k] = removeAt(queue, pos)
	d.cleanup(d.outbound, k)

	ex := e.Exchange
	ex.Direction = Response
	return ex, true
}

// TrackInbound records a request received from a peer that the local
// application is expected to answer.
func (d *Dispatcher) TrackInbound(method string, p peer.ID, id string) (Exchange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Exchange{}, errDispatcherClosed
	}

	now := time.Now()
	d.seq++
	e := &entry{Exchange: Exchange{
		seq:       d.seq,
		ID:        id,
		Method:    method,
		Peer:      p,
		Direction: Request,
		Created:   now,
		Deadline:  now.Add(d.inboundExpiry),
	}}
	k := key{method, p}
	d.inbound[k] = append(d.inbound[k], e)

	e.timer = time.AfterFunc(d.inboundExpiry, func() {
		if d.remove(d.inbound, e) {
			d.expired.Add(1)
			if d.onExpire != nil {
				d.onExpire(e.Exchange)
			}
		}
	})

	return e.Exchange, nil
}

// TakeInbound removes and returns the oldest request from p for method that
// is still awaiting a response.
func (d *Dispatcher) TakeInbound(method string, p peer.ID) (Exchange, error) {
	return d.TakeInboundIf(method, p, nil)
}

// TakeInboundIf is TakeInbound, except that the request is only removed
// when check accepts it. An error from check is returned as is.
func (d *Dispatcher) TakeInboundIf(method string, p peer.ID, check func(Exchange) error) (Exchange, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{method, p}
	queue := d.inbound[k]
	if len(queue) == 0 {
		return Exchange{}, ErrNoPendingRequest
	}

	e := queue[0]
	if check != nil {
		err := check(e.Exchange)
		if err != nil {
			return Exchange{}, err
		}
	}
	e.timer.Stop()
	d.inbound[k] = removeAt(queue, 0)
	d.cleanup(d.inbound, k)

	return e.Exchange, nil
}

// HasInbound reports whether a request from p for method awaits a response.
func (d *Dispatcher) HasInbound(method string, p peer.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.inbound[key{method, p}]) > 0
}

func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return count(d.outbound)
}

func (d *Dispatcher) Awaiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return count(d.inbound)
}

func (d *Dispatcher) Stray() int64 {
	return d.stray.Load()
}

func (d *Dispatcher) TimedOut() int64 {
	return d.timedOut.Load()
}

func (d *Dispatcher) Expired() int64 {
	return d.expired.Load()
}

// Close stops all timers and forgets every exchange.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, table := range []map[key][]*entry{d.outbound, d.inbound} {
		for k, queue := range table {
			for _, e := range queue {
				e.timer.Stop()
			}
			delete(table, k)
		}
	}
}

func (d *Dispatcher) remove(table map[key][]*entry, target *entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{target.Method, target.Peer}
	for i, e := range table[k] {
		if e == target {
			table[k] = removeAt(table[k], i)
			d.cleanup(table, k)
			return true
		}
	}
	return false
}

func (d *Dispatcher) cleanup(table map[key][]*entry, k key) {
	if len(table[k]) == 0 {
		delete(table, k)
	}
}

func removeAt(queue []*entry, i int) []*entry {
	copy(queue[i:], queue[i+1:])
	queue[len(queue)-1] = nil
	return queue[:len(queue)-1]
}

func count(table map[key][]*entry) int {
	n := 0
	for _, queue := range table {
		n += len(queue)
	}
	return n
}
