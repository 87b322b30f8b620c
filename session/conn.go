package session

import (
	"sync"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
	"github.com/FluffyKebab/mothra/wire"
	"golang.org/x/time/rate"
)

// peerConn is the single connection kept to a peer. Frames are written by
// one writer goroutine fed from a bounded queue, so sending never blocks.
type peerConn struct {
	id       peer.ID
	addr     string
	outbound bool
	protocol string

	conn    transport.Conn
	queue   chan wire.Frame
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func newPeerConn(c transport.Conn, id peer.ID, addr, protocol string, outbound bool, queueSize int, limiter *rate.Limiter) *peerConn {
	return &peerConn{
		id:       id,
		addr:     addr,
		outbound: outbound,
		protocol: protocol,
		conn:     c,
		queue:    make(chan wire.Frame, queueSize),
		limiter:  limiter,
		done:     make(chan struct{}),
	}
}

func (pc *peerConn) send(f wire.Frame) error {
	select {
	case <-pc.done:
		return errConnClosed
	default:
	}

	select {
	case pc.queue <- f:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (pc *peerConn) writeLoop() error {
	for {
		select {
		case f := <-pc.queue:
			err := wire.WriteFrame(pc.conn, f)
			if err != nil {
				pc.close()
				return err
			}
		case <-pc.done:
			return nil
		}
	}
}

// allow reports whether an inbound frame is within the rate limit.
func (pc *peerConn) allow() bool {
	return pc.limiter == nil || pc.limiter.Allow()
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() {
		close(pc.done)
		pc.conn.Close()
	})
}

// dialedBy is the id of the peer that opened the connection.
func (pc *peerConn) dialedBy(local peer.ID) peer.ID {
	if pc.outbound {
		return local
	}
	return pc.id
}
