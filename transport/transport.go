package transport

import (
	"context"
	"io"
	"time"

	"github.com/FluffyKebab/mothra/peer"
)

type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

type conn struct {
	io.Reader
	io.Writer
	io.Closer
}

func NewConn(r io.Reader, w io.Writer, c io.Closer) Conn {
	return conn{r, w, c}
}

type RemoteAddrHaver interface {
	RemoteAddr() string
}

type RemoteIDHaver interface {
	RemoteID() peer.ID
}

// Deadliner is implemented by conns that support read and write deadlines.
type Deadliner interface {
	SetDeadline(time.Time) error
}

type Transport interface {
	Dial(context.Context, peer.Peer) (Conn, error)
	// Listen binds before returning, so a nil error means ListenAddr is
	// valid and peers can connect.
	Listen(ctx context.Context) (<-chan Conn, <-chan error, error)
	ListenAddr() string
}

// SetDeadline sets the deadline on c if it supports one.
func SetDeadline(c Conn, t time.Time) error {
	d, ok := c.(Deadliner)
	if !ok {
		return nil
	}
	return d.SetDeadline(t)
}
