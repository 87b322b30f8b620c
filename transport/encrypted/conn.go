package encrypted

import (
	"io"
	"sync"
	"time"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
)

// Conn is an authenticated conn whose traffic is encrypted with one key per
// direction.
type Conn struct {
	raw      transport.Conn
	r        io.Reader
	w        io.Writer
	writeMu  sync.Mutex
	remoteID peer.ID
}

var (
	_ transport.Conn            = &Conn{}
	_ transport.RemoteAddrHaver = &Conn{}
	_ transport.RemoteIDHaver   = &Conn{}
	_ transport.Deadliner       = &Conn{}
)

func (c *Conn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.w.Write(p)
}

func (c *Conn) Close() error {
	return c.raw.Close()
}

func (c *Conn) RemoteAddr() string {
	if remoteHaver, ok := c.raw.(transport.RemoteAddrHaver); ok {
		return remoteHaver.RemoteAddr()
	}
	return ""
}

func (c *Conn) RemoteID() peer.ID {
	return c.remoteID
}

func (c *Conn) SetDeadline(t time.Time) error {
	return transport.SetDeadline(c.raw, t)
}
