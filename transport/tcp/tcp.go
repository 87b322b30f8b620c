package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
)

var ErrAlreadyListening = errors.New("already listening")

type Transport struct {
	host string
	port string

	mu         sync.Mutex
	listenAddr string
}

var _ transport.Transport = &Transport{}

// New returns a transport listening on host:port. An empty host listens on
// localhost and port "0" picks a free port.
func New(host, port string) *Transport {
	if host == "" {
		host = "localhost"
	}
	return &Transport{
		host: host,
		port: port,
	}
}

func (t *Transport) Listen(ctx context.Context) (<-chan transport.Conn, <-chan error, error) {
	t.mu.Lock()
	if t.listenAddr != "" {
		t.mu.Unlock()
		return nil, nil, ErrAlreadyListening
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(t.host, t.port))
	if err != nil {
		t.mu.Unlock()
		return nil, nil, err
	}
	t.listenAddr = listener.Addr().String()
	t.mu.Unlock()

	connChan := make(chan transport.Conn)
	errChan := make(chan error)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	go func() {
		defer close(connChan)
		defer close(errChan)

		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}

				select {
				case errChan <- err:
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case connChan <- connection{conn}:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	return connChan, errChan, nil
}

func (t *Transport) Dial(ctx context.Context, p peer.Peer) (transport.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", p.PublicAddr())
	if err != nil {
		return nil, err
	}
	return connection{c}, nil
}

// ListenAddr returns the bound address, or "" before Listen.
func (t *Transport) ListenAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.listenAddr
}
