package basic

import (
	"context"
	"fmt"

	"github.com/FluffyKebab/mothra/node"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/protocolmux"
	"github.com/FluffyKebab/mothra/protocolmux/multistream"
	"github.com/FluffyKebab/mothra/transport"
)

type Node struct {
	id            peer.ID
	transport     transport.Transport
	protocolMuxer protocolmux.Muxer
	connHandler   func(transport.Conn) error
}

var _ node.Node = &Node{}

func New(t transport.Transport, id peer.ID) *Node {
	return &Node{
		id:            id,
		transport:     t,
		protocolMuxer: multistream.NewMuxer(),
	}
}

// Run starts listening. Every accepted conn is served in its own goroutine.
// Errors from the transport and from serving conns are sent on the returned
// channel until ctx is done.
func (n *Node) Run(ctx context.Context) (<-chan error, error) {
	connChan, transportErrChan, err := n.transport.Listen(ctx)
	if err != nil {
		return nil, err
	}

	errChan := make(chan error)
	sendErr := func(err error) {
		select {
		case errChan <- err:
		case <-ctx.Done():
		}
	}

	go func() {
		for {
			select {
			case err, ok := <-transportErrChan:
				if !ok {
					return
				}
				sendErr(err)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case conn, ok := <-connChan:
				if !ok {
					return
				}
				go n.handleConn(conn, sendErr)
			case <-ctx.Done():
				return
			}
		}
	}()

	return errChan, nil
}

func (n *Node) handleConn(conn transport.Conn, sendErr func(error)) {
	if n.connHandler != nil {
		err := n.connHandler(conn)
		if err != nil {
			sendErr(err)
		}

		return
	}

	err := n.protocolMuxer.HandleConn(conn)
	if err != nil {
		conn.Close()
		sendErr(err)
	}
}

func (n *Node) DialPeer(ctx context.Context, p peer.Peer) (transport.Conn, error) {
	return n.transport.Dial(ctx, p)
}

// DialPeerUsingProtocol dials p and selects the first of protoIDs the peer
// supports.
func (n *Node) DialPeerUsingProtocol(ctx context.Context, protoIDs []string, p peer.Peer) (transport.Conn, string, error) {
	c, err := n.DialPeer(ctx, p)
	if err != nil {
		return nil, "", err
	}

	proto, err := n.protocolMuxer.SelectOneOf(ctx, protoIDs, c)
	if err != nil {
		c.Close()
		return nil, "", fmt.Errorf("selecting protocol with %s: %w", p.PublicAddr(), err)
	}
	return c, proto, nil
}

func (n *Node) ID() peer.ID {
	return n.id
}

func (n *Node) Transport() transport.Transport {
	return n.transport
}

// SetConnHandler bypasses protocol negotiation for accepted conns. It must
// be called before Run.
func (n *Node) SetConnHandler(handler func(transport.Conn) error) {
	n.connHandler = handler
}

// RegisterProtocol must be called before Run.
func (n *Node) RegisterProtocol(protoID string, handler protocolmux.Handler) {
	n.protocolMuxer.RegisterProtocol(protoID, handler)
}
