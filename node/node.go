package node

import (
	"context"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/protocolmux"
	"github.com/FluffyKebab/mothra/transport"
)

// Node accepts conns from a transport and negotiates which registered
// protocol serves each of them.
type Node interface {
	ID() peer.ID
	Transport() transport.Transport

	SetConnHandler(handler func(transport.Conn) error)
	RegisterProtocol(protoID string, handler protocolmux.Handler)

	Run(context.Context) (<-chan error, error)
	DialPeer(ctx context.Context, p peer.Peer) (transport.Conn, error)
	DialPeerUsingProtocol(ctx context.Context, protoIDs []string, p peer.Peer) (transport.Conn, string, error)
}
