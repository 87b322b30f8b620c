package protocolmux

import (
	"context"

	"github.com/FluffyKebab/mothra/transport"
)

// Handler serves a conn once protoID has been agreed on.
type Handler func(protoID string, c transport.Conn) error

type Muxer interface {
	RegisterProtocol(protoID string, handler Handler)
	Protocols() []string
	SelectProtocol(ctx context.Context, protoID string, c transport.Conn) error
	SelectOneOf(ctx context.Context, protoIDs []string, c transport.Conn) (string, error)
	HandleConn(transport.Conn) error
}
