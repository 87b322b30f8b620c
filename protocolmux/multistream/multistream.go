package multistream

import (
	"context"
	"io"
	"time"

	"github.com/FluffyKebab/mothra/protocolmux"
	"github.com/FluffyKebab/mothra/transport"
	ms "github.com/multiformats/go-multistream"
)

type Muxer struct {
	mux *ms.MultistreamMuxer[string]
}

var _ protocolmux.Muxer = Muxer{}

func NewMuxer() Muxer {
	return Muxer{
		mux: ms.NewMultistreamMuxer[string](),
	}
}

func (m Muxer) RegisterProtocol(protoID string, handler protocolmux.Handler) {
	m.mux.AddHandler(protoID, func(proto string, rwc io.ReadWriteCloser) error {
		return handler(proto, rwc)
	})
}

func (m Muxer) Protocols() []string {
	return m.mux.Protocols()
}

func (m Muxer) SelectProtocol(ctx context.Context, protoID string, c transport.Conn) error {
	defer withDeadline(ctx, c)()
	return ms.SelectProtoOrFail[string](protoID, c)
}

// SelectOneOf proposes protoIDs in order and returns the first one the
// remote side supports.
func (m Muxer) SelectOneOf(ctx context.Context, protoIDs []string, c transport.Conn) (string, error) {
	defer withDeadline(ctx, c)()
	return ms.SelectOneOf[string](protoIDs, c)
}

func (m Muxer) HandleConn(c transport.Conn) error {
	return m.mux.Handle(c)
}

// withDeadline applies the deadline of ctx to c for the duration of a
// negotiation and returns the function clearing it.
func withDeadline(ctx context.Context, c transport.Conn) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() {}
	}
	if transport.SetDeadline(c, deadline) != nil {
		return func() {}
	}
	return func() {
		transport.SetDeadline(c, time.Time{})
	}
}
