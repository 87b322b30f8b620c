package session

import (
	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/wire"
	"go.uber.org/zap"
)

func (s *Session) handleFrame(pc *peerConn, f wire.Frame) {
	switch f.Kind {
	case wire.KindSubscribe:
		s.router.AddSubscriber(f.Name, pc.id)
	case wire.KindUnsubscribe:
		s.router.RemoveSubscriber(f.Name, pc.id)
	case wire.KindGossip:
		s.handleGossip(pc, f)
	case wire.KindRequest:
		s.handleRequest(pc, f)
	case wire.KindResponse:
		s.handleResponse(pc, f)
	case wire.KindPing:
		pc.send(wire.Frame{Kind: wire.KindPong, ID: f.ID})
	case wire.KindPong:
	}
}

func (s *Session) handleGossip(pc *peerConn, f wire.Frame) {
	s.counters.gossipReceived.Add(1)
	if f.ID == "" {
		// Without an id the message cannot be de-duplicated and would loop.
		s.counters.gossipInvalid.Add(1)
		s.logger.Debug("dropping gossip without message id",
			zap.String("topic", f.Name),
			zap.String("peer", pc.id.ShortString()),
		)
		return
	}
	if s.router.Seen(f.ID) {
		s.counters.gossipDuplicate.Add(1)
		return
	}

	n := s.publish(f, pc.id)
	s.counters.gossipForwarded.Add(int64(n))

	s.router.RouteInbound(f.Name, f.Payload, pc.id)
}

func (s *Session) handleRequest(pc *peerConn, f wire.Frame) {
	s.counters.rpcReceived.Add(1)

	ex, err := s.rpc.TrackInbound(f.Name, pc.id, f.ID)
	if err != nil {
		return
	}

	err = s.bridge.Publish(bridge.NewRPC(f.Name, rpc.Request, pc.id, f.Payload))
	if err != nil {
		s.rpc.DiscardInbound(ex)
	}
}

func (s *Session) handleResponse(pc *peerConn, f wire.Frame) {
	s.counters.rpcReceived.Add(1)

	_, ok := s.rpc.CompleteOutbound(f.Name, pc.id, f.ID)
	if !ok {
		s.logger.Debug("dropping response without pending request",
			zap.String("method", f.Name),
			zap.String("peer", pc.id.ShortString()),
		)
		return
	}

	s.bridge.Publish(bridge.NewRPC(f.Name, rpc.Response, pc.id, f.Payload))
}
