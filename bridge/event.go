package bridge

import (
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
)

type EventKind int

const (
	PeerDiscovered EventKind = iota
	GossipReceived
	RPCReceived
	RPCTimedOut
)

func (k EventKind) String() string {
	switch k {
	case PeerDiscovered:
		return "peer_discovered"
	case GossipReceived:
		return "gossip_received"
	case RPCReceived:
		return "rpc_received"
	case RPCTimedOut:
		return "rpc_timed_out"
	default:
		return "unknown"
	}
}

// Event is one notification waiting to be delivered to the handler. Peer is
// the peer the event is about; for gossip it is the peer the message was
// received from.
type Event struct {
	Kind      EventKind
	Peer      peer.ID
	Topic     string
	Method    string
	Direction rpc.Direction
	Data      []byte
}

func NewPeerDiscovered(p peer.ID) Event {
	return Event{Kind: PeerDiscovered, Peer: p}
}

func NewGossip(topic string, source peer.ID, data []byte) Event {
	return Event{Kind: GossipReceived, Topic: topic, Peer: source, Data: data}
}

func NewRPC(method string, dir rpc.Direction, p peer.ID, data []byte) Event {
	return Event{Kind: RPCReceived, Method: method, Direction: dir, Peer: p, Data: data}
}

func NewRPCTimeout(method string, p peer.ID) Event {
	return Event{Kind: RPCTimedOut, Method: method, Peer: p}
}

func (e Event) deliver(h Handler) bool {
	switch e.Kind {
	case PeerDiscovered:
		h.OnPeerDiscovered(e.Peer)
	case GossipReceived:
		h.OnGossip(e.Topic, e.Data)
	case RPCReceived:
		h.OnRPC(e.Method, e.Direction, e.Peer, e.Data)
	case RPCTimedOut:
		th, ok := h.(TimeoutHandler)
		if !ok {
			return false
		}
		th.OnRPCTimeout(e.Method, e.Peer)
	default:
		return false
	}
	return true
}
