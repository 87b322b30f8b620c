package bridge

import (
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
)

// Handler receives the events observed by a session. All methods are called
// from a single goroutine, one event at a time, in the order the events were
// observed. The data slices are owned by the handler.
type Handler interface {
	OnPeerDiscovered(p peer.ID)
	OnGossip(topic string, data []byte)
	OnRPC(method string, dir rpc.Direction, p peer.ID, data []byte)
}

// TimeoutHandler is implemented by handlers that want to know when an
// outbound request went unanswered.
type TimeoutHandler interface {
	OnRPCTimeout(method string, p peer.ID)
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields ignore the
// event.
type HandlerFuncs struct {
	PeerDiscovered func(p peer.ID)
	Gossip         func(topic string, data []byte)
	RPC            func(method string, dir rpc.Direction, p peer.ID, data []byte)
	RPCTimeout     func(method string, p peer.ID)
}

var (
	_ Handler        = HandlerFuncs{}
	_ TimeoutHandler = HandlerFuncs{}
)

func (h HandlerFuncs) OnPeerDiscovered(p peer.ID) {
	if h.PeerDiscovered != nil {
		h.PeerDiscovered(p)
	}
}

func (h HandlerFuncs) OnGossip(topic string, data []byte) {
	if h.Gossip != nil {
		h.Gossip(topic, data)
	}
}

func (h HandlerFuncs) OnRPC(method string, dir rpc.Direction, p peer.ID, data []byte) {
	if h.RPC != nil {
		h.RPC(method, dir, p, data)
	}
}

func (h HandlerFuncs) OnRPCTimeout(method string, p peer.ID) {
	if h.RPCTimeout != nil {
		h.RPCTimeout(method, p)
	}
}
