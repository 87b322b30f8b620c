// Package discovery finds the addresses of peers to connect to.
package discovery

import (
	"context"

	"github.com/FluffyKebab/mothra/peer"
)

type Discoverer interface {
	// Advertise makes the local node findable by other nodes.
	Advertise(ctx context.Context, id peer.ID, addr string) error
	// FindPeers streams peers until ctx is done or the source is exhausted.
	// Peers may be yielded more than once and may have an empty ID.
	FindPeers(ctx context.Context) (<-chan peer.Peer, error)
	Close() error
}

// Static yields a fixed list of addresses once.
type Static struct {
	addrs []string
}

var _ Discoverer = Static{}

func NewStatic(addrs []string) Static {
	return Static{addrs: addrs}
}

func (s Static) Advertise(context.Context, peer.ID, string) error {
	return nil
}

func (s Static) FindPeers(ctx context.Context) (<-chan peer.Peer, error) {
	peers := make(chan peer.Peer, len(s.addrs))
	for _, addr := range s.addrs {
		if addr == "" {
			continue
		}
		peers <- peer.New("", addr)
	}
	close(peers)
	return peers, nil
}

func (s Static) Close() error {
	return nil
}
