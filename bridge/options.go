package bridge

import (
	"github.com/FluffyKebab/mothra/peer"
	"go.uber.org/zap"
)

const _defaultCapacity = 1024

type Option func(*options)

type options struct {
	capacity int
	logger   *zap.Logger
	peers    PeerChecker
}

func defaultOptions() *options {
	return &options{
		capacity: _defaultCapacity,
		logger:   zap.NewNop(),
	}
}

// WithCapacity bounds the number of events waiting for delivery.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPeerChecker makes the bridge drop events about peers the checker no
// longer knows at the moment they are delivered.
func WithPeerChecker(c PeerChecker) Option {
	return func(o *options) {
		o.peers = c
	}
}

// PeerChecker is satisfied by *peer.Registry.
type PeerChecker interface {
	Contains(peer.ID) bool
}

var _ PeerChecker = (*peer.Registry)(nil)
