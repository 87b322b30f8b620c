package session

import (
	"crypto/rsa"

	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/discovery"
	"go.uber.org/zap"
)

type Option func(*options)

type options struct {
	logger     *zap.Logger
	handler    bridge.Handler
	discoverer discovery.Discoverer
	key        *rsa.PrivateKey
}

func defaultOptions() *options {
	return &options{
		logger: zap.NewNop(),
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHandler registers h before the session starts, so no early event is
// held back.
func WithHandler(h bridge.Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithDiscoverer replaces the discoverer built from the etcd settings of
// the config.
func WithDiscoverer(d discovery.Discoverer) Option {
	return func(o *options) {
		o.discoverer = d
	}
}

// WithKey sets the node identity key instead of loading it from the data
// directory.
func WithKey(k *rsa.PrivateKey) Option {
	return func(o *options) {
		o.key = k
	}
}
