package pubsub

import (
	"time"

	"go.uber.org/zap"
)

const _defaultSeenTTL = 2 * time.Minute

type Option func(*options)

type options struct {
	seenTTL time.Duration
	logger  *zap.Logger
}

func defaultOptions() *options {
	return &options{
		seenTTL: _defaultSeenTTL,
		logger:  zap.NewNop(),
	}
}

// WithSeenTTL sets how long a gossip message id is remembered.
func WithSeenTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.seenTTL = d
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
