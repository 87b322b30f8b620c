package rpc

import (
	"errors"
	"time"
)

var errDispatcherClosed = errors.New("dispatcher closed")

const (
	_defaultTimeout       = 10 * time.Second
	_defaultInboundExpiry = 30 * time.Second
)

type Option func(*options)

type options struct {
	timeout       time.Duration
	inboundExpiry time.Duration
	onTimeout     func(Exchange)
	onExpire      func(Exchange)
}

func defaultOptions() *options {
	return &options{
		timeout:       _defaultTimeout,
		inboundExpiry: _defaultInboundExpiry,
	}
}

// WithTimeout sets how long an outbound request waits for its response.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInboundExpiry sets how long an inbound request can wait for the local
// application to respond.
func WithInboundExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.inboundExpiry = d
		}
	}
}

// WithTimeoutHook is called, outside the dispatcher lock, for every outbound
// request that timed out.
func WithTimeoutHook(fn func(Exchange)) Option {
	return func(o *options) {
		o.onTimeout = fn
	}
}

func WithExpireHook(fn func(Exchange)) Option {
	return func(o *options) {
		o.onExpire = fn
	}
}
