package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BindFlags registers the node flags on fs, using the values in c as
// defaults and writing parsed values back into c.
func BindFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.DataDir, "datadir", c.DataDir, "The location of the data directory to use")
	fs.StringVar(&c.ListenAddress, "listen-address", c.ListenAddress, "The address the client will listen for connections on")
	fs.StringVar(&c.Port, "port", c.Port, "The TCP port to listen on")
	fs.IntVar(&c.MaxPeers, "maxpeers", c.MaxPeers, "The maximum number of peers")
	fs.StringSliceVar(&c.BootNodes, "boot-nodes", c.BootNodes, "Addresses of peers to connect to on startup (comma-separated)")
	fs.StringSliceVar(&c.Topics, "topics", c.Topics, "Gossip topics to subscribe to on startup (comma-separated)")
	fs.StringSliceVar(&c.ProtocolVersions, "protocol-versions", c.ProtocolVersions, "Protocol versions, most preferred first")
	fs.StringVar(&c.DebugLevel, "debug-level", c.DebugLevel, "Log level: trace, debug, info, warn, error, crit")

	fs.DurationVar(&c.StartupTimeout, "startup-timeout", c.StartupTimeout, "How long start waits for boot nodes")
	fs.DurationVar(&c.RPCTimeout, "rpc-timeout", c.RPCTimeout, "How long an outbound request waits for its response")
	fs.DurationVar(&c.InboundRequestExpiry, "inbound-request-expiry", c.InboundRequestExpiry, "How long an inbound request waits for a local response")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "Interval between peer health checks")
	fs.IntVar(&c.WarnPeerCount, "warn-peer-count", c.WarnPeerCount, "Warn when connected to this many peers or fewer")
	fs.DurationVar(&c.PeerTimeout, "peer-timeout", c.PeerTimeout, "Disconnect peers silent for this long (0 disables)")

	fs.IntVar(&c.EventBufferSize, "event-buffer", c.EventBufferSize, "Events buffered for the handler before dropping")
	fs.IntVar(&c.SendQueueSize, "send-queue", c.SendQueueSize, "Frames buffered per peer before sends fail")
	fs.IntVar(&c.MaxMessageSize, "max-message-size", c.MaxMessageSize, "Largest accepted frame in bytes")
	fs.DurationVar(&c.SeenTTL, "seen-ttl", c.SeenTTL, "How long gossip message ids are remembered")
	fs.Float64Var(&c.InboundRate, "inbound-rate", c.InboundRate, "Frames per second accepted from each peer (0 disables)")
	fs.IntVar(&c.InboundBurst, "inbound-burst", c.InboundBurst, "Burst size of the inbound rate limit")
	fs.IntVar(&c.GossipFanout, "gossip-fanout", c.GossipFanout, "Subscribers each gossip message is forwarded to (0 for all)")

	fs.StringSliceVar(&c.EtcdEndpoints, "etcd-endpoints", c.EtcdEndpoints, "etcd endpoints used for peer discovery")
	fs.StringVar(&c.EtcdPrefix, "etcd-prefix", c.EtcdPrefix, "etcd key prefix nodes register under")
	fs.DurationVar(&c.EtcdLeaseTTL, "etcd-lease-ttl", c.EtcdLeaseTTL, "TTL of the etcd registration lease")

	fs.StringVar(&c.MetricsAddress, "metrics-address", c.MetricsAddress, "Address to serve Prometheus metrics on")
}

// FromArgs parses a flat argument list into a validated Config. A leading
// program name is ignored.
func FromArgs(args []string) (Config, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}

	c := Default()
	fs := pflag.NewFlagSet("mothra", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	BindFlags(fs, &c)

	err := fs.Parse(args)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fs.Args())
	}

	err = c.Validate()
	if err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseLevel maps a debug level name to a zap level. trace is logged as
// debug and crit as error.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zapcore.DebugLevel, nil
	case "crit":
		return zapcore.ErrorLevel, nil
	}

	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("%w: debug level %q", ErrInvalidConfig, level)
	}
	return l, nil
}

// NewLogger builds the production logger at the given debug level.
func NewLogger(level string) (*zap.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(l)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zc.Build()
}
