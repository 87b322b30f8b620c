package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

const DefaultProtocolVersion = "/mothra/1.0.0"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// DataDir holds the node key. Empty keeps the key in memory only.
	DataDir       string
	ListenAddress string
	Port          string
	MaxPeers      int
	BootNodes     []string
	Topics        []string
	// ProtocolVersions are proposed in order when dialing and all accepted
	// when listening.
	ProtocolVersions []string
	DebugLevel       string

	StartupTimeout       time.Duration
	RPCTimeout           time.Duration
	InboundRequestExpiry time.Duration
	HeartbeatInterval    time.Duration
	WarnPeerCount        int
	// PeerTimeout is how long a peer may stay silent before it is
	// disconnected. Zero disables eviction.
	PeerTimeout time.Duration

	EventBufferSize int
	SendQueueSize   int
	MaxMessageSize  int
	SeenTTL         time.Duration

	// InboundRate limits the frames per second accepted from each peer.
	// Zero disables limiting.
	InboundRate  float64
	InboundBurst int
	// GossipFanout caps how many subscribers a gossip message is forwarded
	// to. Zero forwards to all of them.
	GossipFanout int

	EtcdEndpoints []string
	EtcdPrefix    string
	EtcdLeaseTTL  time.Duration

	// MetricsAddress serves /metrics when set.
	MetricsAddress string
}

func Default() Config {
	return Config{
		ListenAddress:        "127.0.0.1",
		Port:                 "9000",
		MaxPeers:             10,
		ProtocolVersions:     []string{DefaultProtocolVersion},
		DebugLevel:           "info",
		StartupTimeout:       10 * time.Second,
		RPCTimeout:           10 * time.Second,
		InboundRequestExpiry: 30 * time.Second,
		HeartbeatInterval:    10 * time.Second,
		WarnPeerCount:        1,
		PeerTimeout:          30 * time.Second,
		EventBufferSize:      1024,
		SendQueueSize:        256,
		MaxMessageSize:       1 << 20,
		SeenTTL:              2 * time.Minute,
		InboundBurst:         64,
		EtcdPrefix:           "/mothra/nodes",
		EtcdLeaseTTL:         10 * time.Second,
	}
}

// Address is the host:port the node listens on.
func (c Config) Address() string {
	return net.JoinHostPort(c.ListenAddress, c.Port)
}

func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidConfig, c.Port)
	}
	if c.MaxPeers < 1 {
		return fmt.Errorf("%w: maxpeers must be at least 1", ErrInvalidConfig)
	}
	if len(c.ProtocolVersions) == 0 {
		return fmt.Errorf("%w: no protocol versions", ErrInvalidConfig)
	}
	for _, v := range c.ProtocolVersions {
		if v == "" {
			return fmt.Errorf("%w: empty protocol version", ErrInvalidConfig)
		}
	}
	_, err = ParseLevel(c.DebugLevel)
	if err != nil {
		return err
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"startup timeout", c.StartupTimeout},
		{"rpc timeout", c.RPCTimeout},
		{"inbound request expiry", c.InboundRequestExpiry},
		{"heartbeat interval", c.HeartbeatInterval},
		{"seen ttl", c.SeenTTL},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	if c.EventBufferSize < 1 || c.SendQueueSize < 1 || c.MaxMessageSize < 1 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.PeerTimeout < 0 || c.InboundRate < 0 || c.GossipFanout < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	if c.InboundRate > 0 && c.InboundBurst < 1 {
		return fmt.Errorf("%w: inbound burst must be positive when rate limiting", ErrInvalidConfig)
	}
	if len(c.EtcdEndpoints) > 0 && (c.EtcdPrefix == "" || c.EtcdLeaseTTL < time.Second) {
		return fmt.Errorf("%w: etcd discovery needs a prefix and a lease ttl of at least 1s", ErrInvalidConfig)
	}
	return nil
}
