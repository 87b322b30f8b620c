package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/FluffyKebab/mothra/config"
	"github.com/FluffyKebab/mothra/crypto"
	"github.com/FluffyKebab/mothra/node/basic"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/transport"
	"github.com/FluffyKebab/mothra/transport/encrypted"
	"github.com/FluffyKebab/mothra/transport/tcp"
	"github.com/stretchr/testify/require"
)

const (
	_testKeyBits = 1024
	_waitFor     = 3 * time.Second
	_tick        = 5 * time.Millisecond
)

type gossipEvent struct {
	topic string
	data  []byte
}

type rpcEvent struct {
	method string
	dir    rpc.Direction
	peer   peer.ID
	data   []byte
}

// recorder is a handler that keeps everything it is given. respond, when
// set, is called for every inbound request.
type recorder struct {
	mu         sync.Mutex
	discovered []peer.ID
	gossip     []gossipEvent
	rpcs       []rpcEvent
	timeouts   []string

	respond func(method string, p peer.ID, data []byte)
}

func (r *recorder) OnPeerDiscovered(p peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, p)
}

func (r *recorder) OnGossip(topic string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gossip = append(r.gossip, gossipEvent{topic, data})
}

func (r *recorder) OnRPC(method string, dir rpc.Direction, p peer.ID, data []byte) {
	r.mu.Lock()
	r.rpcs = append(r.rpcs, rpcEvent{method, dir, p, data})
	respond := r.respond
	r.mu.Unlock()

	if dir == rpc.Request && respond != nil {
		respond(method, p, data)
	}
}

func (r *recorder) OnRPCTimeout(method string, p peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, method)
}

func (r *recorder) gossipCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gossip)
}

func (r *recorder) gossipEvents() []gossipEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gossipEvent(nil), r.gossip...)
}

func (r *recorder) rpcEvents(dir rpc.Direction) []rpcEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]rpcEvent, 0)
	for _, e := range r.rpcs {
		if e.dir == dir {
			res = append(res, e)
		}
	}
	return res
}

func (r *recorder) timeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timeouts)
}

func (r *recorder) discoveredPeers() []peer.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.ID(nil), r.discovered...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Port = "0"
	cfg.HeartbeatInterval = time.Hour
	cfg.StartupTimeout = 2 * time.Second
	return cfg
}

func newTestSession(t *testing.T, cfg config.Config, h *recorder) *Session {
	t.Helper()

	key, err := crypto.GenerateKey(_testKeyBits)
	require.NoError(t, err)

	opts := []Option{WithKey(key)}
	if h != nil {
		opts = append(opts, WithHandler(h))
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func startTestSession(t *testing.T, cfg config.Config, h *recorder) *Session {
	t.Helper()

	s := newTestSession(t, cfg, h)
	require.NoError(t, s.Start(context.Background()))
	return s
}

// connect dials b from a and waits until both sides see each other.
func connect(t *testing.T, a, b *Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), _waitFor)
	defer cancel()

	id, err := a.Dial(ctx, b.ListenAddr())
	require.NoError(t, err)
	require.Equal(t, b.LocalID(), id)

	require.Eventually(t, func() bool {
		return a.registry.Contains(b.LocalID()) && b.registry.Contains(a.LocalID())
	}, _waitFor, _tick)
}

// waitSubscribed waits until s knows p is subscribed to topic.
func waitSubscribed(t *testing.T, s *Session, topic string, p peer.ID) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, sub := range s.router.Subscribers(topic) {
			if sub == p {
				return true
			}
		}
		return false
	}, _waitFor, _tick)
}

// dialRaw connects a bare node to s and returns the negotiated conn, so a
// test can write frames by hand.
func dialRaw(t *testing.T, s *Session) (transport.Conn, peer.ID) {
	t.Helper()

	key, err := crypto.GenerateKey(_testKeyBits)
	require.NoError(t, err)
	tr, err := encrypted.NewTransport(tcp.New("127.0.0.1", "0"), key)
	require.NoError(t, err)
	n := basic.New(tr, tr.ID())

	ctx, cancel := context.WithTimeout(context.Background(), _waitFor)
	defer cancel()
	conn, _, err := n.DialPeerUsingProtocol(ctx, []string{config.DefaultProtocolVersion}, peer.New(s.LocalID(), s.ListenAddr()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, tr.ID()
}
