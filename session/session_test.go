package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/config"
	"github.com/FluffyKebab/mothra/crypto"
	"github.com/FluffyKebab/mothra/discovery"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/testutil"
	"github.com/FluffyKebab/mothra/wire"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	s := newTestSession(t, testConfig(), nil)

	require.ErrorIs(t, s.SendGossip("blocks", nil), ErrNotRunning)
	require.ErrorIs(t, s.SendRPCRequest("ping", "p", nil), ErrNotRunning)
	require.ErrorIs(t, s.SendRPCResponse("ping", "p", nil), ErrNotRunning)
	_, err := s.Dial(context.Background(), "127.0.0.1:1")
	require.ErrorIs(t, err, ErrNotRunning)
	require.Empty(t, s.ListenAddr())

	require.NoError(t, s.Start(context.Background()))
	require.NotEmpty(t, s.ListenAddr())
	require.NotEmpty(t, s.LocalID())
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Start(context.Background()), ErrClosed)
	require.ErrorIs(t, s.SendGossip("blocks", nil), ErrNotRunning)
	require.ErrorIs(t, s.Subscribe("blocks"), ErrClosed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPeers = 0
	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestKeyPersistedInDataDir(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	first := s.LocalID()
	require.NoError(t, s.Close())

	s, err = New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	require.Equal(t, first, s.LocalID())
}

func TestPeerDiscoveredOnConnect(t *testing.T) {
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	require.Eventually(t, func() bool { return len(ha.discoveredPeers()) == 1 }, _waitFor, _tick)
	require.Eventually(t, func() bool { return len(hb.discoveredPeers()) == 1 }, _waitFor, _tick)
	require.Equal(t, b.LocalID(), ha.discoveredPeers()[0])
	require.Equal(t, a.LocalID(), hb.discoveredPeers()[0])
	require.ElementsMatch(t, []peer.ID{b.LocalID()}, a.Peers())

	// Dialing again reuses the connection.
	id, err := a.Dial(context.Background(), b.ListenAddr())
	require.NoError(t, err)
	require.Equal(t, b.LocalID(), id)
	require.Len(t, a.Peers(), 1)
}

func TestUnknownPeerRequestCreatesNoEntry(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})

	err := a.SendRPCRequest("ping", peer.ID("nobody"), []byte("x"))
	require.ErrorIs(t, err, peer.ErrUnknownPeer)
	require.Zero(t, a.Stats().PendingRequests)

	err = a.SendRPCResponse("ping", peer.ID("nobody"), []byte("x"))
	require.ErrorIs(t, err, peer.ErrUnknownPeer)
}

func TestGossipWithoutSubscribers(t *testing.T) {
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	require.NoError(t, a.SendGossip("blocks", []byte("block")))
	require.NoError(t, a.SendGossip("nobody-listens", nil))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, ha.gossipCount())
	require.Zero(t, hb.gossipCount())
	require.Equal(t, int64(2), a.Stats().GossipSent)
}

func TestGossipDelivered(t *testing.T) {
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	require.NoError(t, b.Subscribe("blocks"))
	require.NoError(t, a.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	payload := []byte("block 1")
	require.NoError(t, a.SendGossip("blocks", payload))
	payload[0] = 'X'

	require.Eventually(t, func() bool { return hb.gossipCount() == 1 }, _waitFor, _tick)
	got := hb.gossipEvents()[0]
	require.Equal(t, "blocks", got.topic)
	require.Equal(t, []byte("block 1"), got.data)

	// The sender never sees its own message.
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, ha.gossipCount())
	require.Equal(t, 1, hb.gossipCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hb := &recorder{}
	a := startTestSession(t, testConfig(), &recorder{})
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	require.NoError(t, b.Subscribe("blocks"))
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	require.NoError(t, b.Unsubscribe("blocks"))
	require.NoError(t, a.SendGossip("blocks", []byte("1")))
	require.Eventually(t, func() bool { return hb.gossipCount() == 1 }, _waitFor, _tick)

	require.NoError(t, b.Unsubscribe("blocks"))
	require.Eventually(t, func() bool { return len(a.router.Subscribers("blocks")) == 0 }, _waitFor, _tick)
	require.NoError(t, a.SendGossip("blocks", []byte("2")))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, hb.gossipCount())
}

func TestGossipFloodsThroughIntermediate(t *testing.T) {
	ha, hb, hc := &recorder{}, &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	c := startTestSession(t, testConfig(), hc)
	connect(t, a, b)
	connect(t, b, c)

	require.NoError(t, b.Subscribe("blocks"))
	require.NoError(t, c.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())
	waitSubscribed(t, b, "blocks", c.LocalID())

	require.NoError(t, a.SendGossip("blocks", []byte("block")))

	require.Eventually(t, func() bool { return hb.gossipCount() == 1 && hc.gossipCount() == 1 }, _waitFor, _tick)
	require.Equal(t, int64(1), b.Stats().GossipForwarded)

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, ha.gossipCount())
	require.Equal(t, 1, hc.gossipCount())
}

func TestPingRoundTrip(t *testing.T) {
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	hb.respond = func(method string, p peer.ID, data []byte) {
		err := b.SendRPCResponse(method, p, append([]byte("pong:"), data...))
		if err != nil {
			t.Errorf("responding: %v", err)
		}
	}
	connect(t, a, b)

	require.NoError(t, a.SendRPCRequest("ping", b.LocalID(), []byte("1")))

	require.Eventually(t, func() bool { return len(ha.rpcEvents(rpc.Response)) == 1 }, _waitFor, _tick)
	resp := ha.rpcEvents(rpc.Response)[0]
	require.Equal(t, "ping", resp.method)
	require.Equal(t, b.LocalID(), resp.peer)
	require.Equal(t, []byte("pong:1"), resp.data)

	req := hb.rpcEvents(rpc.Request)
	require.Len(t, req, 1)
	require.Equal(t, a.LocalID(), req[0].peer)

	require.Zero(t, a.Stats().PendingRequests)
	require.Zero(t, b.Stats().AwaitingReplies)

	time.Sleep(50 * time.Millisecond)
	require.Len(t, ha.rpcEvents(rpc.Response), 1)
	require.Zero(t, ha.timeoutCount())
}

func TestResponsesMatchRequestsInOrder(t *testing.T) {
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	numRequests := 5
	for i := 0; i < numRequests; i++ {
		require.NoError(t, a.SendRPCRequest("status", b.LocalID(), []byte{byte(i)}))
	}
	require.Eventually(t, func() bool { return len(hb.rpcEvents(rpc.Request)) == numRequests }, _waitFor, _tick)
	require.Equal(t, numRequests, a.Stats().PendingRequests)

	for i, req := range hb.rpcEvents(rpc.Request) {
		require.Equal(t, []byte{byte(i)}, req.data)
		require.NoError(t, b.SendRPCResponse("status", a.LocalID(), []byte{byte(i)}))
	}
	err := b.SendRPCResponse("status", a.LocalID(), nil)
	require.ErrorIs(t, err, rpc.ErrNoPendingRequest)

	require.Eventually(t, func() bool { return len(ha.rpcEvents(rpc.Response)) == numRequests }, _waitFor, _tick)
	for i, resp := range ha.rpcEvents(rpc.Response) {
		require.Equal(t, []byte{byte(i)}, resp.data)
	}
	require.Zero(t, a.Stats().PendingRequests)
}

func TestRequestTimeoutAndLateResponse(t *testing.T) {
	cfg := testConfig()
	cfg.RPCTimeout = 100 * time.Millisecond
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, cfg, ha)
	b := startTestSession(t, testConfig(), hb)
	connect(t, a, b)

	require.NoError(t, a.SendRPCRequest("ping", b.LocalID(), nil))
	require.Eventually(t, func() bool { return len(hb.rpcEvents(rpc.Request)) == 1 }, _waitFor, _tick)

	require.Eventually(t, func() bool { return ha.timeoutCount() == 1 }, _waitFor, _tick)
	require.Zero(t, a.Stats().PendingRequests)
	require.Equal(t, int64(1), a.Stats().RPCTimedOut)

	require.NoError(t, b.SendRPCResponse("ping", a.LocalID(), []byte("late")))
	require.Eventually(t, func() bool { return a.Stats().RPCStray == 1 }, _waitFor, _tick)
	require.Empty(t, ha.rpcEvents(rpc.Response))
}

func TestHandlerReplacement(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	a := startTestSession(t, testConfig(), &recorder{})
	b := startTestSession(t, testConfig(), first)
	connect(t, a, b)
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	require.NoError(t, a.SendGossip("blocks", []byte("1")))
	require.Eventually(t, func() bool { return first.gossipCount() == 1 }, _waitFor, _tick)

	b.Register(second)
	require.NoError(t, a.SendGossip("blocks", []byte("2")))
	require.Eventually(t, func() bool { return second.gossipCount() == 1 }, _waitFor, _tick)
	require.Equal(t, 1, first.gossipCount())
	require.Equal(t, []byte("2"), second.gossipEvents()[0].data)
}

func TestEventsHeldUntilHandlerRegistered(t *testing.T) {
	a := startTestSession(t, testConfig(), nil)
	b := startTestSession(t, testConfig(), nil)
	connect(t, a, b)

	h := &recorder{}
	b.Register(h)
	require.Eventually(t, func() bool { return len(h.discoveredPeers()) == 1 }, _waitFor, _tick)
}

func TestConcurrentGossip(t *testing.T) {
	cfg := testConfig()
	cfg.SendQueueSize = 2048
	cfg.EventBufferSize = 2048
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, cfg, ha)
	b := startTestSession(t, cfg, hb)
	connect(t, a, b)
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	numWorkers := 8
	numMessages := 50
	wg := new(sync.WaitGroup)
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < numMessages; i++ {
				err := a.SendGossip("blocks", []byte(fmt.Sprintf("%d-%d", w, i)))
				if err != nil {
					t.Errorf("sending gossip: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	total := numWorkers * numMessages
	require.Eventually(t, func() bool { return hb.gossipCount() == total }, 2*_waitFor, _tick)

	seen := make(map[string]bool)
	for _, e := range hb.gossipEvents() {
		require.False(t, seen[string(e.data)])
		seen[string(e.data)] = true
	}
	require.Len(t, seen, total)
}

func TestSimultaneousDialKeepsOneConnection(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})
	b := startTestSession(t, testConfig(), &recorder{})

	ctx, cancel := context.WithTimeout(context.Background(), _waitFor)
	defer cancel()

	var errA, errB error
	wg := new(sync.WaitGroup)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = a.Dial(ctx, b.ListenAddr())
	}()
	go func() {
		defer wg.Done()
		_, errB = b.Dial(ctx, a.ListenAddr())
	}()
	wg.Wait()
	require.NoError(t, errA)
	require.NoError(t, errB)

	require.Eventually(t, func() bool {
		return len(a.connList()) == 1 && len(b.connList()) == 1
	}, _waitFor, _tick)

	// Both sides must agree on the survivor, so the peer stays usable.
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())
	require.Len(t, a.Peers(), 1)
	require.Len(t, b.Peers(), 1)
}

func TestMaxPeers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPeers = 1
	a := startTestSession(t, cfg, &recorder{})
	b := startTestSession(t, testConfig(), &recorder{})
	c := startTestSession(t, testConfig(), &recorder{})
	connect(t, b, a)

	ctx, cancel := context.WithTimeout(context.Background(), _waitFor)
	defer cancel()
	_, err := a.Dial(ctx, c.ListenAddr())
	require.ErrorIs(t, err, ErrMaxPeers)

	// c's dial succeeds at the transport level but a drops it.
	_, _ = c.Dial(ctx, a.ListenAddr())
	require.Eventually(t, func() bool { return len(c.Peers()) == 0 }, _waitFor, _tick)
	require.Equal(t, []peer.ID{b.LocalID()}, a.Peers())
}

func TestSelfDial(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})

	_, err := a.Dial(context.Background(), a.ListenAddr())
	require.ErrorIs(t, err, ErrSelfDial)
	require.Empty(t, a.Peers())
}

func TestDisconnectForgetsPeer(t *testing.T) {
	ha := &recorder{}
	a := startTestSession(t, testConfig(), ha)
	b := startTestSession(t, testConfig(), &recorder{})
	connect(t, a, b)
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())
	id := b.LocalID()

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return len(a.Peers()) == 0 }, _waitFor, _tick)
	require.Empty(t, a.router.Subscribers("blocks"))

	require.ErrorIs(t, a.SendRPCRequest("ping", id, nil), peer.ErrUnknownPeer)
	require.NoError(t, a.SendGossip("blocks", []byte("x")))
}

func TestBootNodesAndTopics(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})

	cfg := testConfig()
	cfg.BootNodes = []string{a.ListenAddr(), "127.0.0.1:1"}
	cfg.Topics = []string{"blocks", "txs"}
	b := startTestSession(t, cfg, &recorder{})

	require.Contains(t, b.Peers(), a.LocalID())
	waitSubscribed(t, a, "blocks", b.LocalID())
	waitSubscribed(t, a, "txs", b.LocalID())
}

type fakeDiscoverer struct {
	peers      chan peer.Peer
	advertised chan string
	closed     chan struct{}
}

func (f *fakeDiscoverer) Advertise(_ context.Context, _ peer.ID, addr string) error {
	f.advertised <- addr
	return nil
}

func (f *fakeDiscoverer) FindPeers(context.Context) (<-chan peer.Peer, error) {
	return f.peers, nil
}

func (f *fakeDiscoverer) Close() error {
	close(f.closed)
	return nil
}

var _ discovery.Discoverer = &fakeDiscoverer{}

func TestDiscoveredPeersAreDialed(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})

	d := &fakeDiscoverer{
		peers:      make(chan peer.Peer, 2),
		advertised: make(chan string, 1),
		closed:     make(chan struct{}),
	}
	key, err := crypto.GenerateKey(_testKeyBits)
	require.NoError(t, err)
	b, err := New(testConfig(), WithKey(key), WithDiscoverer(d))
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	require.Equal(t, b.ListenAddr(), <-d.advertised)

	d.peers <- peer.New(b.LocalID(), b.ListenAddr())
	d.peers <- peer.New(a.LocalID(), a.ListenAddr())
	require.Eventually(t, func() bool { return len(b.Peers()) == 1 }, _waitFor, _tick)
	require.Equal(t, a.LocalID(), b.Peers()[0])

	close(d.peers)
	require.NoError(t, b.Close())
	<-d.closed
}

func TestEtcdDiscoveryConnectsNodes(t *testing.T) {
	store := testutil.NewEtcdStore()
	newNode := func() *Session {
		key, err := crypto.GenerateKey(_testKeyBits)
		require.NoError(t, err)
		d := discovery.NewEtcdFromClient(store.Client(), "/mothra/nodes", 10*time.Second, nil)
		s, err := New(testConfig(), WithKey(key), WithDiscoverer(d))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		require.NoError(t, s.Start(context.Background()))
		return s
	}

	a := newNode()
	_, ok := store.Get("/mothra/nodes/" + a.LocalID().String())
	require.True(t, ok)

	// b finds a by listing, a finds b through its watch.
	b := newNode()
	c := newNode()
	for _, s := range []*Session{a, b, c} {
		require.Eventually(t, func() bool { return len(s.Peers()) == 2 }, _waitFor, _tick)
	}

	require.NoError(t, c.Close())
	_, ok = store.Get("/mothra/nodes/" + c.LocalID().String())
	require.False(t, ok)
}

func TestSilentPeerEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.PeerTimeout = 100 * time.Millisecond
	a := startTestSession(t, cfg, &recorder{})

	// A bare node that negotiates the protocol and then never speaks.
	_, id := dialRaw(t, a)

	require.Eventually(t, func() bool { return a.registry.Contains(id) }, _waitFor, _tick)
	require.Eventually(t, func() bool { return len(a.Peers()) == 0 }, _waitFor, _tick)
}

func TestGossipWithoutIDDropped(t *testing.T) {
	ha := &recorder{}
	a := startTestSession(t, testConfig(), ha)
	require.NoError(t, a.Subscribe("blocks"))

	conn, id := dialRaw(t, a)
	require.Eventually(t, func() bool { return a.registry.Contains(id) }, _waitFor, _tick)

	require.NoError(t, wire.WriteFrame(conn, wire.Frame{Kind: wire.KindGossip, Name: "blocks", Payload: []byte("no id")}))
	require.NoError(t, wire.WriteFrame(conn, wire.Frame{Kind: wire.KindGossip, Name: "blocks", ID: "m1", Payload: []byte("with id")}))

	require.Eventually(t, func() bool { return ha.gossipCount() == 1 }, _waitFor, _tick)
	require.Equal(t, []byte("with id"), ha.gossipEvents()[0].data)
	require.Equal(t, int64(1), a.Stats().GossipInvalid)
}

func TestOversizeMessagesRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 1024
	ha, hb := &recorder{}, &recorder{}
	a := startTestSession(t, cfg, ha)
	b := startTestSession(t, cfg, hb)
	connect(t, a, b)
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	big := make([]byte, 4096)
	require.ErrorIs(t, a.SendGossip("blocks", big), wire.ErrFrameTooLarge)
	require.Zero(t, a.Stats().GossipSent)

	require.ErrorIs(t, a.SendRPCRequest("ping", b.LocalID(), big), wire.ErrFrameTooLarge)
	require.Zero(t, a.Stats().PendingRequests)

	require.NoError(t, a.SendRPCRequest("ping", b.LocalID(), []byte("small")))
	require.Eventually(t, func() bool { return len(hb.rpcEvents(rpc.Request)) == 1 }, _waitFor, _tick)
	require.ErrorIs(t, b.SendRPCResponse("ping", a.LocalID(), big), wire.ErrFrameTooLarge)
	require.Equal(t, 1, b.Stats().AwaitingReplies)
	require.NoError(t, b.SendRPCResponse("ping", a.LocalID(), []byte("pong")))
	require.Eventually(t, func() bool { return len(ha.rpcEvents(rpc.Response)) == 1 }, _waitFor, _tick)

	// The connection survived and still carries gossip.
	require.NoError(t, a.SendGossip("blocks", []byte("block")))
	require.Eventually(t, func() bool { return hb.gossipCount() == 1 }, _waitFor, _tick)
	require.ElementsMatch(t, []peer.ID{b.LocalID()}, a.Peers())
	require.ElementsMatch(t, []peer.ID{a.LocalID()}, b.Peers())
}

func TestActivePeerNotEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.PeerTimeout = 200 * time.Millisecond
	a := startTestSession(t, cfg, &recorder{})
	b := startTestSession(t, cfg, &recorder{})
	connect(t, a, b)

	time.Sleep(500 * time.Millisecond)
	require.Len(t, a.Peers(), 1)
	require.Len(t, b.Peers(), 1)
}

func TestInboundRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.InboundRate = 1
	cfg.InboundBurst = 1
	hb := &recorder{}
	a := startTestSession(t, testConfig(), &recorder{})
	b := startTestSession(t, cfg, hb)
	connect(t, a, b)
	require.NoError(t, b.Subscribe("blocks"))
	waitSubscribed(t, a, "blocks", b.LocalID())

	for i := 0; i < 20; i++ {
		require.NoError(t, a.SendGossip("blocks", []byte{byte(i)}))
	}
	require.Eventually(t, func() bool { return b.Stats().FramesLimited > 0 }, _waitFor, _tick)
	require.Less(t, hb.gossipCount(), 20)
}

func TestHandlerQueueOverflowDropsRequest(t *testing.T) {
	cfg := testConfig()
	cfg.EventBufferSize = 1
	a := startTestSession(t, testConfig(), &recorder{})
	b := startTestSession(t, cfg, nil)
	connect(t, a, b)

	// The PeerDiscovered event fills b's queue; no handler drains it.
	require.NoError(t, a.SendRPCRequest("ping", b.LocalID(), nil))
	require.Eventually(t, func() bool { return b.Stats().EventsDropped >= 1 }, _waitFor, _tick)
	require.Zero(t, b.Stats().AwaitingReplies)
	require.ErrorIs(t, b.SendRPCResponse("ping", a.LocalID(), nil), rpc.ErrNoPendingRequest)
}

func TestMetricsExposeStats(t *testing.T) {
	a := startTestSession(t, testConfig(), &recorder{})
	require.NoError(t, a.SendGossip("blocks", nil))

	families, err := a.Metrics().Registry().Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), values["mothra_gossip_sent_total"])
	require.Equal(t, float64(0), values["mothra_connected_peers"])
}

var _ bridge.TimeoutHandler = &recorder{}
