// Package session runs a node: it owns the connections to other peers and
// carries gossip and request/response traffic between them and the local
// handler.
package session

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/config"
	"github.com/FluffyKebab/mothra/crypto"
	"github.com/FluffyKebab/mothra/discovery"
	"github.com/FluffyKebab/mothra/node/basic"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/pubsub"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/telemetry"
	"github.com/FluffyKebab/mothra/transport/encrypted"
	"github.com/FluffyKebab/mothra/transport/tcp"
	"go.uber.org/zap"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

type counters struct {
	gossipSent      atomic.Int64
	gossipReceived  atomic.Int64
	gossipForwarded atomic.Int64
	gossipDuplicate atomic.Int64
	gossipInvalid   atomic.Int64
	requestsSent    atomic.Int64
	responsesSent   atomic.Int64
	rpcReceived     atomic.Int64
	framesLimited   atomic.Int64
	sendsDropped    atomic.Int64
}

// Session is one running node. It is created with New, started once with
// Start and stopped with Close. All methods are safe for concurrent use.
type Session struct {
	cfg        config.Config
	logger     *zap.Logger
	key        *rsa.PrivateKey
	discoverer discovery.Discoverer

	registry *peer.Registry
	bridge   *bridge.Bridge
	router   *pubsub.Router
	rpc      *rpc.Dispatcher
	metrics  *telemetry.Metrics
	counters counters

	mu         sync.RWMutex
	state      state
	localID    peer.ID
	listenAddr string
	node       *basic.Node
	conns      map[peer.ID]*peerConn
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func New(cfg config.Config, opts ...Option) (*Session, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Session{
		cfg:        cfg,
		logger:     o.logger,
		key:        o.key,
		discoverer: o.discoverer,
		registry:   peer.NewRegistry(),
		conns:      make(map[peer.ID]*peerConn),
	}

	s.bridge = bridge.New(
		bridge.WithCapacity(cfg.EventBufferSize),
		bridge.WithLogger(s.logger),
		bridge.WithPeerChecker(s.registry),
	)
	s.router = pubsub.NewRouter(s.registry, s.bridge,
		pubsub.WithSeenTTL(cfg.SeenTTL),
		pubsub.WithLogger(s.logger),
	)
	s.rpc = rpc.NewDispatcher(
		rpc.WithTimeout(cfg.RPCTimeout),
		rpc.WithInboundExpiry(cfg.InboundRequestExpiry),
		rpc.WithTimeoutHook(s.onRequestTimeout),
		rpc.WithExpireHook(s.onRequestExpired),
	)
	s.metrics = telemetry.New(s)

	if o.handler != nil {
		s.bridge.Register(o.handler)
	}
	return s, nil
}

// Start binds the listener, subscribes the configured topics and connects
// to the boot nodes, waiting up to the startup timeout for them. Failing to
// reach a boot node is logged, not returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateRunning:
		s.mu.Unlock()
		return ErrAlreadyRunning
	case stateClosed:
		s.mu.Unlock()
		return ErrClosed
	}

	err := s.loadKey()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.localID = crypto.IDFromPublicKey(&s.key.PublicKey)

	t, err := encrypted.NewTransport(
		tcp.New(s.cfg.ListenAddress, s.cfg.Port),
		s.key,
		encrypted.WithHandshakeTimeout(s.cfg.StartupTimeout),
	)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	n := basic.New(t, s.localID)
	for _, version := range s.cfg.ProtocolVersions {
		n.RegisterProtocol(version, s.handleInbound)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	errChan, err := n.Run(runCtx)
	if err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("listening on %s: %w", s.cfg.Address(), err)
	}

	s.node = n
	s.listenAddr = t.ListenAddr()
	s.cancel = cancel
	s.state = stateRunning
	s.mu.Unlock()

	s.logger.Info("session started",
		zap.String("peer_id", s.localID.String()),
		zap.String("listen_addr", s.listenAddr),
		zap.Strings("protocols", s.cfg.ProtocolVersions),
	)

	s.goFunc(func() { s.logConnErrors(runCtx, errChan) })

	for _, topic := range s.cfg.Topics {
		s.Subscribe(topic)
	}

	s.dialBootNodes(ctx)

	err = s.startDiscovery(ctx, runCtx)
	if err != nil {
		s.logger.Warn("peer discovery unavailable", zap.Error(err))
	}

	s.goFunc(func() { s.heartbeat(runCtx) })
	return nil
}

func (s *Session) loadKey() error {
	if s.key != nil {
		return nil
	}

	if s.cfg.DataDir == "" {
		key, err := crypto.GenerateKey(crypto.KeyBits)
		if err != nil {
			return fmt.Errorf("generating node key: %w", err)
		}
		s.key = key
		s.logger.Debug("using ephemeral node key")
		return nil
	}

	key, generated, err := crypto.LoadOrGenerateKey(s.cfg.DataDir)
	if err != nil {
		return err
	}
	if generated {
		s.logger.Info("generated new node key", zap.String("datadir", s.cfg.DataDir))
	} else {
		s.logger.Debug("loaded node key", zap.String("datadir", s.cfg.DataDir))
	}
	s.key = key
	return nil
}

// Close disconnects every peer and stops all background work. Pending
// requests are dropped without timeout events. A closed session cannot be
// restarted.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	wasRunning := s.state == stateRunning
	s.state = stateClosed
	if s.cancel != nil {
		s.cancel()
	}
	conns := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		conns = append(conns, pc)
	}
	d := s.discoverer
	s.mu.Unlock()

	for _, pc := range conns {
		pc.close()
	}

	var err error
	if d != nil {
		err = d.Close()
	}

	s.wg.Wait()
	s.rpc.Close()
	s.bridge.Close()

	if wasRunning {
		s.logger.Info("session closed", zap.String("peer_id", s.localID.String()))
	}
	return err
}

// Register replaces the handler receiving the session's events. It must
// not be called from inside a handler method.
func (s *Session) Register(h bridge.Handler) {
	s.bridge.Register(h)
}

func (s *Session) LocalID() peer.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.localID
}

// ListenAddr is the bound listen address, or "" before Start.
func (s *Session) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listenAddr
}

func (s *Session) Peers() []peer.ID {
	return s.registry.List()
}

func (s *Session) Metrics() *telemetry.Metrics {
	return s.metrics
}

func (s *Session) Stats() telemetry.Stats {
	return telemetry.Stats{
		ConnectedPeers:  s.registry.Len(),
		PendingRequests: s.rpc.Pending(),
		AwaitingReplies: s.rpc.Awaiting(),
		QueuedEvents:    s.bridge.Queued(),
		GossipSent:      s.counters.gossipSent.Load(),
		GossipReceived:  s.counters.gossipReceived.Load(),
		GossipForwarded: s.counters.gossipForwarded.Load(),
		GossipDuplicate: s.counters.gossipDuplicate.Load(),
		GossipInvalid:   s.counters.gossipInvalid.Load(),
		RequestsSent:    s.counters.requestsSent.Load(),
		ResponsesSent:   s.counters.responsesSent.Load(),
		RPCReceived:     s.counters.rpcReceived.Load(),
		RPCTimedOut:     s.rpc.TimedOut(),
		RPCStray:        s.rpc.Stray(),
		RPCExpired:      s.rpc.Expired(),
		EventsDropped:   s.bridge.Dropped(),
		EventsStale:     s.bridge.Stale(),
		FramesLimited:   s.counters.framesLimited.Load(),
		SendsDropped:    s.counters.sendsDropped.Load(),
	}
}

func (s *Session) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == stateRunning
}

// goFunc runs fn as background work Close waits for. It does nothing once
// the session is closed.
func (s *Session) goFunc(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == stateClosed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Session) logConnErrors(ctx context.Context, errChan <-chan error) {
	for {
		select {
		case err := <-errChan:
			s.logger.Debug("inbound connection failed", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) onRequestTimeout(ex rpc.Exchange) {
	s.logger.Debug("request timed out",
		zap.String("method", ex.Method),
		zap.String("peer", ex.Peer.ShortString()),
		zap.String("id", ex.ID),
	)
	s.bridge.Publish(bridge.NewRPCTimeout(ex.Method, ex.Peer))
}

func (s *Session) onRequestExpired(ex rpc.Exchange) {
	s.logger.Debug("inbound request never answered",
		zap.String("method", ex.Method),
		zap.String("peer", ex.Peer.ShortString()),
	)
}
