package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
	"github.com/FluffyKebab/mothra/wire"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dial connects to the node listening on addr and returns its id. Dialing
// a peer that is already connected succeeds without a new connection.
func (s *Session) Dial(ctx context.Context, addr string) (peer.ID, error) {
	return s.dialPeer(ctx, peer.New("", addr))
}

func (s *Session) dialPeer(ctx context.Context, p peer.Peer) (peer.ID, error) {
	s.mu.RLock()
	n, local := s.node, s.localID
	if s.state != stateRunning {
		s.mu.RUnlock()
		return "", ErrNotRunning
	}
	if p.ID() != "" {
		if p.ID() == local {
			s.mu.RUnlock()
			return "", ErrSelfDial
		}
		if _, ok := s.conns[p.ID()]; ok {
			s.mu.RUnlock()
			return p.ID(), nil
		}
	}
	if len(s.conns) >= s.cfg.MaxPeers {
		s.mu.RUnlock()
		return "", ErrMaxPeers
	}
	s.mu.RUnlock()

	c, proto, err := n.DialPeerUsingProtocol(ctx, s.cfg.ProtocolVersions, p)
	if err != nil {
		return "", fmt.Errorf("dialing %s: %w", p.PublicAddr(), err)
	}

	id, err := remoteID(c)
	if err != nil {
		c.Close()
		return "", err
	}
	if id == local {
		c.Close()
		return "", ErrSelfDial
	}

	pc, err := s.attach(c, id, p.PublicAddr(), proto, true)
	if errors.Is(err, errDuplicate) {
		return id, nil
	}
	if err != nil {
		return "", err
	}

	ok := s.goFunc(func() { s.serve(pc) })
	if !ok {
		s.dropConn(pc)
		return "", ErrClosed
	}
	return id, nil
}

// handleInbound serves a negotiated inbound connection until it closes.
func (s *Session) handleInbound(proto string, c transport.Conn) error {
	id, err := remoteID(c)
	if err != nil {
		c.Close()
		return err
	}
	if id == s.LocalID() {
		c.Close()
		return ErrSelfDial
	}

	addr := ""
	if ah, ok := c.(transport.RemoteAddrHaver); ok {
		addr = ah.RemoteAddr()
	}

	pc, err := s.attach(c, id, addr, proto, false)
	if errors.Is(err, errDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.RLock()
	if s.state != stateRunning {
		s.mu.RUnlock()
		s.dropConn(pc)
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	s.serve(pc)
	return nil
}

func remoteID(c transport.Conn) (peer.ID, error) {
	h, ok := c.(transport.RemoteIDHaver)
	if !ok || h.RemoteID() == "" {
		return "", errNoRemoteID
	}
	return h.RemoteID(), nil
}

// attach adds c to the pool. When the peer is already connected the
// connection dialed by the peer with the smaller id is kept, so both sides
// agree on which one survives; errDuplicate means c was closed.
func (s *Session) attach(c transport.Conn, id peer.ID, addr, proto string, outbound bool) (*peerConn, error) {
	var limiter *rate.Limiter
	if s.cfg.InboundRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.InboundRate), s.cfg.InboundBurst)
	}
	pc := newPeerConn(c, id, addr, proto, outbound, s.cfg.SendQueueSize, limiter)

	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		c.Close()
		return nil, ErrNotRunning
	}

	var replaced *peerConn
	if existing, ok := s.conns[id]; ok {
		if pc.dialedBy(s.localID) >= existing.dialedBy(s.localID) {
			s.mu.Unlock()
			c.Close()
			s.logger.Debug("closing duplicate connection", zap.String("peer", id.ShortString()))
			return nil, errDuplicate
		}
		replaced = existing
	} else if len(s.conns) >= s.cfg.MaxPeers {
		s.mu.Unlock()
		c.Close()
		s.logger.Debug("rejecting peer, max peers reached",
			zap.String("peer", id.ShortString()),
			zap.Int("max_peers", s.cfg.MaxPeers),
		)
		return nil, ErrMaxPeers
	}

	s.conns[id] = pc
	added := s.registry.Add(peer.Info{ID: id, Addr: addr})
	s.wg.Add(1)
	s.mu.Unlock()

	if replaced != nil {
		replaced.close()
	}

	go func() {
		defer s.wg.Done()
		err := pc.writeLoop()
		if err != nil {
			s.logger.Debug("write failed", zap.String("peer", id.ShortString()), zap.Error(err))
		}
	}()

	for _, topic := range s.router.Topics() {
		pc.send(wire.Frame{Kind: wire.KindSubscribe, Name: topic})
	}

	if added {
		s.logger.Info("peer connected",
			zap.String("peer", id.ShortString()),
			zap.String("addr", addr),
			zap.Bool("outbound", outbound),
			zap.String("protocol", proto),
		)
		s.bridge.Publish(bridge.NewPeerDiscovered(id))
	}
	return pc, nil
}

// serve reads frames from pc until the connection fails or is closed.
func (s *Session) serve(pc *peerConn) {
	defer s.dropConn(pc)

	r := wire.NewReader(pc.conn, s.cfg.MaxMessageSize)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			select {
			case <-pc.done:
			default:
				s.logger.Debug("read failed", zap.String("peer", pc.id.ShortString()), zap.Error(err))
			}
			return
		}

		s.registry.Touch(pc.id, time.Now())
		if !pc.allow() {
			s.counters.framesLimited.Add(1)
			continue
		}
		s.handleFrame(pc, f)
	}
}

// dropConn closes pc and, if it is still the peer's connection, forgets
// the peer.
func (s *Session) dropConn(pc *peerConn) {
	pc.close()

	s.mu.Lock()
	current, ok := s.conns[pc.id]
	removed := ok && current == pc
	if removed {
		delete(s.conns, pc.id)
		s.registry.Remove(pc.id)
	}
	s.mu.Unlock()

	if !removed {
		return
	}
	s.router.RemovePeer(pc.id)
	s.logger.Info("peer disconnected", zap.String("peer", pc.id.ShortString()))
}

func (s *Session) conn(id peer.ID) *peerConn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.conns[id]
}

func (s *Session) connList() []*peerConn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		res = append(res, pc)
	}
	return res
}
