package session

import (
	"errors"
	"fmt"

	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/rpc"
	"github.com/FluffyKebab/mothra/wire"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// SendGossip publishes payload on topic to every connected peer subscribed
// to it. Having no subscribers is not an error. The payload is copied.
// Messages peers would reject as too large fail with wire.ErrFrameTooLarge.
func (s *Session) SendGossip(topic string, payload []byte) error {
	if !s.running() {
		return ErrNotRunning
	}

	f := wire.Frame{
		Kind:    wire.KindGossip,
		Name:    topic,
		ID:      uuid.New().String(),
		Payload: payload,
	}
	err := wire.CheckSize(f, s.cfg.MaxMessageSize)
	if err != nil {
		return err
	}
	f.Payload = clone(payload)
	// Our own message must not be delivered back to us by a peer.
	s.router.Seen(f.ID)

	s.publish(f, "")
	s.counters.gossipSent.Add(1)
	return nil
}

// publish queues f to the subscribers of its topic except source, at most
// GossipFanout of them when set. It returns how many peers it was queued to.
func (s *Session) publish(f wire.Frame, source peer.ID) int {
	targets := make([]peer.ID, 0)
	for _, p := range s.router.Subscribers(f.Name) {
		if p != source {
			targets = append(targets, p)
		}
	}

	if s.cfg.GossipFanout > 0 && len(targets) > s.cfg.GossipFanout {
		rand.Shuffle(len(targets), func(i, j int) {
			targets[i], targets[j] = targets[j], targets[i]
		})
		targets = targets[:s.cfg.GossipFanout]
	}

	sent := 0
	for _, p := range targets {
		pc := s.conn(p)
		if pc == nil {
			continue
		}
		err := pc.send(f)
		if err != nil {
			s.counters.sendsDropped.Add(1)
			s.logger.Debug("gossip not queued",
				zap.String("topic", f.Name),
				zap.String("peer", p.ShortString()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// SendRPCRequest sends a request to a connected peer. The response, or a
// timeout, is reported to the handler.
func (s *Session) SendRPCRequest(method string, p peer.ID, payload []byte) error {
	if !s.running() {
		return ErrNotRunning
	}
	pc := s.conn(p)
	if pc == nil || !s.registry.Contains(p) {
		return fmt.Errorf("%w: %s", peer.ErrUnknownPeer, p.ShortString())
	}

	// Correlation ids are uuids, so the size is known before the exchange
	// exists.
	f := wire.Frame{
		Kind:    wire.KindRequest,
		Name:    method,
		ID:      uuid.Nil.String(),
		Payload: payload,
	}
	err := wire.CheckSize(f, s.cfg.MaxMessageSize)
	if err != nil {
		return err
	}

	ex, err := s.rpc.OpenOutbound(method, p)
	if err != nil {
		return ErrNotRunning
	}

	f.ID = ex.ID
	f.Payload = clone(payload)
	err = pc.send(f)
	if err != nil {
		s.rpc.Rollback(ex)
		if errors.Is(err, errConnClosed) {
			return fmt.Errorf("%w: %s", peer.ErrUnknownPeer, p.ShortString())
		}
		s.counters.sendsDropped.Add(1)
		return err
	}

	s.counters.requestsSent.Add(1)
	return nil
}

// SendRPCResponse answers the oldest unanswered request for method from p.
func (s *Session) SendRPCResponse(method string, p peer.ID, payload []byte) error {
	if !s.running() {
		return ErrNotRunning
	}
	pc := s.conn(p)
	if pc == nil || !s.registry.Contains(p) {
		return fmt.Errorf("%w: %s", peer.ErrUnknownPeer, p.ShortString())
	}

	f := wire.Frame{
		Kind:    wire.KindResponse,
		Name:    method,
		Payload: payload,
	}
	ex, err := s.rpc.TakeInboundIf(method, p, func(ex rpc.Exchange) error {
		f.ID = ex.ID
		return wire.CheckSize(f, s.cfg.MaxMessageSize)
	})
	if err != nil {
		return err
	}

	f.ID = ex.ID
	f.Payload = clone(payload)
	err = pc.send(f)
	if err != nil {
		if errors.Is(err, errConnClosed) {
			return fmt.Errorf("%w: %s", peer.ErrUnknownPeer, p.ShortString())
		}
		s.counters.sendsDropped.Add(1)
		return err
	}

	s.counters.responsesSent.Add(1)
	return nil
}

// Subscribe adds interest in topic. The first subscription is announced to
// every connected peer; later ones only add a reference.
func (s *Session) Subscribe(topic string) error {
	s.mu.RLock()
	closed := s.state == stateClosed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	err := wire.CheckSize(wire.Frame{Kind: wire.KindSubscribe, Name: topic}, s.cfg.MaxMessageSize)
	if err != nil {
		return err
	}

	if s.router.Subscribe(topic) {
		s.logger.Info("subscribed", zap.String("topic", topic))
		s.announce(wire.Frame{Kind: wire.KindSubscribe, Name: topic})
	}
	return nil
}

// Unsubscribe drops one reference to topic, announcing it when it was the
// last.
func (s *Session) Unsubscribe(topic string) error {
	s.mu.RLock()
	closed := s.state == stateClosed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if s.router.Unsubscribe(topic) {
		s.logger.Info("unsubscribed", zap.String("topic", topic))
		s.announce(wire.Frame{Kind: wire.KindUnsubscribe, Name: topic})
	}
	return nil
}

func (s *Session) announce(f wire.Frame) {
	for _, pc := range s.connList() {
		err := pc.send(f)
		if err != nil {
			s.logger.Debug("subscription change not queued",
				zap.String("peer", pc.id.ShortString()),
				zap.Error(err),
			)
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
