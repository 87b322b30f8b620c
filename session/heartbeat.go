package session

import (
	"context"
	"time"

	"github.com/FluffyKebab/mothra/wire"
	"go.uber.org/zap"
)

// heartbeat logs the peer count, pings every peer and disconnects the ones
// that have been silent for longer than the peer timeout.
func (s *Session) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkPeers(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) checkPeers(now time.Time) {
	count := s.registry.Len()
	if count <= s.cfg.WarnPeerCount {
		s.logger.Warn("low peer count", zap.Int("peers", count))
	} else {
		s.logger.Info("peer count", zap.Int("peers", count))
	}

	if s.cfg.PeerTimeout > 0 {
		for _, id := range s.registry.Stale(now.Add(-s.cfg.PeerTimeout)) {
			pc := s.conn(id)
			if pc == nil {
				continue
			}
			s.logger.Info("disconnecting silent peer",
				zap.String("peer", id.ShortString()),
				zap.Duration("timeout", s.cfg.PeerTimeout),
			)
			pc.close()
		}
	}

	for _, pc := range s.connList() {
		pc.send(wire.Frame{Kind: wire.KindPing})
	}
}
