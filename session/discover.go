package session

import (
	"context"
	"sync"

	"github.com/FluffyKebab/mothra/discovery"
	"github.com/FluffyKebab/mothra/peer"
	"go.uber.org/zap"
)

// dialBootNodes dials every boot node concurrently and waits for all of
// them, at most for the startup timeout.
func (s *Session) dialBootNodes(ctx context.Context) {
	if len(s.cfg.BootNodes) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	peers, err := discovery.NewStatic(s.cfg.BootNodes).FindPeers(ctx)
	if err != nil {
		s.logger.Warn("reading boot nodes", zap.Error(err))
		return
	}

	wg := new(sync.WaitGroup)
	for p := range peers {
		wg.Add(1)
		go func(p peer.Peer) {
			defer wg.Done()
			id, err := s.dialPeer(ctx, p)
			if err != nil {
				s.logger.Warn("could not reach boot node",
					zap.String("addr", p.PublicAddr()),
					zap.Error(err),
				)
				return
			}
			s.logger.Debug("connected to boot node",
				zap.String("addr", p.PublicAddr()),
				zap.String("peer", id.ShortString()),
			)
		}(p)
	}
	wg.Wait()
}

// startDiscovery advertises the node and keeps dialing the peers the
// discoverer finds until the session closes.
func (s *Session) startDiscovery(ctx, runCtx context.Context) error {
	d, err := s.discovererOrEtcd()
	if d == nil || err != nil {
		return err
	}

	local, addr := s.LocalID(), s.ListenAddr()
	err = d.Advertise(ctx, local, addr)
	if err != nil {
		return err
	}

	peers, err := d.FindPeers(runCtx)
	if err != nil {
		return err
	}

	s.goFunc(func() {
		for p := range peers {
			if p.ID() == local || p.PublicAddr() == addr {
				continue
			}

			dialCtx, cancel := context.WithTimeout(runCtx, s.cfg.StartupTimeout)
			id, err := s.dialPeer(dialCtx, p)
			cancel()
			if err != nil {
				s.logger.Debug("could not dial discovered peer",
					zap.String("addr", p.PublicAddr()),
					zap.Error(err),
				)
				continue
			}
			s.logger.Debug("dialed discovered peer", zap.String("peer", id.ShortString()))
		}
	})
	return nil
}

func (s *Session) discovererOrEtcd() (discovery.Discoverer, error) {
	s.mu.RLock()
	d := s.discoverer
	s.mu.RUnlock()
	if d != nil || len(s.cfg.EtcdEndpoints) == 0 {
		return d, nil
	}

	etcd, err := discovery.NewEtcd(s.cfg.EtcdEndpoints, s.cfg.EtcdPrefix, s.cfg.EtcdLeaseTTL, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		etcd.Close()
		return nil, ErrClosed
	}
	s.discoverer = etcd
	return etcd, nil
}
