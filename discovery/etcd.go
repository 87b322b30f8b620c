package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FluffyKebab/mothra/peer"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const _dialTimeout = 5 * time.Second

// Etcd registers nodes as <prefix>/<peer id> = <listen address> under a
// lease kept alive for as long as the node runs, and watches the prefix for
// other nodes.
type Etcd struct {
	cli       *clientv3.Client
	ownClient bool
	prefix    string
	ttl       time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	lease  clientv3.LeaseID
	ownKey string
	stopKA context.CancelFunc
}

var _ Discoverer = &Etcd{}

func NewEtcd(endpoints []string, prefix string, ttl time.Duration, logger *zap.Logger) (*Etcd, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: _dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating etcd client: %w", err)
	}

	e := NewEtcdFromClient(cli, prefix, ttl, logger)
	e.ownClient = true
	return e, nil
}

// NewEtcdFromClient uses cli without taking ownership of it.
func NewEtcdFromClient(cli *clientv3.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Etcd {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Etcd{
		cli:    cli,
		prefix: strings.TrimSuffix(prefix, "/"),
		ttl:    ttl,
		logger: logger,
	}
}

func (e *Etcd) key(id peer.ID) string {
	return e.prefix + "/" + id.String()
}

func (e *Etcd) Advertise(ctx context.Context, id peer.ID, addr string) error {
	lease, err := e.cli.Grant(ctx, int64(e.ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("granting lease: %w", err)
	}

	key := e.key(id)
	_, err = e.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("registering %s: %w", key, err)
	}

	kaCtx, stop := context.WithCancel(context.Background())
	ka, err := e.cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		stop()
		return fmt.Errorf("keeping lease alive: %w", err)
	}
	go func() {
		for range ka {
		}
		e.logger.Debug("etcd lease keep-alive stopped", zap.String("key", key))
	}()

	e.mu.Lock()
	if e.stopKA != nil {
		e.stopKA()
	}
	e.lease = lease.ID
	e.ownKey = key
	e.stopKA = stop
	e.mu.Unlock()

	e.logger.Info("registered with etcd", zap.String("key", key), zap.String("addr", addr))
	return nil
}

// FindPeers lists the registered nodes and then keeps watching for new
// registrations. The local node is skipped.
func (e *Etcd) FindPeers(ctx context.Context) (<-chan peer.Peer, error) {
	resp, err := e.cli.Get(ctx, e.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", e.prefix, err)
	}

	e.mu.Lock()
	ownKey := e.ownKey
	e.mu.Unlock()

	initial := make([]peer.Peer, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if string(kv.Key) == ownKey {
			continue
		}
		p, ok := parseEntry(e.prefix, string(kv.Key), string(kv.Value))
		if ok {
			initial = append(initial, p)
		}
	}

	peers := make(chan peer.Peer, len(initial))
	for _, p := range initial {
		peers <- p
	}

	watch := e.cli.Watch(ctx, e.prefix+"/", clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	go func() {
		defer close(peers)
		for wresp := range watch {
			if err := wresp.Err(); err != nil {
				e.logger.Warn("etcd watch failed", zap.Error(err))
				return
			}
			for _, ev := range wresp.Events {
				if ev.Type != clientv3.EventTypePut || string(ev.Kv.Key) == ownKey {
					continue
				}
				p, ok := parseEntry(e.prefix, string(ev.Kv.Key), string(ev.Kv.Value))
				if !ok {
					e.logger.Debug("ignoring malformed etcd entry", zap.ByteString("key", ev.Kv.Key))
					continue
				}
				select {
				case peers <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return peers, nil
}

// Close revokes the registration, if any, and closes the client when it was
// created by NewEtcd.
func (e *Etcd) Close() error {
	e.mu.Lock()
	lease, stop := e.lease, e.stopKA
	e.lease, e.stopKA, e.ownKey = 0, nil, ""
	e.mu.Unlock()

	var errs []error
	if stop != nil {
		stop()
		ctx, cancel := context.WithTimeout(context.Background(), _dialTimeout)
		_, err := e.cli.Revoke(ctx, lease)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("revoking lease: %w", err))
		}
	}
	if e.ownClient {
		errs = append(errs, e.cli.Close())
	}
	return errors.Join(errs...)
}

func parseEntry(prefix, key, value string) (peer.Peer, bool) {
	encoded, ok := strings.CutPrefix(key, prefix+"/")
	if !ok || value == "" {
		return nil, false
	}
	id, err := peer.Decode(encoded)
	if err != nil {
		return nil, false
	}
	return peer.New(id, value), true
}
