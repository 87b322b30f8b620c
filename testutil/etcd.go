package testutil

import (
	"context"
	"strings"
	"sync"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore is an in-memory stand-in for an etcd cluster. It supports what
// node registration needs: puts attached to leases, prefix reads, prefix
// watches and lease revocation. Range ends, revisions passed to reads and
// watches, and transactions are not supported.
type EtcdStore struct {
	mu        sync.Mutex
	rev       int64
	nextLease int64
	kvs       map[string]*mvccpb.KeyValue
	watchers  map[*memWatch]struct{}
	revoked   map[clientv3.LeaseID]bool
	keepAlive int
}

type memWatch struct {
	prefix string
	ch     chan clientv3.WatchResponse
}

func NewEtcdStore() *EtcdStore {
	return &EtcdStore{
		kvs:      make(map[string]*mvccpb.KeyValue),
		watchers: make(map[*memWatch]struct{}),
		revoked:  make(map[clientv3.LeaseID]bool),
	}
}

// Client returns a client backed by the store. Puts made with options are
// attached to the last lease the client was granted.
func (s *EtcdStore) Client() *clientv3.Client {
	mc := &memClient{store: s}
	cli := clientv3.NewCtxClient(context.Background())
	cli.KV = mc
	cli.Lease = mc
	cli.Watcher = mc
	return cli
}

// Put writes a key outside of any lease.
func (s *EtcdStore) Put(key, value string) {
	s.put(key, value, 0)
}

func (s *EtcdStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, ok := s.kvs[key]
	if !ok {
		return "", false
	}
	return string(kv.Value), true
}

func (s *EtcdStore) Revoked(id clientv3.LeaseID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revoked[id]
}

// KeepAlives is the number of lease keep-alives currently running.
func (s *EtcdStore) KeepAlives() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.keepAlive
}

func (s *EtcdStore) put(key, value string, lease clientv3.LeaseID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rev++
	kv := &mvccpb.KeyValue{
		Key:         []byte(key),
		Value:       []byte(value),
		ModRevision: s.rev,
		Lease:       int64(lease),
	}
	if old, ok := s.kvs[key]; ok {
		kv.CreateRevision = old.CreateRevision
		kv.Version = old.Version + 1
	} else {
		kv.CreateRevision = s.rev
		kv.Version = 1
	}
	s.kvs[key] = kv
	s.notify(&clientv3.Event{Type: mvccpb.PUT, Kv: kv})
	return s.rev
}

func (s *EtcdStore) notify(ev *clientv3.Event) {
	for w := range s.watchers {
		if !strings.HasPrefix(string(ev.Kv.Key), w.prefix) {
			continue
		}
		select {
		case w.ch <- clientv3.WatchResponse{Header: pb.ResponseHeader{Revision: s.rev}, Events: []*clientv3.Event{ev}}:
		default:
		}
	}
}

type memClient struct {
	clientv3.KV
	clientv3.Lease
	clientv3.Watcher

	store *EtcdStore
	mu    sync.Mutex
	lease clientv3.LeaseID
}

func (c *memClient) Put(_ context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	var lease clientv3.LeaseID
	if len(opts) > 0 {
		c.mu.Lock()
		lease = c.lease
		c.mu.Unlock()
	}
	rev := c.store.put(key, val, lease)
	return &clientv3.PutResponse{Header: &pb.ResponseHeader{Revision: rev}}, nil
}

func (c *memClient) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &clientv3.GetResponse{Header: &pb.ResponseHeader{Revision: s.rev}}
	for k, kv := range s.kvs {
		if strings.HasPrefix(k, key) {
			resp.Kvs = append(resp.Kvs, kv)
		}
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func (c *memClient) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	s := c.store
	s.mu.Lock()
	s.nextLease++
	id := clientv3.LeaseID(s.nextLease)
	s.mu.Unlock()

	c.mu.Lock()
	c.lease = id
	c.mu.Unlock()
	return &clientv3.LeaseGrantResponse{ResponseHeader: &pb.ResponseHeader{}, ID: id, TTL: ttl}, nil
}

func (c *memClient) KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	s := c.store
	s.mu.Lock()
	s.keepAlive++
	s.mu.Unlock()

	ch := make(chan *clientv3.LeaseKeepAliveResponse)
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.keepAlive--
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Revoke deletes every key attached to the lease.
func (c *memClient) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[id] = true
	for k, kv := range s.kvs {
		if clientv3.LeaseID(kv.Lease) != id {
			continue
		}
		s.rev++
		delete(s.kvs, k)
		s.notify(&clientv3.Event{Type: mvccpb.DELETE, Kv: &mvccpb.KeyValue{Key: kv.Key, ModRevision: s.rev}})
	}
	return &clientv3.LeaseRevokeResponse{Header: &pb.ResponseHeader{Revision: s.rev}}, nil
}

func (c *memClient) Watch(ctx context.Context, key string, _ ...clientv3.OpOption) clientv3.WatchChan {
	s := c.store
	w := &memWatch{prefix: key, ch: make(chan clientv3.WatchResponse, 64)}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, w)
		close(w.ch)
		s.mu.Unlock()
	}()
	return w.ch
}

func (c *memClient) Close() error {
	return nil
}
