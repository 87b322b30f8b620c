package pubsub

import (
	"sort"
	"sync"
	"time"

	"github.com/FluffyKebab/mothra/bridge"
	"github.com/FluffyKebab/mothra/peer"
	"go.uber.org/zap"
)

// Publisher is satisfied by *bridge.Bridge.
type Publisher interface {
	Publish(bridge.Event) error
}

// Router keeps the topics the local node is interested in and, per topic,
// the remote peers that announced a subscription.
type Router struct {
	mu          sync.RWMutex
	interest    map[string]int
	subscribers map[string]map[peer.ID]struct{}

	peers     bridge.PeerChecker
	publisher Publisher
	seen      *seenCache
	logger    *zap.Logger
}

func NewRouter(peers bridge.PeerChecker, publisher Publisher, opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Router{
		interest:    make(map[string]int),
		subscribers: make(map[string]map[peer.ID]struct{}),
		peers:       peers,
		publisher:   publisher,
		seen:        newSeenCache(o.seenTTL),
		logger:      o.logger,
	}
}

// Subscribe adds local interest in topic and reports whether it is the
// first.
func (r *Router) Subscribe(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interest[topic]++
	return r.interest[topic] == 1
}

// Unsubscribe removes one unit of local interest and reports whether it was
// the last. Unsubscribing from a topic with no interest does nothing.
func (r *Router) Unsubscribe(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.interest[topic]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.interest, topic)
		return true
	}
	r.interest[topic] = n - 1
	return false
}

func (r *Router) Interested(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.interest[topic] > 0
}

// Topics returns the topics with local interest, sorted.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]string, 0, len(r.interest))
	for topic := range r.interest {
		res = append(res, topic)
	}
	sort.Strings(res)
	return res
}

func (r *Router) AddSubscriber(topic string, p peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subscribers[topic]
	if !ok {
		set = make(map[peer.ID]struct{})
		r.subscribers[topic] = set
	}
	set[p] = struct{}{}
}

func (r *Router) RemoveSubscriber(topic string, p peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeSubscriber(topic, p)
}

// RemovePeer forgets every subscription of p.
func (r *Router) RemovePeer(p peer.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic := range r.subscribers {
		r.removeSubscriber(topic, p)
	}
}

func (r *Router) removeSubscriber(topic string, p peer.ID) {
	set, ok := r.subscribers[topic]
	if !ok {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(r.subscribers, topic)
	}
}

// Subscribers returns the connected peers subscribed to topic.
func (r *Router) Subscribers(topic string) []peer.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subscribers[topic]
	res := make([]peer.ID, 0, len(set))
	for p := range set {
		if r.peers != nil && !r.peers.Contains(p) {
			continue
		}
		res = append(res, p)
	}
	return res
}

// RouteInbound hands a gossip message received from source to the local
// handler. Messages on topics without local interest, or from peers that are
// not connected, are dropped. It reports whether an event was queued.
func (r *Router) RouteInbound(topic string, payload []byte, source peer.ID) bool {
	if !r.Interested(topic) {
		r.logger.Debug("dropping gossip for topic without interest", zap.String("topic", topic))
		return false
	}
	if r.peers != nil && !r.peers.Contains(source) {
		r.logger.Debug("dropping gossip from unknown peer",
			zap.String("topic", topic),
			zap.String("peer", source.ShortString()),
		)
		return false
	}

	return r.publisher.Publish(bridge.NewGossip(topic, source, payload)) == nil
}

// Seen marks msgID as seen and reports whether it had been seen before.
func (r *Router) Seen(msgID string) bool {
	return r.seen.add(msgID, time.Now())
}
