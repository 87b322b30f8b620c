package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const _namespace = "mothra"

// Stats is a snapshot of the counters kept by a session.
type Stats struct {
	ConnectedPeers  int
	PendingRequests int
	AwaitingReplies int
	QueuedEvents    int

	GossipSent      int64
	GossipReceived  int64
	GossipForwarded int64
	GossipDuplicate int64
	GossipInvalid   int64
	RequestsSent    int64
	ResponsesSent   int64
	RPCReceived     int64
	RPCTimedOut     int64
	RPCStray        int64
	RPCExpired      int64
	EventsDropped   int64
	EventsStale     int64
	FramesLimited   int64
	SendsDropped    int64
}

// Source is implemented by *session.Session.
type Source interface {
	Stats() Stats
}

// Metrics exposes the stats of one session on its own registry, so several
// sessions can live in one process.
type Metrics struct {
	registry *prometheus.Registry
}

type statMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(Stats) float64
}

// statsCollector takes one Stats snapshot per scrape and reports every
// metric from it.
type statsCollector struct {
	src     Source
	metrics []statMetric
}

func newStatsCollector(src Source) *statsCollector {
	c := &statsCollector{src: src}

	gauge := func(name, help string, value func(Stats) int) {
		c.metrics = append(c.metrics, statMetric{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(_namespace, "", name), help, nil, nil),
			valueType: prometheus.GaugeValue,
			value:     func(s Stats) float64 { return float64(value(s)) },
		})
	}
	counter := func(name, help string, value func(Stats) int64) {
		c.metrics = append(c.metrics, statMetric{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(_namespace, "", name), help, nil, nil),
			valueType: prometheus.CounterValue,
			value:     func(s Stats) float64 { return float64(value(s)) },
		})
	}

	gauge("connected_peers", "Peers currently connected.", func(s Stats) int { return s.ConnectedPeers })
	gauge("rpc_pending_requests", "Outbound requests waiting for a response.", func(s Stats) int { return s.PendingRequests })
	gauge("rpc_awaiting_responses", "Inbound requests waiting for a local response.", func(s Stats) int { return s.AwaitingReplies })
	gauge("handler_queued_events", "Events waiting for the handler.", func(s Stats) int { return s.QueuedEvents })

	counter("gossip_sent_total", "Gossip messages published locally.", func(s Stats) int64 { return s.GossipSent })
	counter("gossip_received_total", "Gossip messages received from peers.", func(s Stats) int64 { return s.GossipReceived })
	counter("gossip_forwarded_total", "Gossip frames forwarded to other peers.", func(s Stats) int64 { return s.GossipForwarded })
	counter("gossip_duplicates_total", "Gossip messages received more than once.", func(s Stats) int64 { return s.GossipDuplicate })
	counter("gossip_invalid_total", "Gossip frames dropped for missing a message id.", func(s Stats) int64 { return s.GossipInvalid })
	counter("rpc_requests_sent_total", "RPC requests sent.", func(s Stats) int64 { return s.RequestsSent })
	counter("rpc_responses_sent_total", "RPC responses sent.", func(s Stats) int64 { return s.ResponsesSent })
	counter("rpc_received_total", "RPC requests and responses received.", func(s Stats) int64 { return s.RPCReceived })
	counter("rpc_timeouts_total", "Outbound requests that timed out.", func(s Stats) int64 { return s.RPCTimedOut })
	counter("rpc_stray_responses_total", "Responses that matched no pending request.", func(s Stats) int64 { return s.RPCStray })
	counter("rpc_expired_requests_total", "Inbound requests never answered locally.", func(s Stats) int64 { return s.RPCExpired })
	counter("handler_dropped_events_total", "Events dropped because the handler queue was full.", func(s Stats) int64 { return s.EventsDropped })
	counter("handler_stale_events_total", "Events dropped because their peer disconnected.", func(s Stats) int64 { return s.EventsStale })
	counter("rate_limited_frames_total", "Inbound frames dropped by the rate limiter.", func(s Stats) int64 { return s.FramesLimited })
	counter("send_queue_drops_total", "Outbound frames dropped because a send queue was full.", func(s Stats) int64 { return s.SendsDropped })

	return c
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(s))
	}
}

func New(src Source) *Metrics {
	reg := prometheus.NewRegistry()

	startTime := time.Now()
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: _namespace, Name: "uptime_seconds", Help: "Session uptime in seconds."},
			func() float64 { return time.Since(startTime).Seconds() },
		),
		newStatsCollector(src),
	)

	return &Metrics{registry: reg}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes /metrics. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve serves /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
