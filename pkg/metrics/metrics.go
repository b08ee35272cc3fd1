package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bazaar/pkg/market"
)

// Metrics holds the marketplace collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	events           *prometheus.CounterVec
	settledVolume    *prometheus.CounterVec
	feesCollected    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaar_operations_total",
				Help: "Marketplace operations by name and outcome code",
			},
			[]string{"operation", "code"},
		),
		operationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bazaar_operation_duration_seconds",
				Help:    "Latency of marketplace operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaar_events_total",
				Help: "Committed marketplace events by type",
			},
			[]string{"type"},
		),
		settledVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaar_settled_volume_total",
				Help: "Settled amount by trading mechanism",
			},
			[]string{"kind"},
		),
		feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bazaar_fees_collected_total",
			Help: "Fees booked into the treasury",
		}),
	}

	m.Registry.MustRegister(
		m.operations,
		m.operationLatency,
		m.httpRequests,
		m.events,
		m.settledVolume,
		m.feesCollected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one engine call. err may be nil.
func (m *Metrics) ObserveOperation(operation string, started time.Time, err error) {
	code := "OK"
	if err != nil {
		code = market.CodeOf(err)
		if code == "" {
			code = "Internal"
		}
	}
	m.operations.WithLabelValues(operation, code).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Middleware counts HTTP requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Notify implements market.Notifier.
func (m *Metrics) Notify(_ context.Context, ev market.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()

	var kind market.Kind
	switch ev.Type {
	case market.EventListingSold:
		kind = market.KindListing
	case market.EventOfferAccepted:
		kind = market.KindOffer
	case market.EventAuctionEnded:
		if ev.Buyer == nil {
			return
		}
		kind = market.KindAuction
	default:
		return
	}
	m.settledVolume.WithLabelValues(string(kind)).Add(float64(ev.Amount))
	m.feesCollected.Add(float64(ev.Fee))
}
