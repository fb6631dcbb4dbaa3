package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market_links"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	links        *prom.CounterVec
	syncs        *prom.CounterVec
	syncDuration prom.Histogram
	cache        *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the collectors on reg. A nil
// reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.links = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Anchor and link hrefs processed, by result",
		}, []string{"result"})
		pr.syncs = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Market syncs by outcome",
		}, []string{"outcome"})
		pr.syncDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of fetch, parse and persist for one shop",
			Buckets:   prom.DefBuckets,
		})
		pr.cache = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_lookups_total",
			Help:      "Resolved config cache lookups by result",
		}, []string{"result"})
		reg.MustRegister(pr.links, pr.syncs, pr.syncDuration, pr.cache)
	})
	return pr
}

func (p *PrometheusRecorder) AddLinks(result LinkResult, n int) {
	if p == nil || p.links == nil || n <= 0 {
		return
	}
	p.links.WithLabelValues(string(result)).Add(float64(n))
}

func (p *PrometheusRecorder) IncSync(outcome SyncOutcome) {
	if p == nil || p.syncs == nil {
		return
	}
	p.syncs.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveSyncDuration(d time.Duration) {
	if p == nil || p.syncDuration == nil {
		return
	}
	p.syncDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCache(hit bool) {
	if p == nil || p.cache == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cache.WithLabelValues(res).Inc()
}

// HTTPHandler serves the metrics registered on reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
