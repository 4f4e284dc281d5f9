package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qtex"

type PrometheusRecorder struct {
	builds        *prom.CounterVec
	buildDuration *prom.HistogramVec
	debounced     prom.Counter
	dropped       prom.Counter
	ignored       prom.Counter
	published     prom.Counter
	registry      *prom.Registry
	subscribers   prom.Gauge
}

func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &PrometheusRecorder{
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Build attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of build attempts including the remote call",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
		debounced: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_debounced_total",
			Help:      "Relevant filesystem events skipped by the debounce gate",
		}),
		dropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because a subscriber buffer was full",
		}),
		ignored: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Filesystem events rejected by the change filter",
		}),
		published: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Artifact notifications published on the bus",
		}),
		registry: reg,
		subscribers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_subscribers",
			Help:      "Connected preview viewers",
		}),
	}
	reg.MustRegister(r.builds, r.buildDuration, r.debounced, r.dropped, r.ignored, r.published, r.subscribers)
	return r
}

func (r *PrometheusRecorder) BuildFinished(mode string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.builds.WithLabelValues(mode, outcome).Inc()
	r.buildDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (r *PrometheusRecorder) EventDebounced()        { r.debounced.Inc() }
func (r *PrometheusRecorder) EventIgnored()          { r.ignored.Inc() }
func (r *PrometheusRecorder) NotificationDropped()   { r.dropped.Inc() }
func (r *PrometheusRecorder) NotificationPublished() { r.published.Inc() }

func (r *PrometheusRecorder) SubscribersChanged(n int) {
	r.subscribers.Set(float64(n))
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
