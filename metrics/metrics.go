// Package metrics exports runtime lifecycle events to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
	"github.com/wippyai/physx-runtime/resource"
	"github.com/wippyai/physx-runtime/runtime"
)

const namespace = "physx"

// Collector records lifecycle metrics. It implements runtime.Listener and
// resource.Observer; register it on a Runtime with runtime.WithListener
// and runtime.WithObserver.
type Collector struct {
	loads           *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	state           prometheus.Gauge
	resources       prometheus.Gauge
	resourceEvents  *prometheus.CounterVec
	destroys        prometheus.Counter
	probeSupported  prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	_ runtime.Listener  = (*Collector)(nil)
	_ resource.Observer = (*Collector)(nil)
)

// New creates a Collector and registers it on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "loads_total",
				Help:      "Completed initialization cycles by resolved mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "load_duration_seconds",
				Help:      "Duration of initialization cycles in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "state",
			Help:      "Runtime state: 0 uninitialized, 1 initializing, 2 ready",
		}),
		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "resources",
			Help:      "Live native resources in the chain",
		}),
		resourceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "resource_events_total",
				Help:      "Native resource creations and releases by stage",
			},
			[]string{"stage", "event", "outcome"},
		),
		destroys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "destroys_total",
			Help:      "Teardowns of a ready runtime",
		}),
		probeSupported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "probe_supported",
			Help:      "1 when the capability probe found the accelerated build usable",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method", "status"},
		),
	}

	for _, col := range []prometheus.Collector{
		c.loads, c.loadDuration, c.state, c.resources, c.resourceEvents,
		c.destroys, c.probeSupported, c.requests, c.requestDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindAlreadyExists, err, "register metrics")
		}
	}
	return c, nil
}

// OnStateChange implements runtime.Listener.
func (c *Collector) OnStateChange(from, to runtime.State) {
	c.state.Set(float64(to))
	if from == runtime.StateReady && to == runtime.StateUninitialized {
		c.destroys.Inc()
	}
}

// OnLoad implements runtime.Listener.
func (c *Collector) OnLoad(mode physxruntime.Mode, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = outcomeLabel(err)
	}
	c.loads.WithLabelValues(mode.String(), outcome).Inc()
	c.loadDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
}

// OnResourceEvent implements resource.Observer.
func (c *Collector) OnResourceEvent(e resource.Event) {
	outcome := "ok"
	if e.Err != nil {
		outcome = "error"
	}
	switch e.Type {
	case resource.EventCreated:
		c.resources.Inc()
		c.resourceEvents.WithLabelValues(e.Stage.String(), "created", outcome).Inc()
	case resource.EventReleased:
		c.resources.Dec()
		c.resourceEvents.WithLabelValues(e.Stage.String(), "released", outcome).Inc()
	}
}

// SetAcceleratedSupported records the capability probe result.
func (c *Collector) SetAcceleratedSupported(ok bool) {
	if ok {
		c.probeSupported.Set(1)
	} else {
		c.probeSupported.Set(0)
	}
}

func outcomeLabel(err error) string {
	if kind := errors.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Middleware instruments requests by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		status := strconv.Itoa(sr.status)
		path := routePatternOrPath(r)
		c.requests.WithLabelValues(path, r.Method, status).Inc()
		c.requestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
