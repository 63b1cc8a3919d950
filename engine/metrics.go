package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder is an optional instrumentation seam for the tracking
// engine. A host application wires one in via WithMetrics; the engine
// itself never depends on a concrete recorder.
type MetricsRecorder interface {
	// RecordAccept is called once per Record.AcceptChanges call, with the
	// subtree size (the number of nodes visited), whether it committed, and
	// the wall-clock time the call took (validation plus commit).
	// Collection.AcceptChanges does not call it.
	RecordAccept(subtreeSize int, committed bool, took time.Duration)
	// RecordReject is called once per Record.RejectChanges call, with the
	// subtree size visited and the wall-clock time the call took.
	// Collection.RejectChanges does not call it.
	RecordReject(subtreeSize int, took time.Duration)
	// RecordMutation is called once per scalar/complex/collection mutation,
	// tagged by the kind of property touched.
	RecordMutation(kind FieldKind)
}

// noopMetrics discards every observation. It is the default recorder so the
// engine never pays for instrumentation a caller didn't ask for.
type noopMetrics struct{}

func (noopMetrics) RecordAccept(int, bool, time.Duration) {}
func (noopMetrics) RecordReject(int, time.Duration)       {}
func (noopMetrics) RecordMutation(FieldKind)              {}

var defaultMetrics MetricsRecorder = noopMetrics{}

// PrometheusMetricsRecorder adapts MetricsRecorder onto client_golang
// collectors, for a host application that already exposes a /metrics
// endpoint and wants the tracking engine's activity folded into it.
type PrometheusMetricsRecorder struct {
	Accepts        *prometheus.CounterVec
	Rejects        prometheus.Counter
	Mutations      *prometheus.CounterVec
	AcceptDuration *prometheus.HistogramVec
	RejectDuration prometheus.Histogram
}

// durationBuckets covers a single scalar Set (microseconds) through a large
// collection accept/reject walking thousands of items (hundreds of
// milliseconds), in seconds.
var durationBuckets = []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1}

// NewPrometheusMetricsRecorder registers and returns a PrometheusMetricsRecorder
// on reg. Passing nil registers against prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		Accepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "accept_total",
			Help:      "AcceptChanges calls, labeled by outcome.",
		}, []string{"outcome"}),
		Rejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "reject_total",
			Help:      "RejectChanges calls.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "mutation_total",
			Help:      "Property mutations, labeled by property kind.",
		}, []string{"kind"}),
		AcceptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trackcore",
			Name:      "accept_duration_seconds",
			Help:      "AcceptChanges wall-clock duration, labeled by outcome.",
			Buckets:   durationBuckets,
		}, []string{"outcome"}),
		RejectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trackcore",
			Name:      "reject_duration_seconds",
			Help:      "RejectChanges wall-clock duration.",
			Buckets:   durationBuckets,
		}),
	}
	reg.MustRegister(r.Accepts, r.Rejects, r.Mutations, r.AcceptDuration, r.RejectDuration)
	return r
}

func (r *PrometheusMetricsRecorder) RecordAccept(_ int, committed bool, took time.Duration) {
	outcome := "committed"
	if !committed {
		outcome = "rejected_by_validator"
	}
	r.Accepts.WithLabelValues(outcome).Inc()
	r.AcceptDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (r *PrometheusMetricsRecorder) RecordReject(_ int, took time.Duration) {
	r.Rejects.Inc()
	r.RejectDuration.Observe(took.Seconds())
}

func (r *PrometheusMetricsRecorder) RecordMutation(kind FieldKind) {
	var label string
	switch kind {
	case FieldScalar:
		label = "scalar"
	case FieldComplex:
		label = "complex"
	case FieldCollection:
		label = "collection"
	default:
		label = "ineligible"
	}
	r.Mutations.WithLabelValues(label).Inc()
}
