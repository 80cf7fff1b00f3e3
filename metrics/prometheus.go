package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "eoselect"

// PrometheusObserver turns selection records into Prometheus series.
type PrometheusObserver struct {
	selectionsTotal     *prometheus.CounterVec
	selectionDuration   prometheus.Histogram
	expandedCollections prometheus.Histogram
	selectedCoverages   prometheus.Histogram
	cyclesTotal         prometheus.Counter
}

// NewPrometheusObserver registers the selection collectors with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		selectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "selections_total",
			Help:      "Total selections by outcome",
		}, []string{"outcome"}),
		selectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "selection_duration_seconds",
			Help:      "Selection duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		expandedCollections: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "expanded_collections",
			Help:      "Number of collections reached per selection",
			Buckets:   []float64{1, 2, 5, 10, 50, 100, 500, 1000},
		}),
		selectedCoverages: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "selected_coverages",
			Help:      "Number of coverages returned per selection",
			Buckets:   []float64{0, 1, 2, 5, 10, 100, 1000, 10000},
		}),
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hierarchy_cycles_total",
			Help:      "Total membership cycles met during expansion",
		}),
	}
}

func (p *PrometheusObserver) Observe(info *MetricsInfo) {
	outcome := info.Outcome
	if outcome == "" {
		outcome = OutcomeOK
	}
	p.selectionsTotal.WithLabelValues(outcome).Inc()
	p.selectionDuration.Observe(info.ReqDuration.Seconds())

	if info.Selection == nil || outcome != OutcomeOK {
		return
	}
	p.expandedCollections.Observe(float64(info.Selection.NumCollections))
	p.selectedCoverages.Observe(float64(info.Selection.NumCoverages))
	p.cyclesTotal.Add(float64(info.Selection.NumCycles))
}

// WriteTextfile dumps everything gathered by g in the text exposition
// format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
