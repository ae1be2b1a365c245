// Package metrics exports index maintenance and search activity as
// Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/poiesic/quicksearch/mapreduce"
	"github.com/poiesic/quicksearch/search"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quicksearch"

// Search outcome label values.
const (
	OutcomeHit        = "hit"
	OutcomeZeroResult = "zero_result"
	OutcomeError      = "error"
)

// Metrics holds the collectors. It implements mapreduce.Observer and
// search.Recorder so it can be handed straight to the engine and searcher.
type Metrics struct {
	ChangesProcessed *prometheus.CounterVec
	BatchesCommitted *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	MapErrors        *prometheus.CounterVec
	UpdateDuration   *prometheus.HistogramVec
	LastSeq          *prometheus.GaugeVec
	SearchQueries    *prometheus.CounterVec
	SearchLatency    prometheus.Histogram
	SearchResults    prometheus.Histogram
}

var (
	_ mapreduce.Observer = (*Metrics)(nil)
	_ search.Recorder    = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ChangesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "changes_processed_total",
			Help:      "Changes read from the change feed by view kind.",
		}, []string{"kind"}),
		BatchesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "batches_committed_total",
			Help:      "Batches persisted by view kind.",
		}, []string{"kind"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "records_written_total",
			Help:      "Index records written, tombstones included, by view kind.",
		}, []string{"kind"}),
		MapErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "map_errors_total",
			Help:      "Documents whose map function failed, by view kind.",
		}, []string{"kind"}),
		UpdateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "update_duration_seconds",
			Help:      "Duration of index maintenance passes.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		}, []string{"kind"}),
		LastSeq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "last_seq",
			Help:      "Highest change sequence persisted, by view kind.",
		}, []string{"kind"}),
		SearchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by outcome (hit, zero_result, error).",
		}, []string{"outcome"}),
		SearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search latency in seconds, index maintenance included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results_count",
			Help:      "Matching documents per search, before pagination.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500},
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChangesProcessed,
		m.BatchesCommitted,
		m.RecordsWritten,
		m.MapErrors,
		m.UpdateDuration,
		m.LastSeq,
		m.SearchQueries,
		m.SearchLatency,
		m.SearchResults,
	}
}

// Kind classifies a view name. View names are content hashes or random
// IDs, so they are never used as label values directly.
func Kind(view string) string {
	switch {
	case strings.HasPrefix(view, search.IndexPrefix):
		return "search"
	case strings.HasPrefix(view, mapreduce.TemporaryPrefix):
		return "temporary"
	}
	return "view"
}

func (m *Metrics) BatchCommitted(view string, seq uint64, changes, records int) {
	kind := Kind(view)
	m.ChangesProcessed.WithLabelValues(kind).Add(float64(changes))
	m.BatchesCommitted.WithLabelValues(kind).Inc()
	m.RecordsWritten.WithLabelValues(kind).Add(float64(records))
	m.LastSeq.WithLabelValues(kind).Set(float64(seq))
}

func (m *Metrics) MapFailed(view string, _ string) {
	m.MapErrors.WithLabelValues(Kind(view)).Inc()
}

func (m *Metrics) UpdateFinished(view string, _ uint64, _ int, elapsed time.Duration) {
	m.UpdateDuration.WithLabelValues(Kind(view)).Observe(elapsed.Seconds())
}

func (m *Metrics) SearchCompleted(_ string, elapsed time.Duration, hits int, err error) {
	m.SearchLatency.Observe(elapsed.Seconds())
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		m.SearchQueries.WithLabelValues(OutcomeError).Inc()
		return
	case err != nil:
		return
	case hits == 0:
		m.SearchQueries.WithLabelValues(OutcomeZeroResult).Inc()
	default:
		m.SearchQueries.WithLabelValues(OutcomeHit).Inc()
	}
	m.SearchResults.Observe(float64(hits))
}
