package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricNamespace = "pdsh"

// Document store counters.
var (
	//nolint:gochecknoglobals
	documentsInsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_inserted_total",
		Help:      "Total number of documents inserted by add operations.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	documentsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_removed_total",
		Help:      "Total number of documents deleted by remove operations.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	documentsFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "documents_fetched_total",
		Help:      "Total number of documents read from result cursors.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	findExecutionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "find_executions_total",
		Help:      "Total number of executed find operations.",
		Namespace: metricNamespace,
	})

	//nolint:gochecknoglobals
	operationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "operation_errors_total",
		Help:      "Total number of failed operations by operation name.",
		Namespace: metricNamespace,
	}, []string{"op"})
)

// Replica set membership metrics.
var (
	//nolint:gochecknoglobals
	membershipChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "membership_changes_total",
		Help:      "Total number of replica set membership changes.",
		Namespace: metricNamespace,
	}, []string{"op"})

	//nolint:gochecknoglobals
	probeDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "probe_duration_seconds",
		Help:      "Duration of instance reachability probes in seconds.",
		Namespace: metricNamespace,
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"result"})

	//nolint:gochecknoglobals
	replicaSetMembers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "replica_set_members",
		Help:      "Number of members in each replica set.",
		Namespace: metricNamespace,
	}, []string{"replica_set"})
)

// Init initializes and registers the metrics.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: metricNamespace,
	}))

	reg.MustRegister(
		documentsInsertedTotal,
		documentsRemovedTotal,
		documentsFetchedTotal,
		findExecutionsTotal,
		operationErrorsTotal,

		membershipChangesTotal,
		probeDurationSeconds,
		replicaSetMembers,
	)
}

// AddDocumentsInserted increments the inserted documents counter.
func AddDocumentsInserted(v int) {
	documentsInsertedTotal.Add(float64(v))
}

// AddDocumentsRemoved increments the removed documents counter.
func AddDocumentsRemoved(v int64) {
	documentsRemovedTotal.Add(float64(v))
}

// IncDocumentsFetched increments the fetched documents counter.
func IncDocumentsFetched() {
	documentsFetchedTotal.Inc()
}

// IncFindExecutions increments the executed find counter.
func IncFindExecutions() {
	findExecutionsTotal.Inc()
}

// IncOperationErrors increments the failed operation counter for op.
func IncOperationErrors(op string) {
	operationErrorsTotal.WithLabelValues(op).Inc()
}

// IncMembershipChanges increments the membership change counter for op.
func IncMembershipChanges(op string) {
	membershipChangesTotal.WithLabelValues(op).Inc()
}

// ObserveProbeDuration records the duration of a reachability probe.
func ObserveProbeDuration(ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}

	probeDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// SetReplicaSetMembers sets the member count gauge of a replica set.
func SetReplicaSetMembers(name string, n int) {
	replicaSetMembers.WithLabelValues(name).Set(float64(n))
}

// DeleteReplicaSet removes the gauges of a dropped replica set.
func DeleteReplicaSet(name string) {
	replicaSetMembers.DeleteLabelValues(name)
}
