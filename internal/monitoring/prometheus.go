package monitoring

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lakescan"

type promMetrics struct {
	registry          *prometheus.Registry
	scans             *prometheus.CounterVec
	queries           *prometheus.CounterVec
	rowsRead          prometheus.Counter
	rowsReturned      prometheus.Counter
	filesPruned       prometheus.Counter
	scanDuration      prometheus.Histogram
	queryDuration     prometheus.Histogram
	operationDuration *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	m := &promMetrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_scans_total",
			Help:      "Data files read, by outcome.",
		}, []string{"status"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries executed, by outcome.",
		}, []string{"status"}),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows decoded from data files before filtering.",
		}),
		rowsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_returned_total",
			Help:      "Rows in query results.",
		}),
		filesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_pruned_total",
			Help:      "Files skipped because their statistics ruled out every row.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_scan_duration_seconds",
			Help:      "Time spent reading one data file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end query execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in dataset operations such as listing and schema inference.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	m.registry.MustRegister(
		m.scans, m.queries, m.rowsRead, m.rowsReturned, m.filesPruned,
		m.scanDuration, m.queryDuration, m.operationDuration,
	)
	return m
}
