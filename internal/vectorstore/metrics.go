package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider label values.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

var (
	// DocumentsAdded counts documents written, by provider.
	DocumentsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "vectorstore",
			Name:      "documents_added_total",
			Help:      "Total number of documents written to the vector store",
		},
		[]string{"provider"},
	)

	// CollectionDocuments tracks the last known document count per collection.
	CollectionDocuments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "localrag",
			Subsystem: "vectorstore",
			Name:      "collection_documents",
			Help:      "Number of documents in a collection as of the last write or count",
		},
		[]string{"provider", "collection"},
	)

	// QueryDuration tracks nearest-neighbour query latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "localrag",
			Subsystem: "vectorstore",
			Name:      "query_duration_seconds",
			Help:      "Duration of vector store queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// QueriesTotal counts queries by result (success, error).
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "vectorstore",
			Name:      "queries_total",
			Help:      "Total number of vector store queries",
		},
		[]string{"provider", "result"},
	)
)

func observeQuery(provider string, start time.Time, err error) {
	QueryDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		QueriesTotal.WithLabelValues(provider, "error").Inc()
	} else {
		QueriesTotal.WithLabelValues(provider, "success").Inc()
	}
}
