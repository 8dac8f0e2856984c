package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "ingests_total",
			Help:      "Total number of ingest requests by result",
		},
		[]string{"result"},
	)

	filesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "files_ingested_total",
			Help:      "Total number of files ingested",
		},
	)

	chunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "chunks_stored_total",
			Help:      "Total number of chunks stored",
		},
	)

	ingestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of ingest requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// queriesTotal outcome: answered, no_results, error.
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total number of queries by outcome",
		},
		[]string{"outcome"},
	)

	queryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "localrag",
			Subsystem: "rag",
			Name:      "query_duration_seconds",
			Help:      "Duration of queries including generation, in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
