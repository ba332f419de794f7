package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMessagesTotal counts kafka messages handled by the ingest worker.
// result is one of ingested, duplicate, dead_lettered, retried.
var IngestMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docreview", Subsystem: "ingest", Name: "messages_total",
	Help: "Kafka messages handled by the ingest worker by result",
}, []string{"result"})
