package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "uploads_total",
		Help:      "Total number of ingested images by location source",
	}, []string{"location_source"})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "upload_bytes_total",
		Help:      "Total bytes written to the blob store by uploads",
	})

	RetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "retrievals_total",
		Help:      "Image retrievals by outcome",
	}, []string{"outcome"})

	DeletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "deletions_total",
		Help:      "Image deletions by outcome",
	}, []string{"outcome"})

	FaceTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "face_tasks_total",
		Help:      "Face recognition tasks by outcome",
	}, []string{"outcome"})

	FaceQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lastseen",
		Name:      "face_queue_depth",
		Help:      "Pending face recognition tasks in the FACES stream",
	})

	FaceMatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "face_matches_total",
		Help:      "Total number of face matches attached to images",
	})

	JanitorRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lastseen",
		Name:      "janitor_removed_total",
		Help:      "Orphaned blobs and dangling records removed by the janitor",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lastseen",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lastseen",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
