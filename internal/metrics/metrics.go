package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "documents_loaded_total",
			Help:      "Load candidates by result (accepted, duplicate, unsupported, page_count_unavailable)",
		},
		[]string{"result"},
	)

	merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "merges_total",
			Help:      "Merge attempts by result",
		},
		[]string{"result"},
	)

	mergeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfmerger",
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge attempts by result",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	mergedPages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfmerger",
			Name:      "merge_pages_total",
			Help:      "Total pages written into delivered merge outputs",
		},
	)

	workspaceDocs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfmerger",
			Name:      "workspace_documents",
			Help:      "Documents currently registered in the workspace",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(documentsLoaded, merges, mergeLatency, mergedPages, workspaceDocs)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncLoaded(result string) { documentsLoaded.WithLabelValues(result).Inc() }

func ObserveMerge(result string, dur time.Duration) {
	merges.WithLabelValues(result).Inc()
	mergeLatency.WithLabelValues(result).Observe(dur.Seconds())
}

func AddMergedPages(n int) { mergedPages.Add(float64(n)) }

func SetWorkspaceDocuments(n int) { workspaceDocs.Set(float64(n)) }
