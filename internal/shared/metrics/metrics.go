package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	uploadFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dms_upload_files_total",
		Help: "Uploaded files by outcome.",
	}, []string{"result"})

	extractionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dms_extraction_failures_total",
		Help: "Text extraction failures by file type.",
	}, []string{"file_type"})

	uploadFileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dms_upload_file_duration_seconds",
		Help:    "Time spent processing a single uploaded file.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	storageDeleteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dms_storage_delete_failures_total",
		Help: "Storage objects that could not be removed after their record was deleted.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dms_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})
)

func init() {
	Registry.MustRegister(
		uploadFilesTotal,
		extractionFailuresTotal,
		uploadFileDuration,
		storageDeleteFailuresTotal,
		httpRequestsTotal,
		collectors.NewGoCollector(),
	)
}

// ObserveUploadFile records the outcome of processing one uploaded file.
func ObserveUploadFile(result string, elapsed time.Duration) {
	uploadFilesTotal.WithLabelValues(result).Inc()
	uploadFileDuration.Observe(elapsed.Seconds())
}

// IncExtractionFailure counts a failed text extraction.
func IncExtractionFailure(fileType string) {
	extractionFailuresTotal.WithLabelValues(fileType).Inc()
}

// IncStorageDeleteFailure counts a leaked storage object.
func IncStorageDeleteFailure() {
	storageDeleteFailuresTotal.Inc()
}

// ObserveRequest counts one completed HTTP request.
func ObserveRequest(route, method string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware counts requests by matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodOptions {
			return
		}
		ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status())
	}
}
