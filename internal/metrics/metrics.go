package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ShapeMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_shape_mutations_total",
		Help: "Total shape store mutation calls by operation and kind",
	}, []string{"op", "kind"})
	ShapeFeatures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geofence_shape_features",
		Help: "Features currently held per geometry kind",
	}, []string{"kind"})
	ConvertRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_convert_requests_total",
		Help: "Total conversion API requests",
	})
	ConvertFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_convert_fail_total",
		Help: "Total conversion API failures",
	})
	ConvertDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geofence_convert_duration_ms",
		Help:    "Conversion API call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_feature_cache_hits_total",
		Help: "Reference cache hits by backend",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_feature_cache_misses_total",
		Help: "Reference cache misses by backend",
	}, []string{"backend"})
	ImportedFeaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_imported_features_total",
		Help: "Features imported by origin (shapefile, collection, restore, convert)",
	}, []string{"origin"})
)

func init() {
	prometheus.MustRegister(ShapeMutationsTotal)
	prometheus.MustRegister(ShapeFeatures)
	prometheus.MustRegister(ConvertRequestsTotal)
	prometheus.MustRegister(ConvertFailTotal)
	prometheus.MustRegister(ConvertDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ImportedFeaturesTotal)
}

// Handler：Prometheus 抓取入口，由主入口挂载到 <API_BASE>/metrics
func Handler() http.Handler { return promhttp.Handler() }
