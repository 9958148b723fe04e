package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EntitiesProcessed *prometheus.CounterVec
	DatasetsProcessed *prometheus.CounterVec
	APIErrors         *prometheus.CounterVec
	RequestSeconds    *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	Discrepancies     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EntitiesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pinpoint_entities_processed_total",
			Help: "Total number of dataset entities processed, by command and outcome.",
		}, []string{"command", "status"}),
		DatasetsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pinpoint_datasets_processed_total",
			Help: "Total number of dataset files processed, by outcome.",
		}, []string{"status"}),
		APIErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pinpoint_provider_api_errors_total",
			Help: "Total number of errors received from the provider APIs.",
		}, []string{"provider", "endpoint"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinpoint_provider_request_duration_seconds",
			Help:    "Duration of requests to the provider APIs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		CacheLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pinpoint_place_cache_lookups_total",
			Help: "Place details cache lookups, by result.",
		}, []string{"result"}),
		Discrepancies: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pinpoint_verification_discrepancies_total",
			Help: "Entities whose stored coordinates drifted past the report threshold.",
		}),
	}
}

// ObserveRequest records the duration of one API call and counts it as an error when err is set.
func (m *Metrics) ObserveRequest(provider, endpoint string, started time.Time, err error) {
	m.RequestSeconds.WithLabelValues(provider, endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		m.APIErrors.WithLabelValues(provider, endpoint).Inc()
	}
}

// WriteTextfile dumps the gathered metrics in the node exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
