package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every filmstrip metric. It is separate from the default
// registry so textfile output carries no Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	StageDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filmstrip_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "filmstrip_frames_extracted_total",
		Help: "Total number of key frames written",
	})

	DescriptionRequestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "filmstrip_description_requests_total",
		Help: "Description requests sent, by outcome",
	}, []string{"outcome"})

	LastRunSuccess = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "filmstrip_last_run_success",
		Help: "1 if the last pipeline run finished without error, 0 otherwise",
	})
)

// WriteTextfile writes the current metric values in the Prometheus text format,
// suitable for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics to '%s': %w", path, err)
	}
	return nil
}
