// Package metrics exposes run counters in the Prometheus textfile format
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
)

// Recorder holds the collectors of one run. It owns its registry so tests and
// repeated runs never collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	channelsProcessed *prometheus.CounterVec
	videosClassified  *prometheus.CounterVec
	shortProbes       *prometheus.CounterVec
	runDuration       prometheus.Gauge
	lastRunTimestamp  prometheus.Gauge
	lastRunSuccesses  prometheus.Gauge
}

// NewRecorder creates and registers all collectors
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.channelsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytstats_channels_processed_total",
			Help: "Channels processed, by result.",
		},
		[]string{"result"},
	)

	r.videosClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytstats_videos_classified_total",
			Help: "Videos classified, by type and by how the type was obtained.",
		},
		[]string{"type", "source"},
	)

	r.shortProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytstats_short_probes_total",
			Help: "Short-form probes, by outcome.",
		},
		[]string{"result"},
	)

	r.runDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytstats_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		},
	)

	r.lastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytstats_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)

	r.lastRunSuccesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytstats_last_run_success_channels",
			Help: "Channels that succeeded in the last run.",
		},
	)

	r.registry.MustRegister(
		r.channelsProcessed,
		r.videosClassified,
		r.shortProbes,
		r.runDuration,
		r.lastRunTimestamp,
		r.lastRunSuccesses,
	)
	return r
}

// Gatherer exposes the registry for inspection
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveShortProbe counts one short-form probe
func (r *Recorder) ObserveShortProbe(short bool, err error) {
	switch {
	case err != nil:
		r.shortProbes.WithLabelValues("error").Inc()
	case short:
		r.shortProbes.WithLabelValues("short").Inc()
	default:
		r.shortProbes.WithLabelValues("not_short").Inc()
	}
}

// ObserveChannel counts one finished channel
func (r *Recorder) ObserveChannel(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	r.channelsProcessed.WithLabelValues(result).Inc()
}

// ObserveVideos counts classified videos of one channel
func (r *Recorder) ObserveVideos(videos []youtube.ClassifiedVideo) {
	for _, v := range videos {
		r.videosClassified.WithLabelValues(string(v.Type), string(v.Source)).Inc()
	}
}

// ObserveRun records the outcome of a whole run
func (r *Recorder) ObserveRun(elapsed time.Duration, succeeded int, finishedAt time.Time) {
	r.runDuration.Set(elapsed.Seconds())
	r.lastRunSuccesses.Set(float64(succeeded))
	r.lastRunTimestamp.Set(float64(finishedAt.Unix()))
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
