package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector using Prometheus metrics
type PrometheusCollector struct {
	commands        *prometheus.CounterVec
	prompts         *prometheus.CounterVec
	remoteErrors    *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusCollector creates a collector registered on its own registry
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "tsmp"
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pathcom_commands_total",
			Help:      "Total number of commands sent to pathcom",
		},
		[]string{"session"},
	)

	pc.prompts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pathcom_prompts_total",
			Help:      "Total number of pathcom prompts detected",
		},
		[]string{"session"},
	)

	pc.remoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pathcom_remote_errors_total",
			Help:      "Total number of errors reported by pathcom",
		},
		[]string{"session"},
	)

	pc.sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pathcom_session_duration_seconds",
			Help:      "Duration of pathcom command sequences",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"session", "status"},
	)

	pc.registry.MustRegister(
		pc.commands,
		pc.prompts,
		pc.remoteErrors,
		pc.sessionDuration,
	)

	return pc
}

func (pc *PrometheusCollector) CommandSent(session string) {
	pc.commands.WithLabelValues(session).Inc()
}

func (pc *PrometheusCollector) PromptSeen(session string) {
	pc.prompts.WithLabelValues(session).Inc()
}

func (pc *PrometheusCollector) RemoteError(session string) {
	pc.remoteErrors.WithLabelValues(session).Inc()
}

func (pc *PrometheusCollector) SessionFinished(session string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pc.sessionDuration.WithLabelValues(session, status).Observe(duration.Seconds())
}

// Registry returns the registry holding the collector's metrics
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// WriteToTextfile writes the current metrics in the text exposition format,
// suitable for a node_exporter textfile collector directory.
func (pc *PrometheusCollector) WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, pc.registry)
}
