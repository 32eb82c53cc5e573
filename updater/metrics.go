package updater

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "fever"
	metricsSubsystem = "updater"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "checks_total",
			Help:      "Update check outcomes reported by the platform primitive",
		},
		[]string{"outcome"},
	)
	downloadTransferred = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "download_transferred_bytes",
			Help:      "Bytes transferred of the in-flight update download",
		},
	)
	downloadPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "download_percent",
			Help:      "Completion percentage of the in-flight update download",
		},
	)
)

func init() {
	prometheus.MustRegister(checksTotal, downloadTransferred, downloadPercent)
}
