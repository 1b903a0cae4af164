package bundlelib

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "warpbundle"

// Metrics are the Prometheus collectors of a Manager.
type Metrics struct {
	downloads         *prometheus.CounterVec
	downloadedBytes   prometheus.Counter
	loadedBundles     prometheus.Gauge
	inflightFetches   prometheus.Gauge
	queuedDownloads   prometheus.Gauge
	pendingOperations prometheus.Gauge
	ambiguousVariants prometheus.Counter
}

// NewMetrics registers the manager collectors with reg. A nil reg gets a
// private registry so several managers can coexist in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloads_total",
			Help:      "Finished bundle transfers by result.",
		}, []string{"result"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of bundle content received.",
		}),
		loadedBundles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "loaded_bundles",
			Help:      "Bundles currently installed in the registry.",
		}),
		inflightFetches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight_fetches",
			Help:      "Transfers currently running.",
		}),
		queuedDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queued_downloads",
			Help:      "Transfers waiting for a free slot.",
		}),
		pendingOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_operations",
			Help:      "Asset and scene operations not yet done.",
		}),
		ambiguousVariants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ambiguous_variants_total",
			Help:      "Variant resolutions that matched no active variant.",
		}),
	}
	reg.MustRegister(
		m.downloads,
		m.downloadedBytes,
		m.loadedBundles,
		m.inflightFetches,
		m.queuedDownloads,
		m.pendingOperations,
		m.ambiguousVariants,
	)
	return m
}

func (m *Metrics) downloadFinished(size int, err error) {
	if err != nil {
		m.downloads.WithLabelValues("error").Inc()
		return
	}
	m.downloads.WithLabelValues("success").Inc()
	m.downloadedBytes.Add(float64(size))
}
