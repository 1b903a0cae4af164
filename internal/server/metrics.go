package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type originMetrics struct {
	bundleRequests *prometheus.CounterVec
	servedBytes    prometheus.Counter
	wsSessions     prometheus.Gauge
	ftpLogins      *prometheus.CounterVec
}

func newOriginMetrics(reg *prometheus.Registry) *originMetrics {
	m := &originMetrics{
		bundleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpbundle_origin",
			Name:      "bundle_requests_total",
			Help:      "Bundle file requests by result.",
		}, []string{"result"}),
		servedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warpbundle_origin",
			Name:      "served_bytes_total",
			Help:      "Size of bundle files served over HTTP.",
		}),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpbundle_origin",
			Name:      "websocket_sessions",
			Help:      "Open JSON-RPC websocket sessions.",
		}),
		ftpLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpbundle_origin",
			Name:      "ftp_logins_total",
			Help:      "FTP login attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.bundleRequests,
		m.servedBytes,
		m.wsSessions,
		m.ftpLogins,
		collectors.NewGoCollector(),
	)
	return m
}
