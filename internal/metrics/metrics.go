// Package metrics 提供服务运行指标（Prometheus）
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 服务运行指标
type Metrics struct {
	SamplesReceived   prometheus.Counter
	SamplesDropped    prometheus.Counter
	MalformedPayloads prometheus.Counter
	UnknownDevices    prometheus.Counter
	DistressDetected  prometheus.Counter
	CuesPlayed        prometheus.Counter
	CueFailures       prometheus.Counter
	Recoveries        prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

// New 创建并注册服务指标
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SamplesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_samples_received_total",
			Help: "Total biometric samples received from MQTT",
		}),
		SamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_samples_dropped_total",
			Help: "Samples dropped due to full per-device buffers",
		}),
		MalformedPayloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_malformed_payloads_total",
			Help: "MQTT payloads that failed to parse",
		}),
		UnknownDevices: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_unknown_devices_total",
			Help: "Samples from devices missing in the registry",
		}),
		DistressDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_distress_detected_total",
			Help: "Distress detections emitted by monitors",
		}),
		CuesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_cues_played_total",
			Help: "Calming cues successfully played",
		}),
		CueFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_cue_failures_total",
			Help: "Calming cue attempts that failed",
		}),
		Recoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_recoveries_total",
			Help: "Episodes confirmed recovered",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nightwatch_active_sessions",
			Help: "Currently active per-device monitoring sessions",
		}),
	}
}

// NewServer 创建 /metrics HTTP 服务
func NewServer(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return server
}
