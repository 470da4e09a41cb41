// Package telemetry 进程内 Prometheus 指标
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 独立注册表，避免与默认注册表的全局状态混用
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	AlertsTriggered = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywidget",
		Name:      "alerts_triggered_total",
		Help:      "Number of alert rules that fired, by severity.",
	}, []string{"severity"})

	PeerDeliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywidget",
		Name:      "peer_deliveries_total",
		Help:      "Outbound alert deliveries to peer nodes, by result.",
	}, []string{"result"})

	PeersKnown = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "skywidget",
		Name:      "peers_known",
		Help:      "Peer nodes currently in the discovery registry.",
	})

	InboundAlerts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "skywidget",
		Name:      "inbound_alerts_total",
		Help:      "Alert notifications received from peer nodes.",
	})
)

// 投递结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
