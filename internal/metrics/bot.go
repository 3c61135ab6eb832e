package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automacao",
			Subsystem: "bot",
			Name:      "ticks_total",
			Help:      "机器人生成的投递记录数，按状态划分。",
		},
		[]string{"status"},
	)

	botTickFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "automacao",
			Subsystem: "bot",
			Name:      "tick_failures_total",
			Help:      "写入失败而被跳过的 tick 数。",
		},
	)

	botsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automacao",
			Subsystem: "bot",
			Name:      "running",
			Help:      "当前运行中的机器人数量。",
		},
	)

	resolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automacao",
			Subsystem: "registry",
			Name:      "resolutions_total",
			Help:      "人工回答请求数，按结果划分。",
		},
		[]string{"result"},
	)
)

// ObserveTick records one persisted tick.
func ObserveTick(status string) {
	botTicksTotal.WithLabelValues(status).Inc()
}

// ObserveTickFailure records a tick whose write failed.
func ObserveTickFailure() {
	botTickFailedTotal.Inc()
}

// BotStarted / BotStopped track the running gauge.
func BotStarted() { botsRunning.Inc() }
func BotStopped() { botsRunning.Dec() }

// ObserveResolution records a manual answer outcome: ok, conflict, not_found or error.
func ObserveResolution(result string) {
	resolvedTotal.WithLabelValues(result).Inc()
}
