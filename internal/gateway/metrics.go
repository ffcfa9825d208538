package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял ход (включая диспетчеризацию)
	TurnDuration *prometheus.HistogramVec

	// Traffic: общее кол-во ходов по исходу
	TurnsTotal *prometheus.CounterVec

	// Сколько раз пользователь упёрся в запрос согласия
	ConsentPrompts *prometheus.CounterVec

	// Errors: отказы исполнителя
	DispatchErrors prometheus.Counter

	// Saturation: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TurnDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vern_turn_duration_seconds",
			Help:    "Histogram of turn processing latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),

		TurnsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vern_turns_total",
			Help: "Total number of processed turns by outcome.",
		}, []string{"outcome"}), // исходы: ok, consent_prompt, dispatch_error, invalid

		ConsentPrompts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vern_consent_prompts_total",
			Help: "Total number of consent prompts by action.",
		}, []string{"action"}),

		DispatchErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "vern_dispatch_errors_total",
			Help: "Total number of agent dispatch failures.",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vern_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
