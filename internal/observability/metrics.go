package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesProcessed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngguard_update_processing_duration_seconds",
			Help:    "Time spent processing one update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_verdicts_total",
			Help: "Moderation pipeline verdicts by filter and action",
		},
		[]string{"filter", "action"},
	)

	penaltiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_penalties_total",
			Help: "Penalties applied by action and remote result",
		},
		[]string{"action", "remote"},
	)

	floodTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ngguard_flood_detected_total",
		Help: "Messages that exceeded a flood policy",
	})

	gateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_gate_suppressed_total",
			Help: "Messages suppressed before the pipeline",
		},
		[]string{"gate"},
	)

	captchaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_captcha_total",
			Help: "Captcha transitions by outcome",
		},
		[]string{"outcome"},
	)

	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_reports_total",
			Help: "Report workflow events",
		},
		[]string{"event"},
	)
)

// StartUpdate returns a function recording the processing duration under the given status.
func StartUpdate() func(status string) {
	started := time.Now()
	return func(status string) {
		updatesProcessed.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}

func RecordVerdict(filter, action string) {
	verdictsTotal.WithLabelValues(filter, action).Inc()
}

func RecordPenalty(action string, remoteOK bool) {
	remote := "ok"
	if !remoteOK {
		remote = "failed"
	}
	penaltiesTotal.WithLabelValues(action, remote).Inc()
}

func RecordFlood() {
	floodTotal.Inc()
}

func RecordGate(gate string) {
	gateTotal.WithLabelValues(gate).Inc()
}

func RecordCaptcha(outcome string) {
	captchaTotal.WithLabelValues(outcome).Inc()
}

func RecordReport(event string) {
	reportsTotal.WithLabelValues(event).Inc()
}
