package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spinwish_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_payments_initiated_total",
			Help: "Total number of push-payment prompts dispatched",
		},
		[]string{"purpose"},
	)

	PaymentsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_payments_reconciled_total",
			Help: "Total number of payment outcomes applied, by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	PaymentReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spinwish_payment_settlement_seconds",
			Help:    "Time from prompt initiation to settlement",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	PaymentCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_payment_callbacks_total",
			Help: "Total number of gateway results received, by source and result code",
		},
		[]string{"source", "result_code"},
	)

	PaymentDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spinwish_payment_duplicate_results_total",
			Help: "Gateway results ignored because the payment was already settled",
		},
	)

	PaymentAnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_payment_anomalies_total",
			Help: "Captured payments that could not be applied to their target",
		},
		[]string{"reason"},
	)

	SongRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_song_requests_total",
			Help: "Song request transitions by resulting status",
		},
		[]string{"status"},
	)

	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_session_transitions_total",
			Help: "Session lifecycle transitions by target status",
		},
		[]string{"status"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinwish_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	MockPendingPayments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spinwish_mock_pending_payments",
			Help: "Unprocessed prompts held by the mock gateway",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPaymentInitiated(purpose string) {
	PaymentsInitiatedTotal.WithLabelValues(purpose).Inc()
}

func RecordPaymentSettled(purpose, outcome string, seconds float64) {
	PaymentsReconciledTotal.WithLabelValues(purpose, outcome).Inc()
	PaymentReconcileDuration.WithLabelValues(outcome).Observe(seconds)
}

func RecordPaymentResult(source, resultCode string) {
	PaymentCallbacksTotal.WithLabelValues(source, resultCode).Inc()
}

func RecordDuplicateResult() {
	PaymentDuplicatesTotal.Inc()
}

func RecordAnomaly(reason string) {
	PaymentAnomaliesTotal.WithLabelValues(reason).Inc()
}

func RecordSongRequest(status string) {
	SongRequestsTotal.WithLabelValues(status).Inc()
}

func RecordSessionTransition(status string) {
	SessionTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}

func SetMockPending(n int) {
	MockPendingPayments.Set(float64(n))
}
