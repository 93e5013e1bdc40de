package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration - длительность HTTP-запросов.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixter_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	// VerificationCodes - отправленные и проверенные коды.
	VerificationCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixter_verification_codes_total",
			Help: "Verification codes by operation and result",
		},
		[]string{"operation", "result"},
	)

	// PaymentIntents - операции с PaymentIntent.
	PaymentIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixter_payment_intents_total",
			Help: "Payment intent operations by result",
		},
		[]string{"operation", "result"},
	)

	// PaymentVolume - сумма успешных платежей в сентаво.
	PaymentVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pixter_payment_volume_cents_total",
			Help: "Total amount of succeeded payments in cents",
		},
	)

	// WebhookEvents - обработанные события Stripe.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixter_webhook_events_total",
			Help: "Stripe webhook events by type and result",
		},
		[]string{"type", "result"},
	)

	// ReceiptsRendered - сгенерированные PDF-квитанции.
	ReceiptsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixter_receipts_rendered_total",
			Help: "Rendered PDF receipts by variant and result",
		},
		[]string{"variant", "result"},
	)

	// ActiveWebsockets - открытые WebSocket-соединения водителей.
	ActiveWebsockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixter_active_websockets",
			Help: "Number of open driver websocket connections",
		},
	)
)

// Result переводит ошибку в метку result.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
