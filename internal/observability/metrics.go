package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpDurationHistogram     *prometheus.HistogramVec
	idempotencyCounter        *prometheus.CounterVec
	escrowTransitionCounter   *prometheus.CounterVec
	gatewayDurationHistogram  *prometheus.HistogramVec
	lossMakingReleaseCounter  prometheus.Counter
	netPlatformRevenueCounter prometheus.Counter
	creditGrantCounter        *prometheus.CounterVec
	webhookEventCounter       *prometheus.CounterVec
	notificationCounter       *prometheus.CounterVec
	workerRunCounter          *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		escrowTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow payment state transitions by outcome",
		}, []string{"from", "to", "result"})

		gatewayDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "result"})

		lossMakingReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_loss_making_releases_total",
			Help: "Released payments whose processor fee exceeded the platform fee",
		})

		netPlatformRevenueCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_platform_fee_cents_total",
			Help: "Platform fees collected on released payments, in minor units",
		})

		creditGrantCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bid_credit_grants_total",
			Help: "Bid credit grants from completed checkouts",
		}, []string{"pack", "result"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhook_events_total",
			Help: "Gateway webhook events by type and outcome",
		}, []string{"type", "result"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification dispatch outcomes",
		}, []string{"type", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			escrowTransitionCounter,
			gatewayDurationHistogram,
			lossMakingReleaseCounter,
			netPlatformRevenueCounter,
			creditGrantCounter,
			webhookEventCounter,
			notificationCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementEscrowTransition(from, to, result string) {
	if escrowTransitionCounter == nil {
		return
	}
	escrowTransitionCounter.WithLabelValues(from, to, result).Inc()
}

func ObserveGatewayCall(operation, result string, duration time.Duration) {
	if gatewayDurationHistogram == nil {
		return
	}
	gatewayDurationHistogram.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordRelease accounts the platform fee of a released payment.
func RecordRelease(platformFeeCents int64, lossMaking bool) {
	if netPlatformRevenueCounter == nil {
		return
	}
	netPlatformRevenueCounter.Add(float64(platformFeeCents))
	if lossMaking {
		lossMakingReleaseCounter.Inc()
	}
}

func IncrementCreditGrant(pack, result string) {
	if creditGrantCounter == nil {
		return
	}
	creditGrantCounter.WithLabelValues(pack, result).Inc()
}

func IncrementWebhookEvent(eventType, result string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(eventType, result).Inc()
}

func IncrementNotification(notificationType, result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(notificationType, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
