package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "orders_created_total",
			Help:      "Orders created at checkout.",
		},
	)

	paymentsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "payments_recorded_total",
			Help:      "Payment outcomes recorded, by status and the path that reported them.",
		},
		[]string{"status", "source", "result"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "razorpay",
			Name:      "webhook_events_total",
			Help:      "Razorpay webhook deliveries by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	signatureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "razorpay",
			Name:      "signature_failures_total",
			Help:      "Rejected payment or webhook signatures.",
		},
		[]string{"kind"},
	)

	whatsappMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "whatsapp",
			Name:      "messages_total",
			Help:      "WhatsApp messages by provider and result.",
		},
		[]string{"provider", "success"},
	)

	supabaseRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "supabase",
			Name:      "retries_total",
			Help:      "Supabase requests retried, by method and failed status (0 for network errors).",
		},
		[]string{"method", "status"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation passes.",
		},
		[]string{"success"},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	reconcileRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "reconcile",
			Name:      "payments_recovered_total",
			Help:      "Payments recorded by the reconciler that no callback or webhook had recorded.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ordersCreated,
		paymentsRecorded,
		webhookEvents,
		signatureFailures,
		whatsappMessages,
		supabaseRetries,
		reconcileRuns,
		reconcileDuration,
		reconcileRecovered,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InFlight tracks a request; call the returned func when it finishes.
func InFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordHTTPRequest records one handled request. path should be a route
// template so label cardinality stays bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOrderCreated counts a checkout order.
func RecordOrderCreated() { ordersCreated.Inc() }

// RecordPayment counts a payment outcome. result is "recorded", "upgraded"
// or "duplicate".
func RecordPayment(status, source, result string) {
	paymentsRecorded.WithLabelValues(status, source, result).Inc()
}

// RecordWebhook counts a webhook delivery.
func RecordWebhook(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

// RecordSignatureFailure counts a rejected signature ("payment" or "webhook").
func RecordSignatureFailure(kind string) { signatureFailures.WithLabelValues(kind).Inc() }

// RecordWhatsApp counts a send attempt.
func RecordWhatsApp(provider string, success bool) {
	whatsappMessages.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
}

// RecordSupabaseRetry is wired as the Supabase transport's retry hook.
func RecordSupabaseRetry(method string, status int) {
	supabaseRetries.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RecordReconcileRun records a reconciliation pass.
func RecordReconcileRun(duration time.Duration, recovered int, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	reconcileRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	reconcileDuration.Observe(duration.Seconds())
	reconcileRecovered.Add(float64(recovered))
}
