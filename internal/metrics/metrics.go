package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the call-event pipeline
var (
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_webhooks_total",
			Help: "Total number of call-status webhooks by result",
		},
		[]string{"result"},
	)

	WebhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "call_events_webhook_duration_seconds",
			Help:    "Duration of call-status webhook processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_reconciled_total",
			Help: "Total number of call logs written by upsert branch",
		},
		[]string{"op"},
	)

	ContactsCorrelatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "call_events_contacts_correlated_total",
			Help: "Total number of contacts updated from call events",
		},
	)

	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "events_subscribers",
			Help: "Live stream subscribers by event category",
		},
		[]string{"category"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_deliveries_total",
			Help: "Total number of event deliveries by category and result",
		},
		[]string{"category", "result"},
	)
)

// Webhook results.
const (
	ResultOK           = "ok"
	ResultSkipped      = "skipped"
	ResultUnauthorized = "unauthorized"
	ResultUnresolved   = "unresolved"
	ResultError        = "error"
)

// Delivery results.
const (
	DeliveryDelivered = "delivered"
	DeliveryDropped   = "dropped"
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(WebhooksTotal)
	prometheus.MustRegister(WebhookDuration)
	prometheus.MustRegister(ReconciledTotal)
	prometheus.MustRegister(ContactsCorrelatedTotal)
	prometheus.MustRegister(Subscribers)
	prometheus.MustRegister(DeliveriesTotal)
}
