package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_notifications_received_total",
		Help: "The total number of notification batches submitted",
	}, []string{"scope"})

	WebhooksMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_matches_total",
		Help: "The total number of webhooks selected for delivery",
	}, []string{"scope"})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_attempts_total",
		Help: "The total number of delivery attempts by status",
	}, []string{"status"})

	DeliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_outcomes_total",
		Help: "The total number of terminal delivery outcomes",
	}, []string{"status", "reason"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Time taken by a single delivery attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	DeliveryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_delivery_retries_total",
		Help: "The total number of scheduled delivery retries",
	})

	DispatchQueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webhook_dispatch_queue_size",
		Help: "Current number of work items waiting for a delivery worker",
	}, []string{"transport"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_registrations_total",
		Help: "The total number of registration operations by result",
	}, []string{"operation", "result"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rate_limit_exceeded_total",
		Help: "The total number of times rate limits were exceeded",
	}, []string{"user", "limit_type"})

	IncomingWebhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_incoming_total",
		Help: "The total number of signed webhooks received by result",
	}, []string{"receiver", "result"})
)
