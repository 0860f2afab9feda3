package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_checkouts_started_total",
		Help: "Total number of checkout attempts",
	})

	CheckoutsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_completed_total",
		Help: "Total number of checkouts that reached a persisted order, by payment method",
	}, []string{"method"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_latency_seconds",
		Help:    "Latency of the checkout pipeline up to payment initiation",
		Buckets: prometheus.DefBuckets,
	})

	PromotionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_promotions_rejected_total",
		Help: "Total number of rejected promotion codes",
	}, []string{"reason"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_orders_paid_total",
		Help: "Total number of orders successfully paid",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"reason"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_compensations_total",
		Help: "Total number of compensating actions applied",
	}, []string{"action"})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_gateway_requests_total",
		Help: "Total number of payment gateway requests",
	}, []string{"method", "result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_gateway_latency_seconds",
		Help:    "Latency of payment gateway requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_payment_callbacks_total",
		Help: "Total number of payment callbacks by outcome",
	}, []string{"method", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
