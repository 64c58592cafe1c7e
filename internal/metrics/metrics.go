// Package metrics registers the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SalesCompleted  *prometheus.CounterVec
	SaleErrors      prometheus.Counter
	RefundsApplied  prometheus.Counter
	ShiftsClosed    prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SalesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_completed_total",
			Help: "Completed sales by payment method.",
		}, []string{"payment_method"}),
		SaleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_sale_errors_total",
			Help: "Checkout attempts rejected by validation or conflicts.",
		}),
		RefundsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_refunds_applied_total",
			Help: "Refunds applied to completed sales.",
		}),
		ShiftsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_shifts_closed_total",
			Help: "Cash shifts reconciled and closed.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
