// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_holds_created_total",
		Help: "Booking holds created, by kind.",
	}, []string{"kind"})

	CapacityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_capacity_rejections_total",
		Help: "Booking attempts rejected for lack of seats.",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_settlements_total",
		Help: "Gateway settlement callbacks, by outcome.",
	}, []string{"outcome"})

	LateSettlementOversold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_late_settlement_oversold_total",
		Help: "Approved payments for expired holds confirmed beyond slot capacity.",
	})

	TicketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_tickets_issued_total",
		Help: "Per-seat tickets issued.",
	})

	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_scans_total",
		Help: "Ticket scans, by result.",
	}, []string{"result"})

	HoldsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_holds_purged_total",
		Help: "Stale holds removed by the cleanup job.",
	})

	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_errors_total",
		Help: "Failed payment gateway calls, by operation.",
	}, []string{"operation"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// GinMiddleware records request latency by route template
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
