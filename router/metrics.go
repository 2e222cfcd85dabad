package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// routeTotal 按出行方式与结果统计的请求数
	routeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilerouting_route_total",
			Help: "Total number of route requests",
		},
		[]string{"profile", "result"},
	)

	routeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tilerouting_route_seconds",
			Help:    "Route request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"profile"},
	)

	// expansions 找到路线或放弃前的外扩次数
	expansions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tilerouting_region_expansions",
			Help:    "Number of ring expansions per assembled region",
			Buckets: prometheus.LinearBuckets(0, 1, 5),
		},
	)
)

func init() {
	prometheus.MustRegister(routeTotal)
	prometheus.MustRegister(routeLatency)
	prometheus.MustRegister(expansions)
}
