package tilecache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilerouting_tilecache_hits_total",
		Help: "Total number of tile cache hits",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilerouting_tilecache_misses_total",
		Help: "Total number of tile cache misses",
	})
	// 合并后实际发生的加载次数
	cacheLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilerouting_tilecache_loads_total",
		Help: "Total number of tile loads from the store",
	})
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilerouting_tilecache_evictions_total",
		Help: "Total number of tiles evicted or cleared",
	})
	cacheResident = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tilerouting_tilecache_resident",
		Help: "Number of tiles currently resident in all caches",
	})
)

func init() {
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(cacheLoads)
	prometheus.MustRegister(cacheEvictions)
	prometheus.MustRegister(cacheResident)
}
