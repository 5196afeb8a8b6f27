package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayStats provides the metrics collector access to live in-process
// state that isn't naturally a counter (cache sizes, active subscribers).
type GatewayStats interface {
	RegistryCacheLen() int
	LiveSubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape
// time rather than tracking them incrementally.
type Collector struct {
	pool  *pgxpool.Pool
	stats GatewayStats

	registryCacheSize *prometheus.Desc
	liveSubscribers   *prometheus.Desc
	dbTotalConns      *prometheus.Desc
	dbAcquiredConns   *prometheus.Desc
	dbIdleConns       *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil (DB gauges report 0). stats may be nil if the gateway
// hasn't finished starting up yet.
func NewCollector(pool *pgxpool.Pool, stats GatewayStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		registryCacheSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "registry_cache_nodes"),
			"Current number of node ids cached in the node registry.",
			nil, nil,
		),
		liveSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "live_subscribers_active"),
			"Current number of live map websocket subscribers.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registryCacheSize
	ch <- c.liveSubscribers
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		ch <- prometheus.MustNewConstMetric(c.registryCacheSize, prometheus.GaugeValue, float64(c.stats.RegistryCacheLen()))
		ch <- prometheus.MustNewConstMetric(c.liveSubscribers, prometheus.GaugeValue, float64(c.stats.LiveSubscriberCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.registryCacheSize, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.liveSubscribers, prometheus.GaugeValue, 0)
	}

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
