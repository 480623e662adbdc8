package assetcache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总分层缓存的 Prometheus 指标，所有 Resolver 共享一份，以 resolver 标签区分。
type Metrics struct {
	resolutions   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	inflight      *prometheus.GaugeVec
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标。reg 为 nil 时只创建不注册（测试场景）。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingehub",
			Subsystem: "assetcache",
			Name:      "resolutions_total",
			Help:      "Resolve requests by the tier that satisfied them (memory, pending, disk, network)",
		}, []string{"resolver", "tier"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingehub",
			Subsystem: "assetcache",
			Name:      "fetch_failures_total",
			Help:      "Fetch workers that ended in the failed state",
		}, []string{"resolver", "reason"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bingehub",
			Subsystem: "assetcache",
			Name:      "disk_writes_total",
			Help:      "Disk promotions by result",
		}, []string{"resolver", "result"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bingehub",
			Subsystem: "assetcache",
			Name:      "pending_fetches",
			Help:      "Fetches currently in flight",
		}, []string{"resolver"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bingehub",
			Subsystem: "assetcache",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch worker run time by source tier",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"resolver", "tier"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.resolutions, m.failures, m.cacheWrites, m.inflight, m.fetchDuration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeResolution(resolver, tier string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(resolver, tier).Inc()
}

func (m *Metrics) observeFetch(resolver string, tier Tier, seconds float64) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(resolver, string(tier)).Observe(seconds)
}

func (m *Metrics) observeFailure(resolver, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(resolver, reason).Inc()
}

func (m *Metrics) observeCacheWrite(resolver string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.cacheWrites.WithLabelValues(resolver, result).Inc()
}

func (m *Metrics) setInflight(resolver string, n int) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(resolver).Set(float64(n))
}
