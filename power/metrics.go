package power

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the per-tick Prometheus collectors the agent updates.
// Registration is the caller's responsibility (NewMetrics registers on
// the given Registerer), mirroring how the pack's HPC-adjacent
// services (kepler, the ENSIAS autoscaler) expose a dedicated
// collector set rather than using the default global registry.
type Metrics struct {
	AllocWatts  prometheus.Gauge
	AvailWatts  prometheus.Gauge
	LowerNodes  prometheus.Gauge
	SameNodes   prometheus.Gauge
	RaiseNodes  prometheus.Gauge
	TickLatency prometheus.Histogram
	CapmcErrors prometheus.Counter
}

// NewMetrics builds and registers the collector set. reg may be nil,
// in which case metrics are tracked but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AllocWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "powercapd", Name: "alloc_watts",
			Help: "Sum of caps held by not-ready, under-using and in-band nodes after clawback, most recent tick (pressing nodes' grants excluded).",
		}),
		AvailWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "powercapd", Name: "avail_watts",
			Help: "Budget left ungranted after distribution to pressing nodes, most recent tick.",
		}),
		LowerNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "powercapd", Name: "lower_nodes",
			Help: "Nodes classified under-using their cap in the most recent tick.",
		}),
		SameNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "powercapd", Name: "same_nodes",
			Help: "Nodes classified in-band in the most recent tick.",
		}),
		RaiseNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "powercapd", Name: "raise_nodes",
			Help: "Nodes classified pressing in the most recent tick.",
		}),
		TickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "powercapd", Name: "tick_seconds",
			Help:    "Wall-clock duration of a full ingest+allocate+apply tick.",
			Buckets: prometheus.DefBuckets,
		}),
		CapmcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powercapd", Name: "capmc_errors_total",
			Help: "Site power agent invocations that failed or timed out.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.AllocWatts, m.AvailWatts, m.LowerNodes, m.SameNodes, m.RaiseNodes, m.TickLatency, m.CapmcErrors)
	}
	return m
}

// Observe records one allocator pass's summary numbers.
func (m *Metrics) Observe(allocWatts, availWatts uint64, lowerCnt, sameCnt, raiseCnt int) {
	if m == nil {
		return
	}
	m.AllocWatts.Set(float64(allocWatts))
	m.AvailWatts.Set(float64(availWatts))
	m.LowerNodes.Set(float64(lowerCnt))
	m.SameNodes.Set(float64(sameCnt))
	m.RaiseNodes.Set(float64(raiseCnt))
}
