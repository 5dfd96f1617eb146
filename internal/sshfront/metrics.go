package sshfront

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the counters/histograms shape of the teacher's
// internal/api/metrics.go (outcome-keyed counters, duration/size
// histograms), re-grounded here around one fetch instead of one HTTP
// request. Carried as ambient stack per SPEC_FULL.md's observability
// expansion even though spec.md's Non-goals exclude HTTP endpoints, not
// metrics.
type Metrics struct {
	AuthFailures  prometheus.Counter
	FetchErrors   prometheus.Counter
	FetchDuration prometheus.Histogram
	PackBytes     prometheus.Histogram
}

// NewMetrics registers the fetch-path metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chartered_git_index",
			Name:      "ssh_auth_failures_total",
			Help:      "SSH publickey authentication attempts that failed to match a registered key.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chartered_git_index",
			Name:      "fetch_errors_total",
			Help:      "git-upload-pack requests that failed during index assembly.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chartered_git_index",
			Name:      "fetch_duration_seconds",
			Help:      "Wall-clock time to assemble and deliver one fetch.",
			Buckets:   prometheus.DefBuckets,
		}),
		PackBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chartered_git_index",
			Name:      "fetch_pack_bytes",
			Help:      "Size of the packfile delivered per fetch.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
	reg.MustRegister(m.AuthFailures, m.FetchErrors, m.FetchDuration, m.PackBytes)
	return m
}
