package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

const namespace = "dms"

// Recorder exports the scheduling events as Prometheus metrics.
type Recorder struct {
	committed *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	lockWait  prometheus.Histogram
}

var _ defense.Observer = (*Recorder)(nil) // interface compliance check

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "defense",
			Name:      "schedule_writes_total",
			Help:      "Committed defense schedule writes, by action.",
		}, []string{"action"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "defense",
			Name:      "schedule_conflicts_total",
			Help:      "Rejected bookings, by conflict kind.",
		}, []string{"kind"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "defense",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the scheduling locks.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
	reg.MustRegister(r.committed, r.conflicts, r.lockWait)
	return r
}

func (r *Recorder) ScheduleCommitted(action string) {
	r.committed.WithLabelValues(action).Inc()
}

func (r *Recorder) ConflictDetected(kind defense.ConflictKind) {
	r.conflicts.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) LockAcquired(wait time.Duration) {
	r.lockWait.Observe(wait.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
