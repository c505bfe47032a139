// Package metrics exposes Prometheus instrumentation for the alerting jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Kinds of outbound messages.
const (
	KindAlert   = "alert"
	KindSummary = "summary"
)

// Metrics records job and delivery counters. A nil *Metrics is a no-op.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	skipped  prometheus.Counter
	tracked  *prometheus.CounterVec
}

// New registers the collectors on reg, or the default registerer when reg is
// nil. Already registered collectors are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error
	if m.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alert_job_runs_total",
		Help: "Alert job runs by job and outcome",
	}, []string{"job", "outcome"})); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_alert_job_duration_seconds",
		Help:    "Duration of alert job runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})); err != nil {
		return nil, err
	}
	if m.sent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alert_messages_sent_total",
		Help: "Messages delivered to the mail transport",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.failed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alert_messages_failed_total",
		Help: "Messages the mail transport rejected",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.skipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_alert_vehicles_skipped_total",
		Help: "Vehicles not alerted because they were already alerted in the current dedup period",
	})); err != nil {
		return nil, err
	}
	if m.tracked, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alert_tracking_records_total",
		Help: "Tracking record writes by category and result",
	}, []string{"category", "result"})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// ObserveRun records the outcome and duration of one job run.
func (m *Metrics) ObserveRun(job string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.runs.WithLabelValues(job, outcome).Inc()
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

// MessageSent counts a delivered message.
func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

// MessageFailed counts a rejected message.
func (m *Metrics) MessageFailed(kind string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(kind).Inc()
}

// VehicleSkipped counts a vehicle suppressed by deduplication.
func (m *Metrics) VehicleSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

// TrackingWrite counts a tracking record write by result: "appended",
// "deduplicated", "missing" or "error".
func (m *Metrics) TrackingWrite(category, result string) {
	if m == nil {
		return
	}
	m.tracked.WithLabelValues(category, result).Inc()
}

// Handler returns the HTTP handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
