// Package metrics implements the MetricsRecorder port with Prometheus.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/classbuild/internal/domain/model"
	"github.com/ericfisherdev/classbuild/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsRecorder = (*Recorder)(nil)

const namespace = "classbuild"

// Recorder records pipeline metrics into a Prometheus registry.
type Recorder struct {
	reg              *prom.Registry
	commits          *prom.CounterVec
	buildDuration    *prom.HistogramVec
	callbacksIgnored *prom.CounterVec
	reconcileRuns    *prom.CounterVec
	reconcileTime    *prom.HistogramVec
}

// NewRecorder creates a Recorder and registers its collectors, plus the Go
// runtime and process collectors, on reg. A nil reg gets a fresh registry.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	r := &Recorder{
		reg: reg,
		commits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commits_ingested_total",
			Help:      "Pushed commits seen by source and outcome",
		}, []string{"source", "outcome"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of finished builds by status",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		callbacksIgnored: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_ignored_total",
			Help:      "Build completion callbacks that stored nothing, by reason",
		}, []string{"reason"}),
		reconcileRuns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Missed-commit reconciliation runs by scope and result",
		}, []string{"scope", "result"}),
		reconcileTime: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of missed-commit reconciliation runs",
			Buckets:   prom.DefBuckets,
		}, []string{"scope"}),
	}

	reg.MustRegister(
		r.commits,
		r.buildDuration,
		r.callbacksIgnored,
		r.reconcileRuns,
		r.reconcileTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RegisterQueueDepth exposes the number of waiting build jobs, sampled by fn
// on every scrape.
func (r *Recorder) RegisterQueueDepth(fn func() float64) {
	r.reg.MustRegister(prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Build jobs waiting on the queue",
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) CommitsIngested(source string, created, duplicates, failed int) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(source, "created").Add(float64(created))
	r.commits.WithLabelValues(source, "duplicate").Add(float64(duplicates))
	r.commits.WithLabelValues(source, "failed").Add(float64(failed))
}

func (r *Recorder) BuildCompleted(status model.BuildStatus, duration time.Duration) {
	if r == nil {
		return
	}
	r.buildDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (r *Recorder) CallbackIgnored(reason string) {
	if r == nil {
		return
	}
	r.callbacksIgnored.WithLabelValues(reason).Inc()
}

func (r *Recorder) ReconcileRun(scope string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	r.reconcileRuns.WithLabelValues(scope, result).Inc()
	r.reconcileTime.WithLabelValues(scope).Observe(duration.Seconds())
}
