package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the report pipeline metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	StageDuration    *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	ExternalCalls    *prometheus.CounterVec
	ReportsAnalyzed  prometheus.Counter
	PredictionsTotal *prometheus.CounterVec
	GuidelineLookups *prometheus.CounterVec
}

// NewCollector registers the collectors on a private registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_pipeline_stage_duration_seconds",
				Help:    "Duration of each report pipeline stage in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_pipeline_stage_failures_total",
				Help: "Failed report pipeline stages, fatal or best-effort",
			},
			[]string{"stage"},
		),
		ExternalCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_external_calls_total",
				Help: "Calls to external capabilities by outcome",
			},
			[]string{"capability", "status"},
		),
		ReportsAnalyzed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "report_analyses_completed_total",
				Help: "Reports that reached the available state",
			},
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_predictions_total",
				Help: "Stored model predictions by model",
			},
			[]string{"model"},
		),
		GuidelineLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_guideline_lookups_total",
				Help: "Guideline lookups by outcome",
			},
			[]string{"status"},
		),
	}

	c.registry.MustRegister(
		c.StageDuration,
		c.StageFailures,
		c.ExternalCalls,
		c.ReportsAnalyzed,
		c.PredictionsTotal,
		c.GuidelineLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveStage records how long a stage ran and whether it failed
func (c *Collector) ObserveStage(stage string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		c.StageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveExternal counts one call to an external capability
func (c *Collector) ObserveExternal(capability string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.ExternalCalls.WithLabelValues(capability, status).Inc()
}

// ObserveAnalysis counts a completed analysis and its predictions
func (c *Collector) ObserveAnalysis(models []string, guidelinesFound, guidelinesTried int) {
	if c == nil {
		return
	}
	c.ReportsAnalyzed.Inc()
	for _, m := range models {
		c.PredictionsTotal.WithLabelValues(m).Inc()
	}
	c.GuidelineLookups.WithLabelValues("success").Add(float64(guidelinesFound))
	c.GuidelineLookups.WithLabelValues("error").Add(float64(guidelinesTried - guidelinesFound))
}

// Registry exposes the registry for tests and custom exporters
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
