package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reshape_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reshape_analysis_seconds",
		Help:    "Time spent on analysis phases.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	ProjectFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reshape_project_files_total",
		Help: "Number of files in the most recent project snapshot.",
	})

	ProjectBindings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reshape_project_bindings_total",
		Help: "Number of bindings in the most recent symbol table.",
	})

	UnresolvedReferences = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reshape_unresolved_references_total",
		Help: "Unresolved references found by the most recent analysis.",
	})

	PlansProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reshape_plans_total",
		Help: "Refactoring plan outcomes by operation kind and result.",
	}, []string{"kind", "outcome"})

	PlanEdits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reshape_plan_edits",
		Help:    "Number of edits per produced rewrite plan.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reshape_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
