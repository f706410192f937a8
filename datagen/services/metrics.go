package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStartedMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_runs_started", Help: "Generation runs started"})
	runsCompletedMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_runs_completed", Help: "Generation runs completed successfully"})
	runsFailedMetric    = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_runs_failed", Help: "Generation runs that failed"})
	runsStoppedMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "datagen_runs_stopped", Help: "Generation runs stopped by request"})
	activeRunsMetric    = promauto.NewGauge(prometheus.GaugeOpts{Name: "datagen_active_runs", Help: "Runs currently executing in this process"})
)
