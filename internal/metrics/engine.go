// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus instruments of the engine daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_state_saves_total",
		Help: "Engine state saves by backend and outcome",
	}, []string{"backend", "outcome"}) // outcome=success|failure

	stateSaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minios_state_save_duration_seconds",
		Help:    "Duration of full engine state snapshots",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"backend"})

	engineBootsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_engine_boots_total",
		Help: "Engine boot cycles by cause",
	}, []string{"cause"}) // cause=start|restart

	lastSaveTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minios_state_last_save_timestamp_seconds",
		Help: "Unix time of the last successful state save",
	})

	trashItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minios_trash_items",
		Help: "Number of items currently in the trash",
	})

	trashPurgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_trash_purged_total",
		Help: "Trash payloads removed permanently",
	}, []string{"reason"}) // reason=empty|retention

	schedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_scheduler_job_runs_total",
		Help: "Scheduled job executions by job and outcome",
	}, []string{"job", "outcome"})
)

// ObserveStateSave records one snapshot attempt.
func ObserveStateSave(backend string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else {
		lastSaveTimestamp.SetToCurrentTime()
	}
	stateSavesTotal.WithLabelValues(backend, outcome).Inc()
	stateSaveDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func IncEngineBoot(cause string) { engineBootsTotal.WithLabelValues(cause).Inc() }

func SetTrashItems(n int) { trashItems.Set(float64(n)) }

func AddTrashPurged(reason string, n int) {
	if n > 0 {
		trashPurgedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// IncSchedulerJob records a scheduled job run.
func IncSchedulerJob(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	schedulerJobRuns.WithLabelValues(job, outcome).Inc()
}
